package domain

import "time"

const (
	QRStatusPending = "pending"
	QRStatusScanned = "scanned"
)

// WhatsAppQRCode is the pairing challenge issued for a tenant. One row per
// tenant; once Status is scanned no further challenge is issued for it.
type WhatsAppQRCode struct {
	TenantID  string    `json:"tenant_id" gorm:"primaryKey;size:128"`
	QRCode    string    `json:"qr_code" gorm:"type:text"` // data:image/png;base64,...
	Status    string    `json:"status" gorm:"size:16;index"`
	Origin    string    `json:"origin" gorm:"size:64"`
	Prompt    string    `json:"prompt" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (WhatsAppQRCode) TableName() string {
	return "whatsapp_qr_codes"
}

func (q *WhatsAppQRCode) IsScanned() bool {
	return q != nil && q.Status == QRStatusScanned
}
