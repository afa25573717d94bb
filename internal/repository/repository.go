package repository

import (
	"context"
	"errors"

	"github.com/talkincode/wacrm/internal/domain"
)

// ErrNotFound is returned by point reads and conditional updates that miss.
var ErrNotFound = errors.New("record not found")

// ErrQRScanned is returned by PutQR when a pending record would replace a
// scanned one.
var ErrQRScanned = errors.New("qr record already scanned")

// QRRepository handles pairing challenge records (WhatsAppQRCodes)
type QRRepository interface {
	// PutQR creates or replaces the record for q.TenantID. A scanned record
	// is never downgraded: writing a non-scanned record over it fails with
	// ErrQRScanned.
	PutQR(ctx context.Context, q *domain.WhatsAppQRCode) error

	// UpdateQRStatus sets the status of an existing record
	UpdateQRStatus(ctx context.Context, tenantID, status string) error

	// GetQR retrieves the record of a tenant
	GetQR(ctx context.Context, tenantID string) (*domain.WhatsAppQRCode, error)

	// GetQRPrompt reads only the stored classification instruction
	GetQRPrompt(ctx context.Context, tenantID string) (string, error)
}

// CRMRepository handles exported conversations (WhatsAppCRM)
type CRMRepository interface {
	// PutConversation creates or overwrites a record keyed by tenant and conversation
	PutConversation(ctx context.Context, r *domain.CRMRecord) error

	// ListConversations returns every record of a tenant ordered by conversation id
	ListConversations(ctx context.Context, tenantID string) ([]*domain.CRMRecord, error)
}

// Repository is the full persistence surface used by the application.
type Repository interface {
	QRRepository
	CRMRepository
	Close() error
}
