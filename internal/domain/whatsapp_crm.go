package domain

import (
	"database/sql/driver"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	FlagYes = "Yes"
	FlagNo  = "No"
)

// CRMMessage is one transcript line of an exported conversation.
type CRMMessage struct {
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	Timestamp string `json:"timestamp"`
}

// CRMMessages keeps retrieval order (newest first) and is stored as a JSON column.
type CRMMessages []CRMMessage

func (m CRMMessages) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	bs, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(bs), nil
}

func (m *CRMMessages) Scan(src interface{}) error {
	return scanJSON(src, m)
}

// StringList is a JSON encoded string slice column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	bs, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(bs), nil
}

func (l *StringList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

func scanJSON(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
}

// CRMRecord is one exported and classified conversation. Rows are keyed by
// tenant and conversation and overwritten on every export run.
type CRMRecord struct {
	TenantID       string      `json:"tenant_id" gorm:"primaryKey;size:128"`
	ConversationID string      `json:"conversation_id" gorm:"primaryKey;size:128"`
	ContactName    string      `json:"contact_name"`
	ContactPhone   string      `json:"contact_phone" gorm:"size:64"`
	Messages       CRMMessages `json:"messages" gorm:"type:text"`
	FollowUp       string      `json:"follow_up" gorm:"size:8"`
	LastMessageAt  string      `json:"last_message_at" gorm:"size:64"`
	IsCustomer     string      `json:"is_customer" gorm:"size:8"`
	Summary        string      `json:"summary" gorm:"type:text"`
	LeadScore      int         `json:"lead_score"`
	LeadStage      string      `json:"lead_stage" gorm:"size:64"`
	Items          StringList  `json:"items" gorm:"type:text"`
	ExportedAt     time.Time   `json:"exported_at"`
}

func (CRMRecord) TableName() string {
	return "whatsapp_crm"
}
