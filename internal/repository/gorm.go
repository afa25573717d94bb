package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/talkincode/wacrm/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRepository is the GORM implementation of Repository
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a new GORM-based repository
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) PutQR(ctx context.Context, q *domain.WhatsAppQRCode) error {
	upsert := clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}},
		UpdateAll: true,
	}
	if q.Status != domain.QRStatusScanned {
		upsert.Where = clause.Where{Exprs: []clause.Expression{
			clause.Neq{Column: clause.Column{Table: domain.WhatsAppQRCode{}.TableName(), Name: "status"}, Value: domain.QRStatusScanned},
		}}
	}
	res := r.db.WithContext(ctx).Clauses(upsert).Create(q)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrQRScanned
	}
	return nil
}

func (r *GormRepository) UpdateQRStatus(ctx context.Context, tenantID, status string) error {
	res := r.db.WithContext(ctx).
		Model(&domain.WhatsAppQRCode{}).
		Where("tenant_id = ?", tenantID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepository) GetQR(ctx context.Context, tenantID string) (*domain.WhatsAppQRCode, error) {
	var q domain.WhatsAppQRCode
	err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *GormRepository) GetQRPrompt(ctx context.Context, tenantID string) (string, error) {
	var q domain.WhatsAppQRCode
	err := r.db.WithContext(ctx).
		Select("prompt").
		Where("tenant_id = ?", tenantID).
		First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return q.Prompt, nil
}

func (r *GormRepository) PutConversation(ctx context.Context, rec *domain.CRMRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(rec).Error
}

func (r *GormRepository) ListConversations(ctx context.Context, tenantID string) ([]*domain.CRMRecord, error) {
	var recs []*domain.CRMRecord
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("conversation_id ASC").
		Find(&recs).Error
	return recs, err
}

// Close is a no-op, the gorm handle is owned by the application.
func (r *GormRepository) Close() error {
	return nil
}
