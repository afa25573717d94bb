package repository

import (
	"bytes"
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/talkincode/wacrm/internal/domain"
	bolt "go.etcd.io/bbolt"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	qrBucket  = []byte("WhatsAppQRCodes")
	crmBucket = []byte("WhatsAppCRM")
)

// crm keys are tenant + 0x00 + conversation so a tenant prefix scan stays exact.
const keySep = 0x00

// BoltRepository stores records as JSON values in two bbolt buckets.
type BoltRepository struct {
	db *bolt.DB
}

// OpenBoltRepository opens (or creates) the database file and its buckets.
func OpenBoltRepository(path string) (*BoltRepository, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open bolt %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{qrBucket, crmBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "init bolt buckets")
	}
	return &BoltRepository{db: db}, nil
}

func (r *BoltRepository) Close() error {
	return r.db.Close()
}

func crmKey(tenantID, conversationID string) []byte {
	k := make([]byte, 0, len(tenantID)+len(conversationID)+1)
	k = append(k, tenantID...)
	k = append(k, keySep)
	return append(k, conversationID...)
}

func (r *BoltRepository) PutQR(ctx context.Context, q *domain.WhatsAppQRCode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	q.UpdatedAt = now
	bs, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(qrBucket)
		if q.Status != domain.QRStatusScanned {
			if v := b.Get([]byte(q.TenantID)); v != nil && json.Get(v, "status").ToString() == domain.QRStatusScanned {
				return ErrQRScanned
			}
		}
		return b.Put([]byte(q.TenantID), bs)
	})
}

func (r *BoltRepository) UpdateQRStatus(ctx context.Context, tenantID, status string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(qrBucket)
		v := b.Get([]byte(tenantID))
		if v == nil {
			return ErrNotFound
		}
		var q domain.WhatsAppQRCode
		if err := json.Unmarshal(v, &q); err != nil {
			return errors.Wrapf(err, "decode qr record %s", tenantID)
		}
		q.Status = status
		q.UpdatedAt = time.Now()
		bs, err := json.Marshal(&q)
		if err != nil {
			return err
		}
		return b.Put([]byte(tenantID), bs)
	})
}

func (r *BoltRepository) GetQR(ctx context.Context, tenantID string) (*domain.WhatsAppQRCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var q *domain.WhatsAppQRCode
	err := r.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(qrBucket).Get([]byte(tenantID))
		if v == nil {
			return ErrNotFound
		}
		q = new(domain.WhatsAppQRCode)
		return json.Unmarshal(v, q)
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (r *BoltRepository) GetQRPrompt(ctx context.Context, tenantID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var prompt string
	err := r.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(qrBucket).Get([]byte(tenantID))
		if v == nil {
			return ErrNotFound
		}
		prompt = json.Get(v, "prompt").ToString()
		return nil
	})
	return prompt, err
}

func (r *BoltRepository) PutConversation(ctx context.Context, rec *domain.CRMRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bs, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(crmBucket).Put(crmKey(rec.TenantID, rec.ConversationID), bs)
	})
}

func (r *BoltRepository) ListConversations(ctx context.Context, tenantID string) ([]*domain.CRMRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := append([]byte(tenantID), keySep)
	var recs []*domain.CRMRecord
	err := r.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(crmBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			rec := new(domain.CRMRecord)
			if err := json.Unmarshal(v, rec); err != nil {
				return errors.Wrapf(err, "decode crm record %q", k)
			}
			recs = append(recs, rec)
		}
		return nil
	})
	return recs, err
}
