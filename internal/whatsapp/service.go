package whatsapp

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/talkincode/wacrm/config"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
)

var safeTenantRe = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// Service creates whatsmeow clients, one device store per tenant.
type Service struct {
	dir         string
	historyWait time.Duration
	log         waLog.Logger

	// containers keyed by tenant id
	containers    map[string]*sqlstore.Container
	containersMux sync.Mutex
}

var _ Factory = (*Service)(nil)

// New creates the service. Device stores are sqlite files under
// whatsapp.store_dir.
func New(cfg *config.AppConfig) (*Service, error) {
	dir := cfg.GetStoreDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		zap.L().Error("whatsapp: failed to create store dir", zap.Error(err), zap.String("dir", dir))
		return nil, fmt.Errorf("create whatsmeow store dir: %w", err)
	}
	svc := &Service{
		dir:         dir,
		historyWait: cfg.WhatsApp.HistoryWait,
		log:         NewLogger("whatsmeow", cfg.WhatsApp.LogLevel),
		containers:  make(map[string]*sqlstore.Container),
	}
	zap.L().Info("whatsapp: service initialized", zap.String("dir", dir))
	return svc, nil
}

// storeFile maps a tenant id to a file name, ids with unsafe characters are
// hex encoded.
func storeFile(dir, tenantID string) string {
	name := tenantID
	if !safeTenantRe.MatchString(tenantID) {
		name = "x" + hex.EncodeToString([]byte(tenantID))
	}
	return filepath.Join(dir, name+".db")
}

func (s *Service) container(ctx context.Context, tenantID string) (*sqlstore.Container, error) {
	s.containersMux.Lock()
	defer s.containersMux.Unlock()
	if c, ok := s.containers[tenantID]; ok {
		return c, nil
	}
	path := storeFile(s.dir, tenantID)
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", path)
	c, err := sqlstore.New(ctx, "sqlite3", dsn, s.log.Sub("Database"))
	if err != nil {
		zap.L().Error("whatsapp: sqlstore open failed", zap.Error(err), zap.String("tenant", tenantID))
		return nil, errors.Wrapf(err, "open device store for %s", tenantID)
	}
	s.containers[tenantID] = c
	return c, nil
}

// NewClient returns a client for the tenant's stored device, or a fresh
// device that will pair through a QR challenge.
func (s *Service) NewClient(ctx context.Context, tenantID string, handler EventHandler) (Client, error) {
	c, err := s.container(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	dev, err := c.GetFirstDevice(ctx)
	if err != nil {
		zap.L().Error("whatsapp: failed to load device", zap.Error(err), zap.String("tenant", tenantID))
		return nil, errors.Wrap(err, "load device")
	}
	cli := whatsmeow.NewClient(dev, s.log.Sub("Client/"+tenantID))
	zap.L().Info("whatsapp: registering client",
		zap.String("tenant", tenantID),
		zap.Bool("has_jid", dev.ID != nil))
	return newMeowClient(tenantID, cli, handler, s.historyWait), nil
}

// Close releases all device stores.
func (s *Service) Close() {
	s.containersMux.Lock()
	defer s.containersMux.Unlock()
	for tenant, c := range s.containers {
		if err := c.Close(); err != nil {
			zap.L().Warn("whatsapp: close device store failed", zap.Error(err), zap.String("tenant", tenant))
		}
		delete(s.containers, tenant)
	}
}
