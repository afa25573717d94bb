package app

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/talkincode/wacrm/config"
	"github.com/talkincode/wacrm/internal/domain"
	"github.com/talkincode/wacrm/internal/repository"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openRepository selects the persistence backend from database.type.
func (a *Application) openRepository(cfg config.DBConfig) (repository.Repository, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "bolt":
		path := a.appConfig.GetBoltFile()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "create bolt dir")
		}
		repo, err := repository.OpenBoltRepository(path)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "postgres":
		db, err := getDatabase(cfg)
		if err != nil {
			return nil, err
		}
		a.gormDB = db
		if err := a.MigrateDB(cfg.Debug); err != nil {
			return nil, err
		}
		return repository.NewGormRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}

func getDatabase(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Passwd, cfg.Name)
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if cfg.Debug {
		gcfg.Logger = logger.Default.LogMode(logger.Info)
	}
	db, err := gorm.Open(postgres.Open(dsn), gcfg)
	if err != nil {
		return nil, errors.Wrapf(err, "connect postgres %s:%d/%s", cfg.Host, cfg.Port, cfg.Name)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "postgres pool")
	}
	sqlDB.SetMaxOpenConns(cfg.MaxConn)
	sqlDB.SetMaxIdleConns(cfg.IdleConn)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}

func (a *Application) MigrateDB(track bool) (err error) {
	defer func() {
		if err1 := recover(); err1 != nil {
			if os.Getenv("GO_DEGUB_TRACE") != "" {
				debug.PrintStack()
			}
			if err2, ok := err1.(error); ok {
				err = err2
				zap.S().Error(err2.Error())
			}
		}
	}()
	db := a.gormDB
	if track {
		db = db.Debug()
	}
	if err := db.Migrator().AutoMigrate(domain.Tables...); err != nil {
		zap.S().Error(err)
		return errors.Wrap(err, "migrate tables")
	}
	return nil
}
