package app

import (
	"os"
	"time"
	_ "time/tzdata"

	"github.com/asaskevich/EventBus"
	"github.com/bwmarrin/snowflake"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/talkincode/wacrm/config"
	"github.com/talkincode/wacrm/internal/classifier"
	"github.com/talkincode/wacrm/internal/export"
	"github.com/talkincode/wacrm/internal/repository"
	"github.com/talkincode/wacrm/internal/session"
	"github.com/talkincode/wacrm/internal/whatsapp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

// exportNodeID is the snowflake node used for export run ids.
const exportNodeID int64 = 1

type Application struct {
	appConfig *config.AppConfig
	gormDB    *gorm.DB
	repo      repository.Repository
	wa        *whatsapp.Service
	bus       EventBus.Bus
	pool      *ants.Pool
	sched     *cron.Cron
	sessions  *session.Manager
}

// Ensure Application implements all interfaces
var (
	_ ConfigProvider     = (*Application)(nil)
	_ RepositoryProvider = (*Application)(nil)
	_ SessionProvider    = (*Application)(nil)
	_ SchedulerProvider  = (*Application)(nil)
	_ EventBusProvider   = (*Application)(nil)
	_ AppContext         = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) Repo() repository.Repository {
	return a.repo
}

func (a *Application) Sessions() *session.Manager {
	return a.sessions
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

func (a *Application) Bus() EventBus.Bus {
	return a.bus
}

func initLogger(cfg *config.AppConfig) error {
	var zapConfig zap.Config
	if cfg.Logger.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.OutputPaths = []string{"stdout"}

	var logger *zap.Logger
	if cfg.Logger.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Logger.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}

		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller())
	} else {
		var err error
		logger, err = zapConfig.Build(zap.AddCaller())
		if err != nil {
			return err
		}
	}
	zap.ReplaceGlobals(logger)
	return nil
}

// Init builds every component. Nothing is started until StartBackgroundJobs.
func (a *Application) Init(cfg *config.AppConfig) error {
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	if err := initLogger(cfg); err != nil {
		return errors.Wrap(err, "init logger")
	}

	a.repo, err = a.openRepository(cfg.Database)
	if err != nil {
		return err
	}
	zap.S().Infof("Database connection successful, type: %s", cfg.Database.Type)

	a.wa, err = whatsapp.New(cfg)
	if err != nil {
		return err
	}

	a.bus = EventBus.New()
	a.pool, err = ants.NewPool(cfg.Export.Workers, ants.WithPanicHandler(func(p interface{}) {
		zap.L().Error("app: export worker panic", zap.Any("panic", p))
	}))
	if err != nil {
		return errors.Wrap(err, "create export pool")
	}

	node, err := snowflake.NewNode(exportNodeID)
	if err != nil {
		return errors.Wrap(err, "create snowflake node")
	}
	cls := classifier.New(classifier.NewChatClient(cfg.LLM), cfg.LLM.MaxConcurrency)
	coordinator := export.NewCoordinator(
		export.Paginator{BatchSize: cfg.Export.BatchSize},
		cls, a.repo, a.repo, a.bus, node,
	)

	a.sessions = session.NewManager(session.NewRegistry(), a.wa, a.repo, coordinator, a.pool, a.bus, session.Config{
		ChallengeTimeout: cfg.WhatsApp.ChallengeTimeout,
		PendingTTL:       cfg.WhatsApp.PendingTTL,
		Export: export.Options{
			MaxChats:           cfg.Export.MaxChats,
			MaxMessagesPerChat: cfg.Export.MaxMessagesPerChat,
		},
	})

	a.subscribeEvents()
	return a.initJob()
}

// StartBackgroundJobs starts the scheduler.
func (a *Application) StartBackgroundJobs() {
	if a.sched != nil {
		a.sched.Start()
	}
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		<-a.sched.Stop().Done()
	}
	if a.sessions != nil {
		a.sessions.Shutdown()
	}
	if a.pool != nil {
		if err := a.pool.ReleaseTimeout(10 * time.Second); err != nil {
			zap.L().Warn("app: export pool did not drain", zap.Error(err))
		}
	}
	if a.wa != nil {
		a.wa.Close()
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			zap.L().Warn("app: close repository failed", zap.Error(err))
		}
	}
	_ = zap.L().Sync()
}
