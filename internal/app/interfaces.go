package app

import (
	"github.com/asaskevich/EventBus"
	"github.com/robfig/cron/v3"
	"github.com/talkincode/wacrm/config"
	"github.com/talkincode/wacrm/internal/repository"
	"github.com/talkincode/wacrm/internal/session"
)

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// RepositoryProvider provides QR and CRM record access
type RepositoryProvider interface {
	Repo() repository.Repository
}

// SessionProvider provides the tenant session manager
type SessionProvider interface {
	Sessions() *session.Manager
}

// SchedulerProvider provides task scheduling capability
type SchedulerProvider interface {
	Scheduler() *cron.Cron
}

// EventBusProvider provides the in-process event bus
type EventBusProvider interface {
	Bus() EventBus.Bus
}

// AppContext combines all provider interfaces for full application context
// Handlers should depend on specific providers or this combined interface
type AppContext interface {
	ConfigProvider
	RepositoryProvider
	SessionProvider
	SchedulerProvider
	EventBusProvider
}
