package app

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/talkincode/wacrm/internal/export"
	"github.com/talkincode/wacrm/internal/session"
	"go.uber.org/zap"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() error {
	loc, _ := time.LoadLocation(a.appConfig.System.Location)
	if loc == nil {
		loc = time.Local
	}
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	interval := a.appConfig.WhatsApp.ReapInterval
	if interval <= 0 {
		interval = time.Minute
	}
	_, err := a.sched.AddFunc(fmt.Sprintf("@every %s", interval), a.SchedReapSessionsTask)
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
		return err
	}
	return nil
}

// SchedReapSessionsTask disconnects sessions stuck before authentication.
func (a *Application) SchedReapSessionsTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()
	if n := a.sessions.Reap(time.Now()); n > 0 {
		zap.L().Info("app: reaped pending sessions", zap.Int("count", n))
	}
}

func (a *Application) subscribeEvents() {
	subs := map[string]interface{}{
		session.TopicTransition: func(tenant, from, to string) {
			zap.L().Debug("app: session transition",
				zap.String("tenant", tenant), zap.String("from", from), zap.String("to", to))
		},
		export.TopicFinished: func(sum *export.Summary) {
			zap.L().Info("app: export run finished",
				zap.String("tenant", sum.TenantID),
				zap.String("run", sum.RunID),
				zap.Int("written", sum.Written),
				zap.Float64("median_lead_score", sum.MedianLeadScore))
		},
	}
	for topic, fn := range subs {
		if err := a.bus.SubscribeAsync(topic, fn, false); err != nil {
			zap.L().Error("app: event subscription failed", zap.String("topic", topic), zap.Error(err))
		}
	}
}
