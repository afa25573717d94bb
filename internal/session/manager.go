package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/talkincode/wacrm/internal/domain"
	"github.com/talkincode/wacrm/internal/export"
	"github.com/talkincode/wacrm/internal/repository"
	"github.com/talkincode/wacrm/internal/whatsapp"
	"go.uber.org/zap"
)

// TopicTransition is published with (tenantID, from, to string) on every
// state change.
const TopicTransition = "session:transition"

var (
	ErrMissingPrompt    = errors.New("prompt is required")
	ErrAlreadyScanned   = errors.New("qr code already scanned for this tenant")
	ErrAlreadyStarted   = errors.New("session already started for this tenant")
	ErrNoSession        = errors.New("no active session for this tenant")
	ErrNotAuthenticated = errors.New("session is not authenticated")
	ErrChallengeTimeout = errors.New("timed out waiting for qr challenge")
	ErrAuthFailed       = errors.New("authentication failed")
	ErrDisconnected     = errors.New("session disconnected")
)

// Exporter runs one export over a borrowed source.
type Exporter interface {
	Export(ctx context.Context, tenantID string, src export.Source, opts export.Options) (*export.Summary, error)
}

// Submitter runs tasks on a bounded worker pool. *ants.Pool satisfies it.
type Submitter interface {
	Submit(task func()) error
}

type Config struct {
	ChallengeTimeout time.Duration
	PendingTTL       time.Duration
	Export           export.Options
}

// StartRequest is an admission request for a tenant session.
type StartRequest struct {
	TenantID string
	Prompt   string
	Origin   string
	Options  export.Options
}

// StartResult is returned once the first challenge is persisted, or when a
// previously paired device authenticated without one.
type StartResult struct {
	Authenticated bool `json:"authenticated"`
}

// Manager drives tenant sessions: it feeds engine events through Transition
// and executes the resulting effects.
type Manager struct {
	registry *Registry
	factory  whatsapp.Factory
	qrs      repository.QRRepository
	exporter Exporter
	pool     Submitter
	bus      EventBus.Bus
	cfg      Config
	now      func() time.Time
}

func NewManager(reg *Registry, factory whatsapp.Factory, qrs repository.QRRepository,
	exporter Exporter, pool Submitter, bus EventBus.Bus, cfg Config) *Manager {
	if cfg.ChallengeTimeout <= 0 {
		cfg.ChallengeTimeout = time.Minute
	}
	return &Manager{
		registry: reg,
		factory:  factory,
		qrs:      qrs,
		exporter: exporter,
		pool:     pool,
		bus:      bus,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

// Start admits a new session for req.TenantID and waits for the first
// pairing challenge. Admission is checked in order: missing prompt, scanned
// QR record, live session.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return nil, ErrMissingPrompt
	}
	qr, err := m.qrs.GetQR(ctx, req.TenantID)
	switch {
	case err == nil && qr.IsScanned():
		return nil, ErrAlreadyScanned
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("read qr record: %w", err)
	}
	if m.registry.Get(req.TenantID) != nil {
		return nil, ErrAlreadyStarted
	}

	opts := req.Options
	if opts.MaxChats <= 0 {
		opts.MaxChats = m.cfg.Export.MaxChats
	}
	if opts.MaxMessagesPerChat <= 0 {
		opts.MaxMessagesPerChat = m.cfg.Export.MaxMessagesPerChat
	}
	sess := newSession(req.TenantID, req.Prompt, req.Origin, opts.WithDefaults(), m.now())
	if !m.registry.Add(sess) {
		return nil, ErrAlreadyStarted
	}
	log := zap.L().With(zap.String("tenant", req.TenantID))

	client, err := m.factory.NewClient(ctx, req.TenantID, func(evt whatsapp.Event) {
		m.handleEngineEvent(sess, evt)
	})
	if err != nil {
		m.registry.RemoveIf(req.TenantID, sess)
		log.Error("session: client creation failed", zap.Error(err))
		return nil, fmt.Errorf("create client: %w", err)
	}
	sess.mu.Lock()
	sess.client = client
	sess.mu.Unlock()

	if err := client.Connect(ctx); err != nil {
		log.Error("session: connect failed", zap.Error(err))
		m.apply(sess, ConnectionLost{Reason: "connect failed"})
		return nil, fmt.Errorf("connect: %w", err)
	}

	wctx, cancel := context.WithTimeout(ctx, m.cfg.ChallengeTimeout)
	defer cancel()
	reply, err := sess.slot.Wait(wctx)
	if err != nil {
		log.Warn("session: no challenge before timeout, tearing down", zap.Duration("timeout", m.cfg.ChallengeTimeout))
		m.apply(sess, ConnectionLost{Reason: "challenge timeout"})
		return nil, ErrChallengeTimeout
	}
	if reply.Err != nil {
		m.apply(sess, ConnectionLost{Reason: "start failed"})
		return nil, reply.Err
	}
	log.Info("session: started", zap.Bool("authenticated", reply.Authenticated))
	return &StartResult{Authenticated: reply.Authenticated}, nil
}

func (m *Manager) handleEngineEvent(sess *Session, evt whatsapp.Event) {
	switch e := evt.(type) {
	case whatsapp.QRCode:
		m.apply(sess, ChallengeIssued{Code: e.Code})
	case whatsapp.PairSuccess:
		zap.L().Info("session: device paired", zap.String("tenant", sess.TenantID), zap.String("jid", e.JID))
	case whatsapp.LoggedIn:
		m.apply(sess, AuthSucceeded{JID: e.JID})
	case whatsapp.AuthFailure:
		m.apply(sess, AuthFailed{Reason: e.Reason})
	case whatsapp.Disconnected:
		m.apply(sess, ConnectionLost{Reason: e.Reason})
	}
}

// apply runs one transition under the session lock and executes its effects
// outside of it.
func (m *Manager) apply(sess *Session, evt Event) {
	sess.mu.Lock()
	from := sess.state
	to, effects := Transition(from, evt)
	sess.state = to
	if to == Authenticated && from != to {
		sess.authAt = m.now()
	}
	sess.mu.Unlock()

	if from != to {
		zap.L().Info("session: state changed",
			zap.String("tenant", sess.TenantID),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
		if m.bus != nil {
			m.bus.Publish(TopicTransition, sess.TenantID, from.String(), to.String())
		}
	}
	for _, eff := range effects {
		m.execute(sess, eff)
	}
}

func (m *Manager) execute(sess *Session, eff Effect) {
	log := zap.L().With(zap.String("tenant", sess.TenantID))
	switch e := eff.(type) {
	case PersistChallenge:
		if err := m.persistChallenge(sess, e.Code); err != nil {
			log.Error("session: persist qr record failed", zap.Error(err))
			sess.slot.Fill(Reply{Err: err})
		}
	case ReplyReady:
		sess.slot.Fill(Reply{Authenticated: e.Authenticated})
	case ReplyFailed:
		sess.slot.Fill(Reply{Err: e.Err})
	case MarkScanned:
		m.markScanned(sess)
	case StartExport:
		m.startExport(sess)
	case LogAuthFailure:
		log.Warn("session: authentication failed", zap.String("reason", e.Reason))
	case CancelExport:
		sess.mu.Lock()
		cancel := sess.exportCancel
		sess.exportCancel = nil
		sess.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	case ReleaseHandle:
		if cli := sess.Client(); cli != nil {
			// may run inside the engine's own event callback
			go cli.Disconnect()
		}
	case Unregister:
		if m.registry.RemoveIf(sess.TenantID, sess) {
			log.Info("session: removed from registry")
		}
	}
}

// persistChallenge writes the pending record. A challenge whose effect runs
// after authentication is dropped; the repository never downgrades a scanned
// record.
func (m *Manager) persistChallenge(sess *Session, code string) error {
	if st := sess.State(); st != AwaitingScan {
		zap.L().Debug("session: stale challenge dropped", zap.String("tenant", sess.TenantID), zap.String("state", st.String()))
		return nil
	}
	img, err := whatsapp.EncodeQR(code)
	if err != nil {
		return fmt.Errorf("encode qr: %w", err)
	}
	err = m.qrs.PutQR(context.Background(), &domain.WhatsAppQRCode{
		TenantID: sess.TenantID,
		QRCode:   img,
		Status:   domain.QRStatusPending,
		Origin:   sess.origin,
		Prompt:   sess.prompt,
	})
	if errors.Is(err, repository.ErrQRScanned) {
		zap.L().Info("session: challenge after scan dropped", zap.String("tenant", sess.TenantID))
		return nil
	}
	return err
}

// markScanned is best effort: the connection already succeeded.
func (m *Manager) markScanned(sess *Session) {
	ctx := context.Background()
	err := m.qrs.UpdateQRStatus(ctx, sess.TenantID, domain.QRStatusScanned)
	if errors.Is(err, repository.ErrNotFound) {
		// paired device, no challenge was issued in this process
		err = m.qrs.PutQR(ctx, &domain.WhatsAppQRCode{
			TenantID: sess.TenantID,
			Status:   domain.QRStatusScanned,
			Origin:   sess.origin,
			Prompt:   sess.prompt,
		})
	}
	if err != nil {
		zap.L().Warn("session: mark qr scanned failed", zap.String("tenant", sess.TenantID), zap.Error(err))
	}
}

func (m *Manager) startExport(sess *Session) {
	sess.mu.Lock()
	if sess.state == Disconnected {
		sess.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	sess.exportCancel = cancel
	src := sess.client
	opts := sess.opts
	sess.mu.Unlock()

	log := zap.L().With(zap.String("tenant", sess.TenantID))
	task := func() {
		defer cancel()
		if ctx.Err() != nil {
			// disconnected while queued
			return
		}
		defer func() {
			if err := recover(); err != nil {
				log.Error("session: export panic", zap.Any("panic", err))
				m.apply(sess, ExportFinished{Err: fmt.Errorf("export panic: %v", err)})
			}
		}()
		m.apply(sess, ExportStarted{})
		_, err := m.exporter.Export(ctx, sess.TenantID, src, opts)
		if err != nil {
			log.Error("session: export run failed", zap.Error(err))
		}
		m.apply(sess, ExportFinished{Err: err})
	}
	// Submit blocks while the pool is full; the engine's event goroutine must not.
	go func() {
		if err := m.pool.Submit(task); err != nil {
			cancel()
			log.Error("session: export submit failed", zap.Error(err))
			m.apply(sess, ExportFinished{Err: err})
		}
	}()
}

// SendMessage sends text through the tenant's live session.
func (m *Manager) SendMessage(ctx context.Context, tenantID, recipient, text string) error {
	sess := m.registry.Get(tenantID)
	if sess == nil {
		return ErrNoSession
	}
	cli := sess.Client()
	if !sess.State().Live() || cli == nil || !cli.IsLoggedIn() {
		return ErrNotAuthenticated
	}
	return cli.SendText(ctx, recipient, text)
}

// Logout disconnects the tenant's session.
func (m *Manager) Logout(tenantID string) error {
	sess := m.registry.Get(tenantID)
	if sess == nil {
		return ErrNoSession
	}
	m.apply(sess, ConnectionLost{Reason: "logout"})
	return nil
}

// Sessions lists live sessions.
func (m *Manager) Sessions() []Info {
	list := m.registry.List()
	out := make([]Info, 0, len(list))
	for _, s := range list {
		out = append(out, s.Info())
	}
	return out
}

// Reap disconnects sessions that stayed unauthenticated longer than the
// pending TTL and returns how many were removed.
func (m *Manager) Reap(now time.Time) int {
	if m.cfg.PendingTTL <= 0 {
		return 0
	}
	n := 0
	for _, s := range m.registry.List() {
		if s.State().Pending() && now.Sub(s.CreatedAt) > m.cfg.PendingTTL {
			zap.L().Info("session: reaping stuck session",
				zap.String("tenant", s.TenantID),
				zap.Duration("age", now.Sub(s.CreatedAt)))
			m.apply(s, ConnectionLost{Reason: "pending ttl expired"})
			n++
		}
	}
	return n
}

// Shutdown disconnects every session.
func (m *Manager) Shutdown() {
	for _, s := range m.registry.List() {
		m.apply(s, ConnectionLost{Reason: "shutdown"})
	}
}
