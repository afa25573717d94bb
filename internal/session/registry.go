package session

import (
	"sort"
	"sync"
	"time"

	"github.com/talkincode/wacrm/internal/export"
	"github.com/talkincode/wacrm/internal/whatsapp"
)

// Session is one tenant's in-memory session. It owns its client handle.
type Session struct {
	TenantID  string
	CreatedAt time.Time

	prompt string
	origin string
	opts   export.Options
	slot   *ResponseSlot

	mu           sync.Mutex
	state        State
	client       whatsapp.Client
	authAt       time.Time
	exportCancel func()
}

func newSession(tenantID, prompt, origin string, opts export.Options, now time.Time) *Session {
	return &Session{
		TenantID:  tenantID,
		CreatedAt: now,
		prompt:    prompt,
		origin:    origin,
		opts:      opts,
		slot:      NewResponseSlot(),
		state:     Initializing,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Client() whatsapp.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// Info is a read-only snapshot of a Session.
type Info struct {
	TenantID        string     `json:"tenant_id"`
	State           string     `json:"state"`
	Origin          string     `json:"origin"`
	CreatedAt       time.Time  `json:"created_at"`
	AuthenticatedAt *time.Time `json:"authenticated_at,omitempty"`
}

func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		TenantID:  s.TenantID,
		State:     s.state.String(),
		Origin:    s.origin,
		CreatedAt: s.CreatedAt,
	}
	if !s.authAt.IsZero() {
		at := s.authAt
		info.AuthenticatedAt = &at
	}
	return info
}

// Registry maps tenant ids to live sessions. At most one session per tenant.
type Registry struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Get(tenantID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[tenantID]
}

// Add registers s unless the tenant already has a session.
func (r *Registry) Add(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.TenantID]; ok {
		return false
	}
	r.sessions[s.TenantID] = s
	return true
}

// RemoveIf removes the tenant's entry only when it is still s, so a late
// teardown never evicts a newer session.
func (r *Registry) RemoveIf(tenantID string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[tenantID]; ok && cur == s {
		delete(r.sessions, tenantID)
		return true
	}
	return false
}

// List returns the sessions ordered by tenant id.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
