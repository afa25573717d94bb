package session

import (
	"context"
	"sync"
)

// Reply is the outcome delivered to the request that started a session.
type Reply struct {
	Authenticated bool
	Err           error
}

// ResponseSlot is a single-assignment reply holder. The first Fill wins,
// later fills are no-ops.
type ResponseSlot struct {
	once  sync.Once
	done  chan struct{}
	reply Reply
}

func NewResponseSlot() *ResponseSlot {
	return &ResponseSlot{done: make(chan struct{})}
}

// Fill stores r if the slot is empty and reports whether it did.
func (s *ResponseSlot) Fill(r Reply) bool {
	filled := false
	s.once.Do(func() {
		s.reply = r
		filled = true
		close(s.done)
	})
	return filled
}

// Filled reports whether a reply has been stored.
func (s *ResponseSlot) Filled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the slot is filled or ctx is done.
func (s *ResponseSlot) Wait(ctx context.Context) (Reply, error) {
	select {
	case <-s.done:
		return s.reply, nil
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}
