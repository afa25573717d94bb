package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestResponseSlotFirstWriterWins(t *testing.T) {
	s := NewResponseSlot()
	var (
		wg  sync.WaitGroup
		won int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if s.Fill(Reply{Authenticated: i%2 == 0}) {
				atomic.AddInt32(&won, 1)
			}
		}(i)
	}
	wg.Wait()
	if won != 1 {
		t.Errorf("fills won = %d, want 1", won)
	}
	if !s.Filled() {
		t.Error("Filled() = false after fills")
	}
	first, err := s.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.Fill(Reply{Err: errors.New("late")}) {
		t.Error("late fill succeeded")
	}
	again, _ := s.Wait(context.Background())
	if again != first {
		t.Errorf("reply changed from %+v to %+v", first, again)
	}
}

func TestResponseSlotWaitTimeout(t *testing.T) {
	s := NewResponseSlot()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want deadline exceeded", err)
	}
	if s.Filled() {
		t.Error("Filled() = true on an empty slot")
	}
}
