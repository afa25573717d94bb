package export

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/bwmarrin/snowflake"
	"github.com/talkincode/wacrm/internal/classifier"
	"github.com/talkincode/wacrm/internal/domain"
	"github.com/talkincode/wacrm/internal/repository"
)

type stubClassifier struct {
	mu     sync.Mutex
	inputs []classifier.Input
	score  int
}

func (s *stubClassifier) Classify(_ context.Context, in classifier.Input) classifier.Analysis {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, in)
	a := classifier.Defaults(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))
	a.LeadScore = s.score
	return a
}

type memStore struct {
	mu      sync.Mutex
	prompt  string
	records map[string]*domain.CRMRecord
	failOn  string
}

func newMemStore() *memStore {
	return &memStore{records: map[string]*domain.CRMRecord{}}
}

func (m *memStore) GetQRPrompt(_ context.Context, _ string) (string, error) {
	if m.prompt == "" {
		return "", repository.ErrNotFound
	}
	return m.prompt, nil
}

func (m *memStore) PutConversation(_ context.Context, r *domain.CRMRecord) error {
	if r.ConversationID == m.failOn {
		return errors.New("disk full")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.TenantID+"/"+r.ConversationID] = r
	return nil
}

func newTestCoordinator(t *testing.T, cls Classifier, store *memStore, bus EventBus.Bus) *Coordinator {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatal(err)
	}
	return NewCoordinator(Paginator{}, cls, store, store, bus, node)
}

func TestExportWritesOneRecordPerConversation(t *testing.T) {
	src := newFakeSource()
	src.addChat("5215550001", "Ana", 3)
	src.addChat("5215550002", "Luis", 1500)
	store := newMemStore()
	store.prompt = "classify real estate leads"
	cls := &stubClassifier{score: 6}

	sum, err := newTestCoordinator(t, cls, store, nil).
		Export(context.Background(), "acme", src, Options{MaxMessagesPerChat: 1000})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(store.records) != 2 || sum.Written != 2 {
		t.Fatalf("records = %d, written = %d, want 2", len(store.records), sum.Written)
	}
	small := store.records["acme/5215550001"]
	big := store.records["acme/5215550002"]
	if small == nil || big == nil {
		t.Fatalf("missing records: %v", store.records)
	}
	if len(small.Messages) != 3 {
		t.Errorf("small conversation has %d messages, want 3", len(small.Messages))
	}
	if len(big.Messages) != 1000 {
		t.Errorf("big conversation has %d messages, want 1000", len(big.Messages))
	}
	if sum.Messages != 1003 {
		t.Errorf("Summary.Messages = %d, want 1003", sum.Messages)
	}
	if small.ContactName != "Ana" || small.ContactPhone != "5215550001" || small.LeadScore != 6 {
		t.Errorf("small record = %+v", small)
	}
	if small.Messages[0].Sender != "Ana" || small.Messages[1].Sender != SenderMe {
		t.Errorf("senders = %q, %q", small.Messages[0].Sender, small.Messages[1].Sender)
	}
	for _, in := range cls.inputs {
		if in.Instruction != "classify real estate leads" {
			t.Errorf("Instruction = %q, want stored prompt", in.Instruction)
		}
	}
	if sum.MeanLeadScore != 6 || sum.MedianLeadScore != 6 {
		t.Errorf("scores = %v/%v, want 6/6", sum.MeanLeadScore, sum.MedianLeadScore)
	}
	if sum.RunID == "" {
		t.Error("RunID is empty")
	}
}

func TestExportSkipsConversationOnFetchFailure(t *testing.T) {
	src := newFakeSource()
	src.addChat("a", "A", 5)
	src.addChat("b", "B", 5)
	src.addChat("c", "C", 5)
	src.failOn["b"] = errors.New("history unavailable")
	store := newMemStore()

	sum, err := newTestCoordinator(t, &stubClassifier{}, store, nil).
		Export(context.Background(), "acme", src, Options{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if sum.Written != 2 || sum.FetchFailed != 1 {
		t.Errorf("summary = %+v, want 2 written 1 failed", sum)
	}
	if _, ok := store.records["acme/b"]; ok {
		t.Error("failed conversation was written")
	}
}

func TestExportContinuesAfterWriteFailure(t *testing.T) {
	src := newFakeSource()
	src.addChat("a", "A", 2)
	src.addChat("b", "B", 2)
	store := newMemStore()
	store.failOn = "a"

	sum, err := newTestCoordinator(t, &stubClassifier{}, store, nil).
		Export(context.Background(), "acme", src, Options{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if sum.WriteFailed != 1 || sum.Written != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if _, ok := store.records["acme/b"]; !ok {
		t.Error("conversation after the failed write was not exported")
	}
}

func TestExportAbortsWhenChatListFails(t *testing.T) {
	src := newFakeSource()
	src.listErr = errors.New("not connected")
	_, err := newTestCoordinator(t, &stubClassifier{}, newMemStore(), nil).
		Export(context.Background(), "acme", src, Options{})
	if err == nil {
		t.Error("Export() error = nil, want list failure")
	}
}

func TestExportStopsWhenCancelled(t *testing.T) {
	src := newFakeSource()
	src.addChat("a", "A", 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := newMemStore()
	_, err := newTestCoordinator(t, &stubClassifier{}, store, nil).Export(ctx, "acme", src, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Export() error = %v, want context.Canceled", err)
	}
	if len(store.records) != 0 {
		t.Errorf("records = %d, want 0", len(store.records))
	}
}

func TestExportPublishesProgress(t *testing.T) {
	src := newFakeSource()
	src.addChat("a", "A", 2)
	bus := EventBus.New()
	var (
		mu       sync.Mutex
		exported []string
		finished *Summary
	)
	_ = bus.Subscribe(TopicConversation, func(tenant, chat string, n int) {
		mu.Lock()
		defer mu.Unlock()
		exported = append(exported, tenant+"/"+chat)
	})
	_ = bus.Subscribe(TopicFinished, func(s *Summary) {
		mu.Lock()
		defer mu.Unlock()
		finished = s
	})

	if _, err := newTestCoordinator(t, &stubClassifier{}, newMemStore(), bus).
		Export(context.Background(), "acme", src, Options{}); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(exported) != 1 || exported[0] != "acme/a" {
		t.Errorf("exported events = %v", exported)
	}
	if finished == nil || finished.Written != 1 {
		t.Errorf("finished event = %+v", finished)
	}
}

func TestTranscript(t *testing.T) {
	msgs := []domain.Message{
		{Body: "hola, busco casa"},
		{FromMe: true, Body: "claro\n¿en qué zona?"},
	}
	got := Transcript(msgs, "Ana")
	want := "Ana: hola, busco casa\nme: claro ¿en qué zona?"
	if got != want {
		t.Errorf("Transcript() = %q, want %q", got, want)
	}
	if Transcript(nil, "Ana") != "" {
		t.Error("empty transcript expected")
	}
	if !strings.HasPrefix(Transcript([]domain.Message{{Sender: "x@s", Body: "b"}}, ""), "x@s: ") {
		t.Error("sender should fall back to the raw sender")
	}
}
