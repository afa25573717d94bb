package classifier

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/talkincode/wacrm/config"
	"github.com/talkincode/wacrm/internal/domain"
)

type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	systems []string
	users   []string
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.systems = append(f.systems, system)
	f.users = append(f.users, user)
	return f.reply, f.err
}

func newTestClassifier(llm Completer) *Classifier {
	c := New(llm, 2)
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestClassifyParsesModelOutput(t *testing.T) {
	llm := &fakeCompleter{reply: "Here you go:\n{\"follow_up\": \"Yes\", \"lead_score\": 9, \"items\": [\"Casa 1\"]}\nBye"}
	c := newTestClassifier(llm)

	got := c.Classify(context.Background(), Input{
		Contact:     "Ana",
		Transcript:  "Ana: hola\nme: buenas",
		Instruction: "extract leads",
	})
	if got.FollowUp != domain.FlagYes || got.LeadScore != 9 || len(got.Items) != 1 {
		t.Errorf("Classify() = %+v", got)
	}
	if got.IsCustomer != domain.FlagNo {
		t.Errorf("IsCustomer = %q, want default No", got.IsCustomer)
	}
	if len(llm.users) != 1 {
		t.Fatalf("model called %d times, want 1", len(llm.users))
	}
	if !strings.Contains(llm.users[0], "extract leads") || !strings.Contains(llm.users[0], "Ana: hola") {
		t.Errorf("user prompt misses instruction or transcript:\n%s", llm.users[0])
	}
	if llm.systems[0] == "" {
		t.Error("system prompt is empty")
	}
}

func TestClassifyUsesDefaultTemplateWithoutInstruction(t *testing.T) {
	llm := &fakeCompleter{reply: `{}`}
	c := newTestClassifier(llm)
	c.Classify(context.Background(), Input{Contact: "Luis", Transcript: "Luis: busco casa"})
	if !strings.Contains(llm.users[0], "real-estate") || !strings.Contains(llm.users[0], "Luis: busco casa") {
		t.Errorf("default template not used:\n%s", llm.users[0])
	}
}

func TestClassifyNeverFails(t *testing.T) {
	want := Defaults(fixedNow)
	tests := []struct {
		name string
		llm  *fakeCompleter
	}{
		{"model error", &fakeCompleter{err: errors.New("boom")}},
		{"no json", &fakeCompleter{reply: "Sorry, I cannot help with that."}},
		{"malformed json", &fakeCompleter{reply: `{"lead_score": 5,`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newTestClassifier(tt.llm).Classify(context.Background(), Input{Transcript: "x: y"})
			if got.FollowUp != want.FollowUp || got.IsCustomer != want.IsCustomer ||
				got.LeadScore != 0 || got.LastMessageAt != want.LastMessageAt ||
				got.Summary != "" || got.LeadStage != "" || len(got.Items) != 0 {
				t.Errorf("Classify() = %+v, want defaults", got)
			}
		})
	}
}

func TestClassifyCancelledContext(t *testing.T) {
	c := newTestClassifier(&fakeCompleter{reply: `{"lead_score": 3}`})
	// drain the semaphore so Acquire has to wait
	if err := c.sem.Acquire(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := c.Classify(ctx, Input{Transcript: "a: b"}); got.LeadScore != 0 {
		t.Errorf("LeadScore = %d, want default 0", got.LeadScore)
	}
}

func TestChatClientComplete(t *testing.T) {
	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		bs, _ := io.ReadAll(r.Body)
		gotBody = string(bs)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"{\"lead_score\": 4}"}}]}`)
	}))
	defer srv.Close()

	cli := NewChatClient(config.LLMConfig{
		BaseURL:     srv.URL + "/v1/",
		ApiKey:      "sk-test",
		Model:       "test-model",
		Temperature: 0.2,
		MaxTokens:   600,
		Timeout:     5 * time.Second,
	})
	text, err := cli.Complete(context.Background(), "sys", "usr")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != `{"lead_score": 4}` {
		t.Errorf("Complete() = %q", text)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	for _, want := range []string{`"model":"test-model"`, `"max_tokens":600`, `"n":1`, `"role":"system"`} {
		if !strings.Contains(gotBody, want) {
			t.Errorf("request body %s misses %s", gotBody, want)
		}
	}
}

func TestChatClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"rate limited","type":"requests"}}`)
	}))
	defer srv.Close()

	cli := NewChatClient(config.LLMConfig{BaseURL: srv.URL, Model: "m", Timeout: time.Second})
	_, err := cli.Complete(context.Background(), "s", "u")
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("Complete() error = %v, want rate limited", err)
	}
}
