package classifier

import (
	"bytes"
	"context"
	"strings"
	"text/template"
	"time"

	"github.com/talkincode/wacrm/internal/classifier/prompts"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	defaultTmpl = template.Must(template.New("default").Parse(prompts.DefaultTemplate))
	tenantTmpl  = template.Must(template.New("tenant").Parse(prompts.TenantTemplate))
)

// Input is one conversation to classify.
type Input struct {
	Contact    string
	Transcript string
	// Instruction is the tenant prompt, empty selects the built-in
	// real-estate template.
	Instruction string
}

// Classifier turns conversations into CRM fields. It never fails: any model,
// transport or format problem yields the default analysis.
type Classifier struct {
	llm    Completer
	sem    *semaphore.Weighted
	system string
	now    func() time.Time
}

// New creates a classifier allowing at most maxConcurrent model calls in
// flight across all tenants.
func New(llm Completer, maxConcurrent int64) *Classifier {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Classifier{
		llm:    llm,
		sem:    semaphore.NewWeighted(maxConcurrent),
		system: strings.TrimSpace(prompts.SystemPrompt),
		now:    time.Now,
	}
}

// BuildPrompt renders the user message for a conversation.
func BuildPrompt(in Input) (string, error) {
	tmpl := defaultTmpl
	if strings.TrimSpace(in.Instruction) != "" {
		tmpl = tenantTmpl
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, in); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (c *Classifier) Classify(ctx context.Context, in Input) Analysis {
	defaults := Defaults(c.now())

	user, err := BuildPrompt(in)
	if err != nil {
		zap.L().Error("classifier: render prompt failed", zap.Error(err))
		return defaults
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		zap.L().Warn("classifier: cancelled waiting for a model slot", zap.Error(err))
		return defaults
	}
	text, err := c.llm.Complete(ctx, c.system, user)
	c.sem.Release(1)
	if err != nil {
		zap.L().Warn("classifier: model call failed", zap.Error(err), zap.String("contact", in.Contact))
		return defaults
	}

	obj, ok := ExtractJSONObject(text)
	if !ok {
		zap.L().Warn("classifier: no json object in model output",
			zap.String("contact", in.Contact), zap.Int("output_len", len(text)))
		return defaults
	}
	return Normalize(obj, c.now())
}
