package export

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/bwmarrin/snowflake"
	"github.com/montanaflynn/stats"
	"github.com/talkincode/wacrm/internal/classifier"
	"github.com/talkincode/wacrm/internal/domain"
	"github.com/talkincode/wacrm/internal/repository"
	"go.uber.org/zap"
)

const (
	TopicConversation = "export:conversation"
	TopicFinished     = "export:finished"

	// SenderMe tags messages sent by the session owner.
	SenderMe = "me"
)

// Classifier analyzes one conversation, it must not fail.
type Classifier interface {
	Classify(ctx context.Context, in classifier.Input) classifier.Analysis
}

// PromptSource resolves the tenant's stored classification instruction.
type PromptSource interface {
	GetQRPrompt(ctx context.Context, tenantID string) (string, error)
}

// RecordWriter persists exported conversations.
type RecordWriter interface {
	PutConversation(ctx context.Context, r *domain.CRMRecord) error
}

// Summary describes a finished export run.
type Summary struct {
	RunID           string        `json:"run_id"`
	TenantID        string        `json:"tenant_id"`
	Conversations   int           `json:"conversations"`
	Written         int           `json:"written"`
	FetchFailed     int           `json:"fetch_failed"`
	WriteFailed     int           `json:"write_failed"`
	Messages        int           `json:"messages"`
	MeanLeadScore   float64       `json:"mean_lead_score"`
	MedianLeadScore float64       `json:"median_lead_score"`
	Duration        time.Duration `json:"duration"`
}

// Coordinator runs the export of a tenant's conversations: list, paginate,
// classify and write one CRM record per conversation.
//
// Failure policy: a failure listing conversations aborts the run. A failure
// fetching one conversation's messages, or writing its record, is logged
// and that conversation is skipped; the run goes on with the rest.
type Coordinator struct {
	paginator  Paginator
	classifier Classifier
	prompts    PromptSource
	records    RecordWriter
	bus        EventBus.Bus
	ids        *snowflake.Node
	now        func() time.Time
}

func NewCoordinator(p Paginator, c Classifier, prompts PromptSource, records RecordWriter, bus EventBus.Bus, ids *snowflake.Node) *Coordinator {
	return &Coordinator{
		paginator:  p,
		classifier: c,
		prompts:    prompts,
		records:    records,
		bus:        bus,
		ids:        ids,
		now:        time.Now,
	}
}

func (c *Coordinator) publish(topic string, args ...interface{}) {
	if c.bus != nil {
		c.bus.Publish(topic, args...)
	}
}

// resolvePrompt reads the instruction stored with the tenant's QR record,
// empty selects the classifier's built-in template.
func (c *Coordinator) resolvePrompt(ctx context.Context, tenantID string) string {
	prompt, err := c.prompts.GetQRPrompt(ctx, tenantID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		zap.L().Warn("export: prompt lookup failed, using default template",
			zap.String("tenant", tenantID), zap.Error(err))
	}
	return prompt
}

// Export runs one export. src is borrowed for the duration of the call.
func (c *Coordinator) Export(ctx context.Context, tenantID string, src Source, opts Options) (*Summary, error) {
	opts = opts.WithDefaults()
	start := c.now()
	sum := &Summary{RunID: c.ids.Generate().String(), TenantID: tenantID}
	log := zap.L().With(zap.String("tenant", tenantID), zap.String("run", sum.RunID))

	chats, err := c.paginator.Conversations(ctx, src, opts.MaxChats)
	if err != nil {
		log.Error("export: conversation list failed, aborting run", zap.Error(err))
		return sum, err
	}
	sum.Conversations = len(chats)
	log.Info("export: started", zap.Int("conversations", len(chats)),
		zap.Int("max_messages", opts.MaxMessagesPerChat))

	prompt := c.resolvePrompt(ctx, tenantID)
	var scores stats.Float64Data

	for _, chat := range chats {
		if err := ctx.Err(); err != nil {
			log.Warn("export: cancelled", zap.Error(err), zap.Int("written", sum.Written))
			return sum, err
		}
		msgs, err := c.paginator.Messages(ctx, src, chat.ID, opts.MaxMessagesPerChat)
		if err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			sum.FetchFailed++
			log.Warn("export: skipping conversation, message fetch failed",
				zap.String("chat", chat.ID), zap.Error(err))
			continue
		}

		contact := contactName(chat)
		analysis := c.classifier.Classify(ctx, classifier.Input{
			Contact:     contact,
			Transcript:  Transcript(msgs, contact),
			Instruction: prompt,
		})
		rec := buildRecord(tenantID, chat, contact, msgs, analysis, c.now())

		if err := c.records.PutConversation(ctx, rec); err != nil {
			sum.WriteFailed++
			log.Error("export: record write failed", zap.String("chat", chat.ID), zap.Error(err))
			continue
		}
		sum.Written++
		sum.Messages += len(msgs)
		scores = append(scores, float64(analysis.LeadScore))
		log.Info("export: conversation exported",
			zap.String("chat", chat.ID),
			zap.Int("messages", len(msgs)),
			zap.Int("lead_score", analysis.LeadScore),
			zap.String("lead_stage", analysis.LeadStage))
		c.publish(TopicConversation, tenantID, chat.ID, len(msgs))
	}

	if len(scores) > 0 {
		sum.MeanLeadScore, _ = scores.Mean()
		sum.MedianLeadScore, _ = scores.Median()
	}
	sum.Duration = c.now().Sub(start)
	log.Info("export: finished",
		zap.Int("written", sum.Written),
		zap.Int("fetch_failed", sum.FetchFailed),
		zap.Int("write_failed", sum.WriteFailed),
		zap.Int("messages", sum.Messages),
		zap.Float64("mean_lead_score", sum.MeanLeadScore),
		zap.Duration("duration", sum.Duration))
	c.publish(TopicFinished, sum)
	return sum, nil
}

func contactName(chat domain.Chat) string {
	for _, n := range []string{chat.Name, chat.Phone, chat.ID} {
		if n = strings.TrimSpace(n); n != "" {
			return n
		}
	}
	return ""
}

func senderTag(m domain.Message, contact string) string {
	if m.FromMe {
		return SenderMe
	}
	if contact != "" {
		return contact
	}
	return m.Sender
}

// Transcript joins messages as "sender: body" lines in retrieval order.
func Transcript(msgs []domain.Message, contact string) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(senderTag(m, contact))
		b.WriteString(": ")
		b.WriteString(strings.ReplaceAll(m.Body, "\n", " "))
	}
	return b.String()
}

func buildRecord(tenantID string, chat domain.Chat, contact string, msgs []domain.Message, a classifier.Analysis, now time.Time) *domain.CRMRecord {
	lines := make(domain.CRMMessages, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, domain.CRMMessage{
			Sender:    senderTag(m, contact),
			Body:      m.Body,
			Timestamp: m.Timestamp.Format(time.RFC3339),
		})
	}
	return &domain.CRMRecord{
		TenantID:       tenantID,
		ConversationID: chat.ID,
		ContactName:    contact,
		ContactPhone:   chat.Phone,
		Messages:       lines,
		FollowUp:       a.FollowUp,
		LastMessageAt:  a.LastMessageAt,
		IsCustomer:     a.IsCustomer,
		Summary:        a.Summary,
		LeadScore:      a.LeadScore,
		LeadStage:      a.LeadStage,
		Items:          domain.StringList(a.Items),
		ExportedAt:     now,
	}
}
