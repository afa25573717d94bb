package export

import (
	"context"

	"github.com/pkg/errors"
	"github.com/talkincode/wacrm/internal/domain"
)

const (
	DefaultMaxChats           = 20
	DefaultMaxMessagesPerChat = 1000
	MaxBatchSize              = 100
)

// Source is the part of a messaging session the export reads from.
type Source interface {
	ListChats(ctx context.Context, limit int) ([]domain.Chat, error)
	// FetchMessages returns up to limit messages older than before (exclusive),
	// newest first. An empty before starts at the newest message.
	FetchMessages(ctx context.Context, chatID, before string, limit int) ([]domain.Message, error)
}

// Options bounds one export run. Non-positive values select the defaults.
type Options struct {
	MaxChats           int `json:"maxChats"`
	MaxMessagesPerChat int `json:"maxMessagesPerChat"`
}

func (o Options) WithDefaults() Options {
	if o.MaxChats <= 0 {
		o.MaxChats = DefaultMaxChats
	}
	if o.MaxMessagesPerChat <= 0 {
		o.MaxMessagesPerChat = DefaultMaxMessagesPerChat
	}
	return o
}

// Paginator walks a Source with backward cursor pagination.
type Paginator struct {
	BatchSize int
}

func (p Paginator) batchSize() int {
	if p.BatchSize <= 0 || p.BatchSize > MaxBatchSize {
		return MaxBatchSize
	}
	return p.BatchSize
}

// Conversations returns at most maxChats conversations in source order.
func (p Paginator) Conversations(ctx context.Context, src Source, maxChats int) ([]domain.Chat, error) {
	chats, err := src.ListChats(ctx, maxChats)
	if err != nil {
		return nil, errors.Wrap(err, "list chats")
	}
	if len(chats) > maxChats {
		chats = chats[:maxChats]
	}
	return chats, nil
}

// Messages fetches up to maxMessages messages of one conversation. Each
// request asks for min(batch, remaining) messages older than the last
// message of the previous batch; a short batch means the history is
// exhausted. Messages keep the order the source returned them in.
func (p Paginator) Messages(ctx context.Context, src Source, chatID string, maxMessages int) ([]domain.Message, error) {
	batch := p.batchSize()
	var (
		out    []domain.Message
		cursor string
	)
	for len(out) < maxMessages {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		want := maxMessages - len(out)
		if want > batch {
			want = batch
		}
		msgs, err := src.FetchMessages(ctx, chatID, cursor, want)
		if err != nil {
			return out, errors.Wrapf(err, "fetch messages of %s", chatID)
		}
		if len(msgs) > want {
			msgs = msgs[:want]
		}
		out = append(out, msgs...)
		if len(msgs) < want {
			break
		}
		cursor = msgs[len(msgs)-1].ID
	}
	return out, nil
}
