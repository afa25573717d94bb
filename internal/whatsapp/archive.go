package whatsapp

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/talkincode/wacrm/internal/domain"
)

// ErrUnknownCursor is returned when a pagination cursor is not in the archive.
var ErrUnknownCursor = errors.New("whatsapp: unknown message cursor")

func messageLess(a, b domain.Message) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ID < b.ID
}

type archivedChat struct {
	id       string
	name     string
	messages *btree.BTreeG[domain.Message]
	byID     map[string]domain.Message
	last     time.Time
}

// Archive keeps the messages received through history sync and live events,
// ordered by timestamp per chat. whatsmeow has no server-side history query,
// so cursor pagination is served from here.
type Archive struct {
	mu    sync.RWMutex
	chats map[string]*archivedChat
}

func NewArchive() *Archive {
	return &Archive{chats: make(map[string]*archivedChat)}
}

func (a *Archive) chat(id string) *archivedChat {
	c, ok := a.chats[id]
	if !ok {
		c = &archivedChat{
			id:       id,
			messages: btree.NewG[domain.Message](16, messageLess),
			byID:     make(map[string]domain.Message),
		}
		a.chats[id] = c
	}
	return c
}

// SetChatName records a display name, empty names are ignored.
func (a *Archive) SetChatName(chatID, name string) {
	if name == "" {
		return
	}
	a.mu.Lock()
	a.chat(chatID).name = name
	a.mu.Unlock()
}

// Add stores messages, replacing any previous copy with the same id.
func (a *Archive) Add(msgs ...domain.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, m := range msgs {
		if m.ID == "" || m.ChatID == "" {
			continue
		}
		c := a.chat(m.ChatID)
		if old, ok := c.byID[m.ID]; ok {
			c.messages.Delete(old)
		}
		c.byID[m.ID] = m
		c.messages.ReplaceOrInsert(m)
		if m.Timestamp.After(c.last) {
			c.last = m.Timestamp
		}
	}
}

// Chats returns up to limit chats that hold at least one message, most
// recent activity first.
func (a *Archive) Chats(limit int) []domain.Chat {
	a.mu.RLock()
	list := make([]*archivedChat, 0, len(a.chats))
	for _, c := range a.chats {
		if c.messages.Len() > 0 {
			list = append(list, c)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].last.Equal(list[j].last) {
			return list[i].last.After(list[j].last)
		}
		return list[i].id < list[j].id
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	chats := make([]domain.Chat, 0, len(list))
	for _, c := range list {
		chats = append(chats, domain.Chat{ID: c.id, Name: c.name})
	}
	a.mu.RUnlock()
	return chats
}

// Before returns up to limit messages of chatID older than the message with
// id before, newest first.
func (a *Archive) Before(chatID, before string, limit int) ([]domain.Message, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.chats[chatID]
	if !ok || limit <= 0 {
		return nil, nil
	}
	out := make([]domain.Message, 0, limit)
	collect := func(m domain.Message) bool {
		if m.ID == before {
			return true
		}
		out = append(out, m)
		return len(out) < limit
	}
	if before == "" {
		c.messages.Descend(collect)
		return out, nil
	}
	pivot, ok := c.byID[before]
	if !ok {
		return nil, ErrUnknownCursor
	}
	c.messages.DescendLessOrEqual(pivot, collect)
	return out, nil
}

// Len returns the number of archived messages of a chat.
func (a *Archive) Len(chatID string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if c, ok := a.chats[chatID]; ok {
		return c.messages.Len()
	}
	return 0
}
