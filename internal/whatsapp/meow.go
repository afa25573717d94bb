package whatsapp

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"github.com/talkincode/wacrm/internal/domain"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// meowClient adapts a whatsmeow client to Client.
type meowClient struct {
	tenant      string
	cli         *whatsmeow.Client
	handler     EventHandler
	archive     *Archive
	historyWait time.Duration

	historyOnce  sync.Once
	historyReady chan struct{}

	mu       sync.Mutex
	cancelQR context.CancelFunc
}

func newMeowClient(tenant string, cli *whatsmeow.Client, handler EventHandler, historyWait time.Duration) *meowClient {
	m := &meowClient{
		tenant:       tenant,
		cli:          cli,
		handler:      handler,
		archive:      NewArchive(),
		historyWait:  historyWait,
		historyReady: make(chan struct{}),
	}
	cli.AddEventHandler(m.handleEvent)
	return m
}

func (m *meowClient) emit(evt Event) {
	zap.L().Debug("whatsapp: client event", zap.String("tenant", m.tenant), zap.String("event", EventName(evt)))
	if m.handler != nil {
		m.handler(evt)
	}
}

// Connect opens the websocket. Unpaired devices get a QR channel first so
// that pairing codes flow to the handler.
func (m *meowClient) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	qctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancelQR = cancel
	m.mu.Unlock()

	if m.cli.Store.ID == nil {
		qrChan, err := m.cli.GetQRChannel(qctx)
		if err != nil {
			cancel()
			return errors.Wrap(err, "whatsapp: open qr channel")
		}
		go m.watchQR(qrChan)
	}
	if err := m.cli.Connect(); err != nil {
		cancel()
		return errors.Wrap(err, "whatsapp: connect")
	}
	zap.L().Info("whatsapp: client connecting", zap.String("tenant", m.tenant), zap.Bool("paired", m.cli.Store.ID != nil))
	return nil
}

func (m *meowClient) watchQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			m.emit(QRCode{Code: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
			m.emit(PairSuccess{})
		case whatsmeow.QRChannelTimeout.Event:
			m.emit(Disconnected{Reason: "qr timeout"})
		default:
			reason := item.Event
			if item.Error != nil {
				reason = item.Error.Error()
			}
			m.emit(AuthFailure{Reason: reason})
		}
	}
}

func (m *meowClient) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Connected:
		m.emit(LoggedIn{JID: m.deviceJID()})
	case *events.PairSuccess:
		zap.L().Info("whatsapp: pair success", zap.String("tenant", m.tenant), zap.String("jid", e.ID.String()))
	case *events.PairError:
		m.emit(AuthFailure{Reason: e.Error.Error()})
	case *events.LoggedOut:
		m.emit(Disconnected{Reason: "logged out: " + e.Reason.String()})
	case *events.StreamReplaced:
		m.emit(Disconnected{Reason: "stream replaced"})
	case *events.TemporaryBan:
		m.emit(Disconnected{Reason: e.String()})
	case *events.ClientOutdated:
		m.emit(Disconnected{Reason: "client outdated"})
	case *events.Disconnected:
		// whatsmeow reconnects on its own
		zap.L().Info("whatsapp: websocket disconnected", zap.String("tenant", m.tenant))
	case *events.HistorySync:
		m.onHistorySync(e)
	case *events.Message:
		if skipChat(e.Info.Chat) {
			return
		}
		if msg, ok := toDomainMessage(e); ok {
			m.archive.Add(msg)
			if !e.Info.IsFromMe && !e.Info.IsGroup {
				m.archive.SetChatName(msg.ChatID, e.Info.PushName)
			}
		}
	}
}

func (m *meowClient) deviceJID() string {
	if m.cli == nil || m.cli.Store == nil || m.cli.Store.ID == nil {
		return ""
	}
	return m.cli.Store.ID.String()
}

func skipChat(jid waTypes.JID) bool {
	return jid.Server == waTypes.BroadcastServer || jid.Server == waTypes.NewsletterServer
}

func (m *meowClient) onHistorySync(e *events.HistorySync) {
	if e.Data == nil {
		return
	}
	var total int
	for _, conv := range e.Data.GetConversations() {
		chatJID, err := waTypes.ParseJID(conv.GetID())
		if err != nil || skipChat(chatJID) {
			continue
		}
		name := conv.GetName()
		if name == "" {
			name = conv.GetDisplayName()
		}
		m.archive.SetChatName(chatJID.String(), name)
		batch := make([]domain.Message, 0, len(conv.GetMessages()))
		for _, hm := range conv.GetMessages() {
			webMsg := hm.GetMessage()
			if webMsg == nil {
				continue
			}
			parsed, err := m.cli.ParseWebMessage(chatJID, webMsg)
			if err != nil {
				continue
			}
			if msg, ok := toDomainMessage(parsed); ok {
				batch = append(batch, msg)
			}
		}
		m.archive.Add(batch...)
		total += len(batch)
	}
	for _, pn := range e.Data.GetPushnames() {
		m.archive.SetChatName(pn.GetID(), pn.GetPushname())
	}
	zap.L().Info("whatsapp: history sync",
		zap.String("tenant", m.tenant),
		zap.String("type", e.Data.GetSyncType().String()),
		zap.Int("conversations", len(e.Data.GetConversations())),
		zap.Int("messages", total))

	switch e.Data.GetSyncType() {
	case waHistorySync.HistorySync_INITIAL_BOOTSTRAP, waHistorySync.HistorySync_RECENT, waHistorySync.HistorySync_FULL:
		m.historyOnce.Do(func() { close(m.historyReady) })
	}
}

func (m *meowClient) waitHistory(ctx context.Context) error {
	timer := time.NewTimer(m.historyWait)
	defer timer.Stop()
	select {
	case <-m.historyReady:
	case <-timer.C:
		zap.L().Warn("whatsapp: history sync not received, listing live messages only",
			zap.String("tenant", m.tenant), zap.Duration("waited", m.historyWait))
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (m *meowClient) ListChats(ctx context.Context, limit int) ([]domain.Chat, error) {
	if err := m.waitHistory(ctx); err != nil {
		return nil, err
	}
	chats := m.archive.Chats(limit)
	for i := range chats {
		jid, err := waTypes.ParseJID(chats[i].ID)
		if err != nil {
			continue
		}
		chats[i].Phone = jid.User
		if name := m.contactName(ctx, jid); name != "" {
			chats[i].Name = name
		}
		if chats[i].Name == "" {
			chats[i].Name = chats[i].Phone
		}
	}
	return chats, nil
}

func (m *meowClient) contactName(ctx context.Context, jid waTypes.JID) string {
	if m.cli.Store == nil || m.cli.Store.Contacts == nil {
		return ""
	}
	info, err := m.cli.Store.Contacts.GetContact(ctx, jid)
	if err != nil || !info.Found {
		return ""
	}
	for _, n := range []string{info.FullName, info.FirstName, info.PushName, info.BusinessName} {
		if n != "" {
			return n
		}
	}
	return ""
}

func (m *meowClient) FetchMessages(ctx context.Context, chatID, before string, limit int) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.archive.Before(chatID, before, limit)
}

func (m *meowClient) SendText(ctx context.Context, to, text string) error {
	jid, err := ParseRecipient(to)
	if err != nil {
		zap.L().Warn("whatsapp: invalid jid", zap.Error(err), zap.String("jid", to))
		return err
	}
	msg := &waE2E.Message{Conversation: proto.String(text)}
	if _, err := m.cli.SendMessage(ctx, jid, msg); err != nil {
		zap.L().Warn("whatsapp: send message failed", zap.Error(err), zap.String("tenant", m.tenant))
		return err
	}
	zap.L().Info("whatsapp: message sent", zap.String("tenant", m.tenant), zap.String("jid", jid.String()))
	return nil
}

func (m *meowClient) IsLoggedIn() bool {
	return m.cli.IsLoggedIn()
}

func (m *meowClient) Disconnect() {
	m.mu.Lock()
	if m.cancelQR != nil {
		m.cancelQR()
		m.cancelQR = nil
	}
	m.mu.Unlock()
	m.cli.Disconnect()
}

// ParseRecipient accepts a full JID or a phone number in any common format.
func ParseRecipient(to string) (waTypes.JID, error) {
	to = strings.TrimSpace(to)
	if strings.Contains(to, "@") {
		return waTypes.ParseJID(to)
	}
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, to)
	if digits == "" {
		return waTypes.EmptyJID, errors.Errorf("whatsapp: invalid recipient %q", to)
	}
	return waTypes.NewJID(digits, waTypes.DefaultUserServer), nil
}
