package whatsapp

import (
	"context"

	"github.com/talkincode/wacrm/internal/domain"
)

// Event is a lifecycle notification emitted by a Client.
type Event interface {
	eventName() string
}

// QRCode carries a fresh pairing challenge. It fires again every time the
// engine rotates the code.
type QRCode struct {
	Code string
}

// PairSuccess fires when the phone accepted the challenge, before the
// session is fully logged in.
type PairSuccess struct {
	JID string
}

// LoggedIn fires once the connection is authenticated and usable.
type LoggedIn struct {
	JID string
}

// AuthFailure reports a pairing or login error.
type AuthFailure struct {
	Reason string
}

// Disconnected is terminal: the handle must not be used afterwards.
type Disconnected struct {
	Reason string
}

func (QRCode) eventName() string       { return "qr" }
func (PairSuccess) eventName() string  { return "pair_success" }
func (LoggedIn) eventName() string     { return "logged_in" }
func (AuthFailure) eventName() string  { return "auth_failure" }
func (Disconnected) eventName() string { return "disconnected" }

// EventName returns a short name for logging.
func EventName(evt Event) string {
	if evt == nil {
		return ""
	}
	return evt.eventName()
}

// EventHandler receives client events. It may be called from several
// goroutines.
type EventHandler func(Event)

// Client is one tenant's messaging session handle.
type Client interface {
	// Connect starts the handshake. Pairing challenges and login results are
	// delivered asynchronously to the handler given at creation.
	Connect(ctx context.Context) error
	Disconnect()
	IsLoggedIn() bool

	// ListChats returns up to limit conversations in the engine's order
	// (most recent activity first).
	ListChats(ctx context.Context, limit int) ([]domain.Chat, error)

	// FetchMessages returns up to limit messages of chatID strictly older
	// than the message identified by before, newest first. An empty before
	// starts from the newest message.
	FetchMessages(ctx context.Context, chatID, before string, limit int) ([]domain.Message, error)

	SendText(ctx context.Context, to, text string) error
}

// Factory creates tenant clients.
type Factory interface {
	NewClient(ctx context.Context, tenantID string, handler EventHandler) (Client, error)
}
