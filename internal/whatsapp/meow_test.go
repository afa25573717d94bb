package whatsapp

import (
	"errors"
	"strings"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

func newRecordingClient() (*meowClient, *[]Event) {
	var got []Event
	m := &meowClient{
		tenant:       "t1",
		handler:      func(evt Event) { got = append(got, evt) },
		archive:      NewArchive(),
		historyReady: make(chan struct{}),
	}
	return m, &got
}

func TestHandleEventMapping(t *testing.T) {
	tests := []struct {
		name       string
		in         interface{}
		wantName   string
		wantReason string
	}{
		{"connected", &events.Connected{}, "logged_in", ""},
		{"pair error", &events.PairError{Error: errors.New("bad signature")}, "auth_failure", "bad signature"},
		{"logged out", &events.LoggedOut{Reason: events.ConnectFailureLoggedOut}, "disconnected", "logged out: "},
		{"stream replaced", &events.StreamReplaced{}, "disconnected", "stream replaced"},
		{"client outdated", &events.ClientOutdated{}, "disconnected", "client outdated"},
		{"transient websocket drop", &events.Disconnected{}, "", ""},
		{"pair success", &events.PairSuccess{ID: waTypes.NewJID("1", waTypes.DefaultUserServer)}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, got := newRecordingClient()
			m.handleEvent(tt.in)
			if tt.wantName == "" {
				if len(*got) != 0 {
					t.Fatalf("handleEvent emitted %v, want nothing", *got)
				}
				return
			}
			if len(*got) != 1 {
				t.Fatalf("handleEvent emitted %d events, want 1", len(*got))
			}
			evt := (*got)[0]
			if name := EventName(evt); name != tt.wantName {
				t.Errorf("event = %q, want %q", name, tt.wantName)
			}
			var reason string
			switch e := evt.(type) {
			case AuthFailure:
				reason = e.Reason
			case Disconnected:
				reason = e.Reason
			}
			if !strings.HasPrefix(reason, tt.wantReason) {
				t.Errorf("reason = %q, want prefix %q", reason, tt.wantReason)
			}
		})
	}
}

func TestHandleEventArchivesMessages(t *testing.T) {
	m, got := newRecordingClient()
	chat := waTypes.NewJID("5215512345678", waTypes.DefaultUserServer)
	msg := &events.Message{
		Info: waTypes.MessageInfo{
			MessageSource: waTypes.MessageSource{Chat: chat, Sender: chat},
			ID:            "M1",
			PushName:      "Luis",
			Timestamp:     time.Unix(1700000000, 0),
		},
		Message: &waE2E.Message{Conversation: proto.String("hola")},
	}
	m.handleEvent(msg)

	status := *msg
	status.Info.ID = "M2"
	status.Info.Chat = waTypes.NewJID("status", waTypes.BroadcastServer)
	m.handleEvent(&status)

	if len(*got) != 0 {
		t.Errorf("messages emitted lifecycle events: %v", *got)
	}
	if n := m.archive.Len(chat.String()); n != 1 {
		t.Errorf("archive has %d messages for %s, want 1", n, chat)
	}
	chats := m.archive.Chats(10)
	if len(chats) != 1 || chats[0].Name != "Luis" {
		t.Errorf("Chats() = %+v, want one chat named Luis", chats)
	}
}
