package whatsapp

import (
	"strings"
	"time"

	"github.com/talkincode/wacrm/internal/domain"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"
)

// messageText extracts the human readable text of a message, empty for
// payloads without text (stickers, reactions, protocol messages).
func messageText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if t := msg.GetConversation(); t != "" {
		return t
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil && ext.GetText() != "" {
		return ext.GetText()
	}
	if img := msg.GetImageMessage(); img != nil && img.GetCaption() != "" {
		return img.GetCaption()
	}
	if vid := msg.GetVideoMessage(); vid != nil && vid.GetCaption() != "" {
		return vid.GetCaption()
	}
	if doc := msg.GetDocumentMessage(); doc != nil {
		if doc.GetCaption() != "" {
			return doc.GetCaption()
		}
		return doc.GetFileName()
	}
	if btn := msg.GetButtonsResponseMessage(); btn != nil {
		return btn.GetSelectedDisplayText()
	}
	if list := msg.GetListResponseMessage(); list != nil {
		return list.GetTitle()
	}
	// view once, ephemeral and edited wrappers
	if fp := msg.GetEphemeralMessage(); fp != nil {
		return messageText(fp.GetMessage())
	}
	if vo := msg.GetViewOnceMessage(); vo != nil {
		return messageText(vo.GetMessage())
	}
	return ""
}

// toDomainMessage converts a whatsmeow message event. ok is false when the
// message carries no text.
func toDomainMessage(evt *events.Message) (domain.Message, bool) {
	if evt == nil {
		return domain.Message{}, false
	}
	body := strings.TrimSpace(messageText(evt.Message))
	if body == "" {
		return domain.Message{}, false
	}
	sender := evt.Info.PushName
	if sender == "" {
		sender = evt.Info.Sender.User
	}
	ts := evt.Info.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return domain.Message{
		ID:        evt.Info.ID,
		ChatID:    evt.Info.Chat.ToNonAD().String(),
		FromMe:    evt.Info.IsFromMe,
		Sender:    sender,
		Body:      body,
		Timestamp: ts,
	}, true
}
