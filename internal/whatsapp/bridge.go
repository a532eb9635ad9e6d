package whatsapp

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/WinBackBot/internal/messaging"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// Bridge routes inbound direct text messages to the conversation handler and
// sends the reply back through the same transport.
type Bridge struct {
	handler messaging.InboundHandler
	sender  messaging.Sender
}

// NewBridge creates a Bridge.
func NewBridge(handler messaging.InboundHandler, sender messaging.Sender) *Bridge {
	return &Bridge{handler: handler, sender: sender}
}

// HandleEvent processes one whatsmeow event. Events other than direct text messages are ignored.
func (b *Bridge) HandleEvent(ctx context.Context, evt interface{}) {
	msg, ok := evt.(*events.Message)
	if !ok || msg.Message == nil {
		return
	}
	if msg.Info.IsFromMe || msg.Info.IsGroup || msg.Info.Chat.Server == types.BroadcastServer {
		return
	}

	var text string
	switch {
	case msg.Message.GetConversation() != "":
		text = msg.Message.GetConversation()
	case msg.Message.GetExtendedTextMessage().GetText() != "":
		text = msg.Message.GetExtendedTextMessage().GetText()
	default:
		slog.Debug("Bridge.HandleEvent: ignoring non-text message", "from", msg.Info.Sender.String())
		return
	}

	phone := "+" + msg.Info.Sender.User
	reply := b.handler.HandleInbound(ctx, phone, msg.Info.PushName, text)
	if err := b.sender.SendMessage(ctx, phone, reply); err != nil {
		slog.Error("Bridge.HandleEvent: reply delivery failed", "error", err, "phone", phone)
	}
}
