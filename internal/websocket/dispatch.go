package websocket

import (
	"context"

	"github.com/ammar1510/docconnect/internal/messaging"
	"github.com/ammar1510/docconnect/internal/protocol"
)

// dispatch runs one inbound event for the client. Events from the same
// connection are handled in order.
func (g *Gateway) dispatch(c *Client, ev protocol.Inbound) error {
	ctx := context.Background()

	switch e := ev.(type) {
	case *protocol.JoinConversation:
		_, read, err := g.chat.Join(ctx, e.ConversationID, c.UserID)
		if err != nil {
			return err
		}
		g.manager.Join(c, e.ConversationID)
		c.reply(g.manager, protocol.ConversationJoined{ConversationID: e.ConversationID, MarkedRead: read})

	case *protocol.LeaveConversation:
		g.manager.Leave(c, e.ConversationID)

	case *protocol.SendMessage:
		msg, err := g.chat.SendMessage(ctx, messaging.SendInput{
			ConversationID: e.ConversationID,
			SenderID:       c.UserID,
			Type:           e.MessageType,
			Content:        e.Content,
			File:           e.Attachment(),
			ReplyTo:        e.ReplyTo,
		}, "websocket")
		if err != nil {
			return err
		}
		c.reply(g.manager, protocol.MessageSent{Message: msg})

	case *protocol.TypingStart:
		return g.chat.Typing(ctx, e.ConversationID, c.UserID, true)

	case *protocol.TypingStop:
		return g.chat.Typing(ctx, e.ConversationID, c.UserID, false)

	case *protocol.MarkAsDelivered:
		_, err := g.chat.MarkDelivered(ctx, e.MessageIDs, c.UserID)
		return err

	case *protocol.MarkAsRead:
		_, err := g.chat.MarkRead(ctx, e.MessageIDs, c.UserID)
		return err

	case *protocol.EditMessage:
		_, err := g.chat.Edit(ctx, e.MessageID, c.UserID, e.Content)
		return err

	case *protocol.DeleteMessage:
		_, err := g.chat.Delete(ctx, e.MessageID, c.UserID)
		return err

	case *protocol.UpdateStatus:
		_, err := g.presence.SetStatus(ctx, c.UserID, e.Status)
		return err

	default:
		return protocol.ErrUnknownEvent
	}
	return nil
}
