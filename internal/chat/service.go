// Package chat runs the messaging flows shared by the realtime gateway and
// the REST API. Every flow commits through messaging first and only then
// emits events.
package chat

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/docconnect/internal/database"
	"github.com/ammar1510/docconnect/internal/logger"
	"github.com/ammar1510/docconnect/internal/messaging"
	"github.com/ammar1510/docconnect/internal/metrics"
	"github.com/ammar1510/docconnect/internal/models"
	"github.com/ammar1510/docconnect/internal/protocol"
)

var log = logger.New("chat")

// Emitter fans frames out to live connections
type Emitter interface {
	// EmitToUsers writes to every connection of the given users
	EmitToUsers(frame []byte, userIDs ...uuid.UUID) int
	// EmitToConversation writes to connections joined to the conversation
	// and to every connection of alsoUsers, each connection at most once
	EmitToConversation(conversationID uuid.UUID, frame []byte, alsoUsers ...uuid.UUID) int
}

// Presence answers whether a user has a live connection
type Presence interface {
	IsOnline(userID uuid.UUID) bool
}

// Notifier is the best-effort notification primitive
type Notifier interface {
	Send(ctx context.Context, userID uuid.UUID, kind, title, body string, data any) (*models.Notification, error)
}

type Service struct {
	convs    *messaging.Conversations
	msgs     *messaging.Messages
	users    database.UserStore
	presence Presence
	emitter  Emitter
	notifier Notifier
}

func NewService(convs *messaging.Conversations, msgs *messaging.Messages, users database.UserStore, presence Presence, emitter Emitter, notifier Notifier) *Service {
	return &Service{
		convs:    convs,
		msgs:     msgs,
		users:    users,
		presence: presence,
		emitter:  emitter,
		notifier: notifier,
	}
}

// Store calls run to completion even if the caller goes away
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func (s *Service) emitToUsers(ev protocol.Outbound, userIDs ...uuid.UUID) {
	frame, err := protocol.Encode(ev)
	if err != nil {
		log.Error("Failed to encode %s: %v", ev.EventName(), err)
		return
	}
	s.emitter.EmitToUsers(frame, userIDs...)
}

func (s *Service) emitToConversation(conversationID uuid.UUID, ev protocol.Outbound, alsoUsers ...uuid.UUID) {
	frame, err := protocol.Encode(ev)
	if err != nil {
		log.Error("Failed to encode %s: %v", ev.EventName(), err)
		return
	}
	s.emitter.EmitToConversation(conversationID, frame, alsoUsers...)
}

// Join checks participancy and reads everything pending for the caller.
// The sender learns about it through messages_read.
func (s *Service) Join(ctx context.Context, conversationID, userID uuid.UUID) (*models.Conversation, int, error) {
	ctx = detach(ctx)
	conv, err := s.convs.GetOne(ctx, conversationID, userID)
	if err != nil {
		return nil, 0, err
	}
	read, err := s.msgs.MarkConversationRead(ctx, conversationID, userID)
	if err != nil {
		return nil, 0, err
	}
	s.announceRead(read, userID)
	return conv, len(read), nil
}

// MarkConversationRead is Join without the room membership
func (s *Service) MarkConversationRead(ctx context.Context, conversationID, userID uuid.UUID) ([]*models.Message, error) {
	ctx = detach(ctx)
	read, err := s.msgs.MarkConversationRead(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	s.announceRead(read, userID)
	return read, nil
}

// SendMessage persists a message, broadcasts it and, when the recipient
// is connected, marks it delivered straight away.
func (s *Service) SendMessage(ctx context.Context, in messaging.SendInput, transport string) (*models.Message, error) {
	ctx = detach(ctx)
	msg, conv, err := s.msgs.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	metrics.MessagesSent.WithLabelValues(transport).Inc()
	log.Debug("Message %s (seq %d) stored in %s", msg.ID, msg.Seq, msg.ConversationID)

	s.emitToConversation(msg.ConversationID, protocol.NewMessage{Message: msg}, msg.SenderID, msg.RecipientID)

	if s.presence.IsOnline(msg.RecipientID) {
		delivered, err := s.msgs.MarkDelivered(ctx, []uuid.UUID{msg.ID}, msg.RecipientID)
		if err != nil {
			log.Error("Failed to mark message %s delivered: %v", msg.ID, err)
		} else if len(delivered) == 1 {
			msg = delivered[0]
			s.emitToUsers(protocol.MessageDelivered{
				MessageID:      msg.ID,
				ConversationID: msg.ConversationID,
				DeliveredAt:    *msg.DeliveredAt,
			}, msg.SenderID)
		}
	}

	s.notifyNewMessage(ctx, msg, conv)
	return msg, nil
}

func (s *Service) notifyNewMessage(ctx context.Context, msg *models.Message, conv *models.Conversation) {
	if p := conv.Participant(msg.RecipientID); p != nil && p.Muted {
		return
	}

	title := "New message"
	if sender, err := s.users.GetUserByID(ctx, msg.SenderID); err == nil {
		name := sender.DisplayName
		if name == "" {
			name = sender.Username
		}
		title = "New message from " + name
	}

	data := map[string]uuid.UUID{
		"conversation_id": msg.ConversationID,
		"message_id":      msg.ID,
		"sender_id":       msg.SenderID,
	}
	if _, err := s.notifier.Send(ctx, msg.RecipientID, models.NotificationNewMessage, title, msg.Preview(), data); err != nil {
		log.Error("New message notification for %s failed: %v", msg.RecipientID, err)
	}
}

// Typing relays a typing indicator to the other participant. Nothing is stored.
func (s *Service) Typing(ctx context.Context, conversationID, userID uuid.UUID, started bool) error {
	conv, err := s.convs.GetOne(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	other := conv.Other(userID)
	if started {
		s.emitToUsers(protocol.UserTyping{ConversationID: conversationID, UserID: userID}, other)
	} else {
		s.emitToUsers(protocol.UserStoppedTyping{ConversationID: conversationID, UserID: userID}, other)
	}
	return nil
}

// MarkDelivered applies a bulk delivery receipt from the recipient
func (s *Service) MarkDelivered(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) ([]*models.Message, error) {
	ctx = detach(ctx)
	changed, err := s.msgs.MarkDelivered(ctx, ids, userID)
	if err != nil {
		return nil, err
	}
	s.announceDelivered(changed)
	return changed, nil
}

// DeliverPending runs when a user connects: everything still sent to them
// becomes delivered.
func (s *Service) DeliverPending(ctx context.Context, userID uuid.UUID) (int, error) {
	ctx = detach(ctx)
	changed, err := s.msgs.MarkPendingDelivered(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.announceDelivered(changed)
	return len(changed), nil
}

// MarkRead applies a bulk read receipt from the recipient
func (s *Service) MarkRead(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) ([]*models.Message, error) {
	ctx = detach(ctx)
	changed, err := s.msgs.MarkRead(ctx, ids, userID)
	if err != nil {
		return nil, err
	}
	s.announceRead(changed, userID)
	return changed, nil
}

// Edit changes a text message and shows the new content to both sides
func (s *Service) Edit(ctx context.Context, messageID, userID uuid.UUID, content string) (*models.Message, error) {
	ctx = detach(ctx)
	msg, err := s.msgs.Edit(ctx, messageID, userID, content)
	if err != nil {
		return nil, err
	}
	s.emitToConversation(msg.ConversationID, protocol.MessageEdited{Message: msg}, msg.SenderID, msg.RecipientID)
	return msg, nil
}

// Delete hides a message for userID. Only that user's connections hear about it.
func (s *Service) Delete(ctx context.Context, messageID, userID uuid.UUID) (*models.Message, error) {
	ctx = detach(ctx)
	msg, err := s.msgs.SoftDelete(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	s.emitToUsers(protocol.MessageDeleted{MessageID: msg.ID, ConversationID: msg.ConversationID}, userID)
	return msg, nil
}

type batchKey struct {
	conversationID uuid.UUID
	senderID       uuid.UUID
}

type batch struct {
	key batchKey
	ids []uuid.UUID
	at  time.Time
}

// groupBySender splits changed messages into one batch per conversation
// and sender, keeping first-seen order.
func groupBySender(msgs []*models.Message, stamp func(*models.Message) *time.Time) []*batch {
	var out []*batch
	index := make(map[batchKey]*batch)
	for _, m := range msgs {
		k := batchKey{conversationID: m.ConversationID, senderID: m.SenderID}
		b, ok := index[k]
		if !ok {
			b = &batch{key: k}
			index[k] = b
			out = append(out, b)
		}
		b.ids = append(b.ids, m.ID)
		if ts := stamp(m); ts != nil && ts.After(b.at) {
			b.at = *ts
		}
	}
	return out
}

func (s *Service) announceDelivered(msgs []*models.Message) {
	for _, b := range groupBySender(msgs, func(m *models.Message) *time.Time { return m.DeliveredAt }) {
		s.emitToUsers(protocol.MessagesDelivered{
			ConversationID: b.key.conversationID,
			MessageIDs:     b.ids,
			DeliveredAt:    b.at,
		}, b.key.senderID)
	}
}

func (s *Service) announceRead(msgs []*models.Message, readerID uuid.UUID) {
	for _, b := range groupBySender(msgs, func(m *models.Message) *time.Time { return m.ReadAt }) {
		s.emitToUsers(protocol.MessagesRead{
			ConversationID: b.key.conversationID,
			MessageIDs:     b.ids,
			ReaderID:       readerID,
			ReadAt:         b.at,
		}, b.key.senderID)
	}
}
