package messaging

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ammar1510/docconnect/internal/apperr"
	"github.com/ammar1510/docconnect/internal/database"
	"github.com/ammar1510/docconnect/internal/models"
)

const MaxContentChars = 4000

// SendInput is everything needed to create one message
type SendInput struct {
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	Type           models.MessageType
	Content        string
	File           *models.FileAttachment
	ReplyTo        *uuid.UUID
}

// Messages owns the message lifecycle and the delivery state machine
type Messages struct {
	store database.MessageStore
	users database.UserStore
	convs *Conversations
	now   func() time.Time
}

func NewMessages(store database.MessageStore, users database.UserStore, convs *Conversations) *Messages {
	return &Messages{store: store, users: users, convs: convs, now: utcNow}
}

func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", apperr.ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentChars {
		return "", apperr.ErrContentTooLong
	}
	return content, nil
}

// normalize checks the type-specific fields and drops the ones a type does not carry
func normalize(in *SendInput) error {
	if in.Type == "" {
		in.Type = models.MessageTypeText
	}
	switch in.Type {
	case models.MessageTypeText, models.MessageTypeSystem:
		content, err := validateContent(in.Content)
		if err != nil {
			return err
		}
		in.Content = content
		in.File = nil
	case models.MessageTypeFile:
		f := in.File
		if f == nil || strings.TrimSpace(f.URL) == "" || strings.TrimSpace(f.Name) == "" || f.Size <= 0 {
			return apperr.ErrFileFieldsRequired
		}
		in.Content = ""
	default:
		return apperr.ErrInvalidMessageType
	}
	return nil
}

// Create persists a message as sent. The conversation preview and the
// recipient's unread counter change in the same transaction.
func (s *Messages) Create(ctx context.Context, in SendInput) (*models.Message, *models.Conversation, error) {
	if err := normalize(&in); err != nil {
		return nil, nil, err
	}

	conv, err := s.convs.GetOne(ctx, in.ConversationID, in.SenderID)
	if err != nil {
		return nil, nil, err
	}

	recipientID := conv.Other(in.SenderID)
	recipient, err := s.users.GetUserByID(ctx, recipientID)
	if err != nil {
		return nil, nil, translate(err)
	}
	if !recipient.IsActive {
		return nil, nil, apperr.ErrUserNotFound
	}

	if in.ReplyTo != nil {
		parent, err := s.store.GetMessage(ctx, *in.ReplyTo)
		if err != nil || parent.ConversationID != conv.ID {
			return nil, nil, apperr.ErrReplyOutsideThread
		}
	}

	msg, err := s.store.CreateMessage(ctx, &models.Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		SenderID:       in.SenderID,
		RecipientID:    recipientID,
		Type:           in.Type,
		Content:        in.Content,
		File:           in.File,
		ReplyTo:        in.ReplyTo,
		CreatedAt:      s.now(),
	})
	if err != nil {
		return nil, nil, translate(err)
	}
	return msg, conv, nil
}

// Get loads a message visible to userID
func (s *Messages) Get(ctx context.Context, messageID, userID uuid.UUID) (*models.Message, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, translate(err)
	}
	if msg.SenderID != userID && msg.RecipientID != userID {
		return nil, apperr.ErrNotParticipant
	}
	return msg, nil
}

// MarkDelivered moves forUserID's sent messages among ids to delivered.
// Anything else in ids is ignored.
func (s *Messages) MarkDelivered(ctx context.Context, ids []uuid.UUID, forUserID uuid.UUID) ([]*models.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	changed, err := s.store.MarkDelivered(ctx, ids, forUserID, s.now())
	return changed, translate(err)
}

// MarkPendingDelivered delivers every message still waiting for forUserID
func (s *Messages) MarkPendingDelivered(ctx context.Context, forUserID uuid.UUID) ([]*models.Message, error) {
	changed, err := s.store.MarkPendingDelivered(ctx, forUserID, s.now())
	return changed, translate(err)
}

// MarkRead moves forUserID's unread messages among ids to read and
// reconciles the unread counters of the affected conversations.
func (s *Messages) MarkRead(ctx context.Context, ids []uuid.UUID, forUserID uuid.UUID) ([]*models.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	changed, err := s.store.MarkRead(ctx, ids, forUserID, s.now())
	return changed, translate(err)
}

// MarkConversationRead reads everything pending for forUserID in one conversation
func (s *Messages) MarkConversationRead(ctx context.Context, conversationID, forUserID uuid.UUID) ([]*models.Message, error) {
	if _, err := s.convs.GetOne(ctx, conversationID, forUserID); err != nil {
		return nil, err
	}
	changed, err := s.store.MarkConversationRead(ctx, conversationID, forUserID, s.now())
	return changed, translate(err)
}

// Edit replaces the content of a text message sent by userID
func (s *Messages) Edit(ctx context.Context, messageID, userID uuid.UUID, content string) (*models.Message, error) {
	content, err := validateContent(content)
	if err != nil {
		return nil, err
	}

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, translate(err)
	}
	if msg.SenderID != userID {
		return nil, apperr.ErrNotSender
	}
	if msg.Type != models.MessageTypeText {
		return nil, apperr.ErrNotEditable
	}
	if msg.DeletedFor(userID) {
		return nil, apperr.ErrMessageDeleted
	}

	edited, err := s.store.UpdateMessageContent(ctx, messageID, content, s.now())
	return edited, translate(err)
}

// SoftDelete hides a message from userID's view only
func (s *Messages) SoftDelete(ctx context.Context, messageID, userID uuid.UUID) (*models.Message, error) {
	if _, err := s.Get(ctx, messageID, userID); err != nil {
		return nil, err
	}
	msg, err := s.store.SoftDeleteMessage(ctx, messageID, userID)
	return msg, translate(err)
}

// List returns one page of the conversation for userID in display order,
// oldest first. Pages are counted from the newest message.
func (s *Messages) List(ctx context.Context, conversationID, userID uuid.UUID, page Page) ([]*models.Message, Pagination, error) {
	if _, err := s.convs.GetOne(ctx, conversationID, userID); err != nil {
		return nil, Pagination{}, err
	}

	msgs, total, err := s.store.ListMessages(ctx, conversationID, userID, page.Offset(), page.Limit)
	if err != nil {
		return nil, Pagination{}, translate(err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	return msgs, page.Result(total), nil
}
