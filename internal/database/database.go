package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/docconnect/internal/models"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserAlreadyExists    = errors.New("user already exists")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrNotEditable          = errors.New("message is not editable")
)

// UserStore is the local projection of marketplace accounts
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetAllUsers(ctx context.Context, excludeUserID uuid.UUID) ([]*models.User, error)
	UpdatePresence(ctx context.Context, userID uuid.UUID, status models.PresenceStatus, lastSeen time.Time) error
}

// ConversationStore persists two-party conversations and per-participant view state
type ConversationStore interface {
	// FindOrCreateConversation returns the conversation for the unordered pair,
	// creating it when absent. created reports whether this call inserted it.
	FindOrCreateConversation(ctx context.Context, userA, userB uuid.UUID, related *models.RelatedTo) (conv *models.Conversation, created bool, err error)
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	// ListConversations returns the non-archived conversations of userID,
	// most recently active first, plus the total matching count.
	ListConversations(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*models.Conversation, int, error)
	IncrementUnread(ctx context.Context, conversationID, userID uuid.UUID) error
	// ResetUnread sets the unread counter to the number of messages still
	// pending for userID, so a message that arrives concurrently is kept.
	ResetUnread(ctx context.Context, conversationID, userID uuid.UUID) (int, error)
	ToggleArchive(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
	ToggleMute(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
}

// MessageStore persists messages and drives the delivery state machine.
// Status updates only ever move a message forward.
type MessageStore interface {
	// CreateMessage assigns the per-conversation sequence, inserts the message,
	// refreshes the conversation's last message and bumps the recipient's
	// unread counter in one transaction.
	CreateMessage(ctx context.Context, msg *models.Message) (*models.Message, error)
	GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	// ListMessages returns messages visible to viewerID, newest first.
	ListMessages(ctx context.Context, conversationID, viewerID uuid.UUID, offset, limit int) ([]*models.Message, int, error)
	MarkDelivered(ctx context.Context, ids []uuid.UUID, recipientID uuid.UUID, at time.Time) ([]*models.Message, error)
	MarkPendingDelivered(ctx context.Context, recipientID uuid.UUID, at time.Time) ([]*models.Message, error)
	MarkRead(ctx context.Context, ids []uuid.UUID, recipientID uuid.UUID, at time.Time) ([]*models.Message, error)
	MarkConversationRead(ctx context.Context, conversationID, recipientID uuid.UUID, at time.Time) ([]*models.Message, error)
	UpdateMessageContent(ctx context.Context, id uuid.UUID, content string, at time.Time) (*models.Message, error)
	SoftDeleteMessage(ctx context.Context, id, userID uuid.UUID) (*models.Message, error)
}

// NotificationStore persists notification records
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*models.Notification, int, error)
	MarkNotificationsRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
}

type DBInterface interface {
	UserStore
	ConversationStore
	MessageStore
	NotificationStore

	Close() error
}

type DatabaseType string

const (
	PostgreSQL DatabaseType = "postgres"
	Memory     DatabaseType = "memory"
)

func NewDatabase(ctx context.Context, dbType DatabaseType, connStr string) (DBInterface, error) {
	switch dbType {
	case PostgreSQL:
		db, err := NewPostgresDB(ctx, connStr)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	case Memory:
		return NewMemoryDB(), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}
