package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/docconnect/internal/apperr"
	"github.com/ammar1510/docconnect/internal/database"
	"github.com/ammar1510/docconnect/internal/logger"
	"github.com/ammar1510/docconnect/internal/models"
)

var log = logger.New("messaging")

// Conversations enforces participancy on top of the conversation store
type Conversations struct {
	store database.ConversationStore
	users database.UserStore
}

func NewConversations(store database.ConversationStore, users database.UserStore) *Conversations {
	return &Conversations{store: store, users: users}
}

// FindOrCreate returns the single conversation between two users
func (s *Conversations) FindOrCreate(ctx context.Context, userA, userB uuid.UUID, related *models.RelatedTo) (*models.Conversation, bool, error) {
	if userA == userB {
		return nil, false, apperr.ErrSelfConversation
	}
	for _, id := range []uuid.UUID{userA, userB} {
		u, err := s.users.GetUserByID(ctx, id)
		if err != nil {
			return nil, false, translate(err)
		}
		if !u.IsActive {
			return nil, false, apperr.ErrUserNotFound
		}
	}

	conv, created, err := s.store.FindOrCreateConversation(ctx, userA, userB, related)
	if err != nil {
		return nil, false, translate(err)
	}
	if created {
		log.Info("Conversation %s created between %s and %s", conv.ID, userA, userB)
	}
	return conv, created, nil
}

// GetOne loads a conversation the caller participates in
func (s *Conversations) GetOne(ctx context.Context, conversationID, userID uuid.UUID) (*models.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, translate(err)
	}
	if !conv.HasParticipant(userID) {
		return nil, apperr.ErrNotParticipant
	}
	return conv, nil
}

// ListForUser returns the caller's non-archived conversations, newest activity first
func (s *Conversations) ListForUser(ctx context.Context, userID uuid.UUID, page Page) ([]*models.ConversationView, Pagination, error) {
	convs, total, err := s.store.ListConversations(ctx, userID, page.Offset(), page.Limit)
	if err != nil {
		return nil, Pagination{}, translate(err)
	}

	profiles := make(map[uuid.UUID]*models.UserResponse)
	views := make([]*models.ConversationView, 0, len(convs))
	for _, conv := range convs {
		view, err := s.view(ctx, conv, userID, profiles)
		if err != nil {
			return nil, Pagination{}, err
		}
		views = append(views, view)
	}
	return views, page.Result(total), nil
}

// View resolves a conversation for one participant
func (s *Conversations) View(ctx context.Context, conv *models.Conversation, userID uuid.UUID) (*models.ConversationView, error) {
	return s.view(ctx, conv, userID, make(map[uuid.UUID]*models.UserResponse))
}

func (s *Conversations) view(ctx context.Context, conv *models.Conversation, userID uuid.UUID, profiles map[uuid.UUID]*models.UserResponse) (*models.ConversationView, error) {
	otherID := conv.Other(userID)
	profile, ok := profiles[otherID]
	if !ok {
		other, err := s.users.GetUserByID(ctx, otherID)
		switch {
		case err == nil:
			profile = other.Response()
		case err == database.ErrUserNotFound:
			// Keep the thread readable when the other account is gone
			profile = &models.UserResponse{ID: otherID, Status: models.PresenceOffline}
		default:
			return nil, translate(err)
		}
		profiles[otherID] = profile
	}

	me := conv.Participant(userID)
	if me == nil {
		return nil, apperr.ErrNotParticipant
	}
	return &models.ConversationView{
		ID:          conv.ID,
		OtherUser:   profile,
		LastMessage: conv.LastMessage,
		RelatedTo:   conv.RelatedTo,
		UnreadCount: me.UnreadCount,
		Muted:       me.Muted,
		Archived:    me.Archived,
		CreatedAt:   conv.CreatedAt,
		UpdatedAt:   conv.UpdatedAt,
	}, nil
}

// IncrementUnread bumps the counter of forUserID by one
func (s *Conversations) IncrementUnread(ctx context.Context, conversationID, forUserID uuid.UUID) error {
	if _, err := s.GetOne(ctx, conversationID, forUserID); err != nil {
		return err
	}
	return translate(s.store.IncrementUnread(ctx, conversationID, forUserID))
}

// ResetUnread brings the counter of forUserID back in line with its pending messages
func (s *Conversations) ResetUnread(ctx context.Context, conversationID, forUserID uuid.UUID) (int, error) {
	if _, err := s.GetOne(ctx, conversationID, forUserID); err != nil {
		return 0, err
	}
	n, err := s.store.ResetUnread(ctx, conversationID, forUserID)
	return n, translate(err)
}

// ToggleArchive flips the caller's archive flag and returns the new value
func (s *Conversations) ToggleArchive(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	if _, err := s.GetOne(ctx, conversationID, userID); err != nil {
		return false, err
	}
	v, err := s.store.ToggleArchive(ctx, conversationID, userID)
	return v, translate(err)
}

// ToggleMute flips the caller's mute flag and returns the new value
func (s *Conversations) ToggleMute(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	if _, err := s.GetOne(ctx, conversationID, userID); err != nil {
		return false, err
	}
	v, err := s.store.ToggleMute(ctx, conversationID, userID)
	return v, translate(err)
}

func utcNow() time.Time { return time.Now().UTC() }
