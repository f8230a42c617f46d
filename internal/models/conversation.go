package models

import (
	"time"

	"github.com/google/uuid"
)

// RelatedKind tags what marketplace object a conversation was started from
type RelatedKind string

const (
	RelatedJob         RelatedKind = "job"
	RelatedApplication RelatedKind = "application"
)

// RelatedTo links a conversation to a job or application. Informational only.
type RelatedTo struct {
	Kind RelatedKind `json:"type" binding:"required,oneof=job application"`
	ID   uuid.UUID   `json:"id" binding:"required"`
}

// LastMessage is the denormalized preview of the newest message
type LastMessage struct {
	Content   string    `json:"content"`
	SenderID  uuid.UUID `json:"sender_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Participant holds the per-user view state of a conversation
type Participant struct {
	UserID      uuid.UUID `json:"user_id"`
	UnreadCount int       `json:"unread_count"`
	Muted       bool      `json:"muted"`
	Archived    bool      `json:"archived"`
}

// Conversation is a two-party messaging thread
type Conversation struct {
	ID           uuid.UUID      `json:"id"`
	Participants [2]Participant `json:"participants"`
	LastMessage  *LastMessage   `json:"last_message,omitempty"`
	RelatedTo    *RelatedTo     `json:"related_to,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Participant returns the view state of userID, or nil if userID is not a participant
func (c *Conversation) Participant(userID uuid.UUID) *Participant {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i]
		}
	}
	return nil
}

// HasParticipant reports whether userID belongs to the conversation
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.Participant(userID) != nil
}

// Other returns the participant that is not userID
func (c *Conversation) Other(userID uuid.UUID) uuid.UUID {
	if c.Participants[0].UserID == userID {
		return c.Participants[1].UserID
	}
	return c.Participants[0].UserID
}

// Clone returns a deep copy
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	if c.LastMessage != nil {
		lm := *c.LastMessage
		cp.LastMessage = &lm
	}
	if c.RelatedTo != nil {
		rt := *c.RelatedTo
		cp.RelatedTo = &rt
	}
	return &cp
}

// ConversationView is a conversation as seen by one participant
type ConversationView struct {
	ID          uuid.UUID     `json:"id"`
	OtherUser   *UserResponse `json:"other_user"`
	LastMessage *LastMessage  `json:"last_message,omitempty"`
	RelatedTo   *RelatedTo    `json:"related_to,omitempty"`
	UnreadCount int           `json:"unread_count"`
	Muted       bool          `json:"muted"`
	Archived    bool          `json:"archived"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// CreateConversationRequest starts or resumes a conversation with another user
type CreateConversationRequest struct {
	ParticipantID uuid.UUID  `json:"participant_id" binding:"required"`
	RelatedTo     *RelatedTo `json:"related_to"`
}
