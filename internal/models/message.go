package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageType is the closed set of message kinds
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// Valid reports whether t is a known message type
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeFile, MessageTypeSystem:
		return true
	}
	return false
}

// MessageStatus is the delivery state of a message. It only moves forward.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Rank orders statuses so that transitions can be checked for monotonicity
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// Pending reports whether the message still counts as unread for its recipient
func (s MessageStatus) Pending() bool {
	return s == StatusSent || s == StatusDelivered
}

// FileAttachment describes an uploaded file carried by a file message
type FileAttachment struct {
	URL      string `json:"file_url"`
	Name     string `json:"file_name"`
	Size     int64  `json:"file_size"`
	MimeType string `json:"mime_type,omitempty"`
}

// Message represents a chat message in a conversation
type Message struct {
	ID             uuid.UUID       `json:"id"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	Seq            int64           `json:"seq"`
	SenderID       uuid.UUID       `json:"sender_id"`
	RecipientID    uuid.UUID       `json:"recipient_id"`
	Type           MessageType     `json:"message_type"`
	Content        string          `json:"content,omitempty"`
	File           *FileAttachment `json:"file,omitempty"`
	Status         MessageStatus   `json:"status"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
	ReadAt         *time.Time      `json:"read_at,omitempty"`
	DeletedBy      []uuid.UUID     `json:"-"`
	EditedAt       *time.Time      `json:"edited_at,omitempty"`
	ReplyTo        *uuid.UUID      `json:"reply_to,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// DeletedFor reports whether userID has hidden the message from their own view
func (m *Message) DeletedFor(userID uuid.UUID) bool {
	for _, id := range m.DeletedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers cannot mutate stored state
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.File != nil {
		f := *m.File
		c.File = &f
	}
	c.DeliveredAt = cloneTime(m.DeliveredAt)
	c.ReadAt = cloneTime(m.ReadAt)
	c.EditedAt = cloneTime(m.EditedAt)
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		c.ReplyTo = &r
	}
	c.DeletedBy = append([]uuid.UUID(nil), m.DeletedBy...)
	return &c
}

// SendMessageRequest is the body of a REST message send
type SendMessageRequest struct {
	Content     string      `json:"content" binding:"max=4000"`
	MessageType MessageType `json:"message_type" binding:"omitempty,oneof=text file system"`
	FileURL     string      `json:"file_url" binding:"omitempty,url"`
	FileName    string      `json:"file_name"`
	FileSize    int64       `json:"file_size" binding:"gte=0"`
	MimeType    string      `json:"mime_type"`
	ReplyTo     *uuid.UUID  `json:"reply_to"`
}

// EditMessageRequest is the body of a REST message edit
type EditMessageRequest struct {
	Content string `json:"content" binding:"required,max=4000"`
}

// MessageIDsRequest carries a bulk set of message ids
type MessageIDsRequest struct {
	MessageIDs []uuid.UUID `json:"message_ids" binding:"required,min=1,max=500"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Preview is the text stored as the conversation's last message
func (m *Message) Preview() string {
	if m.Type == MessageTypeFile && m.File != nil {
		return "[file] " + m.File.Name
	}
	return m.Content
}
