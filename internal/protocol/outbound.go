package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/ammar1510/docconnect/internal/models"
)

// Outbound event names
const (
	EventNewMessage         = "new_message"
	EventMessageSent        = "message_sent"
	EventMessageDelivered   = "message_delivered"
	EventMessagesDelivered  = "messages_delivered"
	EventMessagesRead       = "messages_read"
	EventUserTyping         = "user_typing"
	EventUserStoppedTyping  = "user_stopped_typing"
	EventMessageEdited      = "message_edited"
	EventMessageDeleted     = "message_deleted"
	EventUserStatusChanged  = "user_status_changed"
	EventNewNotification    = "new_notification"
	EventConversationJoined = "conversation_joined"
	EventError              = "error"
)

// Outbound is implemented by every server-to-client event
type Outbound interface {
	EventName() string
}

type NewMessage struct {
	*models.Message
}

// MessageSent acknowledges a send_message to the sending connection
type MessageSent struct {
	*models.Message
}

type MessageDelivered struct {
	MessageID      uuid.UUID `json:"message_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	DeliveredAt    time.Time `json:"delivered_at"`
}

type MessagesDelivered struct {
	ConversationID uuid.UUID   `json:"conversation_id"`
	MessageIDs     []uuid.UUID `json:"message_ids"`
	DeliveredAt    time.Time   `json:"delivered_at"`
}

type MessagesRead struct {
	ConversationID uuid.UUID   `json:"conversation_id"`
	MessageIDs     []uuid.UUID `json:"message_ids"`
	ReaderID       uuid.UUID   `json:"reader_id"`
	ReadAt         time.Time   `json:"read_at"`
}

type UserTyping struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
}

type UserStoppedTyping struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
}

type MessageEdited struct {
	*models.Message
}

type MessageDeleted struct {
	MessageID      uuid.UUID `json:"message_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
}

type UserStatusChanged struct {
	models.Presence
}

type NewNotification struct {
	*models.Notification
}

type ConversationJoined struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MarkedRead     int       `json:"marked_read"`
}

type Error struct {
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

func (NewMessage) EventName() string         { return EventNewMessage }
func (MessageSent) EventName() string        { return EventMessageSent }
func (MessageDelivered) EventName() string   { return EventMessageDelivered }
func (MessagesDelivered) EventName() string  { return EventMessagesDelivered }
func (MessagesRead) EventName() string       { return EventMessagesRead }
func (UserTyping) EventName() string         { return EventUserTyping }
func (UserStoppedTyping) EventName() string  { return EventUserStoppedTyping }
func (MessageEdited) EventName() string      { return EventMessageEdited }
func (MessageDeleted) EventName() string     { return EventMessageDeleted }
func (UserStatusChanged) EventName() string  { return EventUserStatusChanged }
func (NewNotification) EventName() string    { return EventNewNotification }
func (ConversationJoined) EventName() string { return EventConversationJoined }
func (Error) EventName() string              { return EventError }

// Envelope is the wire form of an outbound event
type Envelope struct {
	Event     string    `json:"event"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	Data      any       `json:"data"`
}

// Encode wraps ev in an envelope with a fresh sortable id
func Encode(ev Outbound) ([]byte, error) {
	return json.Marshal(Envelope{
		Event:     ev.EventName(),
		ID:        ulid.Make().String(),
		Timestamp: time.Now().UTC(),
		Data:      ev,
	})
}

// MustEncode is Encode for events whose fields always marshal
func MustEncode(ev Outbound) []byte {
	b, err := Encode(ev)
	if err != nil {
		panic(err)
	}
	return b
}
