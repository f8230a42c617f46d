// Package protocol defines the realtime event contract. Events travel as
// {"event": name, "data": {...}} JSON frames; inside the process every event
// is one concrete Go type.
//
// Payload keys are snake_case. Inbound payloads may also use the camelCase
// form of a key (conversationId, messageIds, messageType, fileUrl, fileName,
// fileSize, mimeType, replyTo, messageId); when both forms are present the
// snake_case value wins. Outbound payloads are always snake_case.
package protocol

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/ammar1510/docconnect/internal/apperr"
	"github.com/ammar1510/docconnect/internal/models"
)

// Inbound event names
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventSendMessage       = "send_message"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventMarkAsDelivered   = "mark_as_delivered"
	EventMarkAsRead        = "mark_as_read"
	EventEditMessage       = "edit_message"
	EventDeleteMessage     = "delete_message"
	EventUpdateStatus      = "update_status"
)

var (
	ErrMalformedFrame = apperr.Validation("malformed event frame")
	ErrUnknownEvent   = apperr.Validation("unknown event")
)

// Inbound is implemented by every client-to-server event
type Inbound interface {
	EventName() string
	validate() error
}

type JoinConversation struct {
	ConversationID uuid.UUID `json:"conversation_id"`
}

type LeaveConversation struct {
	ConversationID uuid.UUID `json:"conversation_id"`
}

type SendMessage struct {
	ConversationID uuid.UUID          `json:"conversation_id"`
	Content        string             `json:"content"`
	MessageType    models.MessageType `json:"message_type"`
	FileURL        string             `json:"file_url,omitempty"`
	FileName       string             `json:"file_name,omitempty"`
	FileSize       int64              `json:"file_size,omitempty"`
	MimeType       string             `json:"mime_type,omitempty"`
	ReplyTo        *uuid.UUID         `json:"reply_to,omitempty"`
}

// Attachment returns the file fields, or nil when none were sent
func (e *SendMessage) Attachment() *models.FileAttachment {
	if e.FileURL == "" && e.FileName == "" && e.FileSize == 0 {
		return nil
	}
	return &models.FileAttachment{URL: e.FileURL, Name: e.FileName, Size: e.FileSize, MimeType: e.MimeType}
}

type TypingStart struct {
	ConversationID uuid.UUID `json:"conversation_id"`
}

type TypingStop struct {
	ConversationID uuid.UUID `json:"conversation_id"`
}

type MarkAsDelivered struct {
	ConversationID uuid.UUID   `json:"conversation_id"`
	MessageIDs     []uuid.UUID `json:"message_ids"`
}

type MarkAsRead struct {
	ConversationID uuid.UUID   `json:"conversation_id"`
	MessageIDs     []uuid.UUID `json:"message_ids"`
}

type EditMessage struct {
	MessageID uuid.UUID `json:"message_id"`
	Content   string    `json:"content"`
}

type DeleteMessage struct {
	MessageID uuid.UUID `json:"message_id"`
}

type UpdateStatus struct {
	Status models.PresenceStatus `json:"status"`
}

func (*JoinConversation) EventName() string  { return EventJoinConversation }
func (*LeaveConversation) EventName() string { return EventLeaveConversation }
func (*SendMessage) EventName() string       { return EventSendMessage }
func (*TypingStart) EventName() string       { return EventTypingStart }
func (*TypingStop) EventName() string        { return EventTypingStop }
func (*MarkAsDelivered) EventName() string   { return EventMarkAsDelivered }
func (*MarkAsRead) EventName() string        { return EventMarkAsRead }
func (*EditMessage) EventName() string       { return EventEditMessage }
func (*DeleteMessage) EventName() string     { return EventDeleteMessage }
func (*UpdateStatus) EventName() string      { return EventUpdateStatus }

const maxBulkIDs = 500

var errConversationRequired = apperr.Validation("conversation_id is required")

func requireConversation(id uuid.UUID) error {
	if id == uuid.Nil {
		return errConversationRequired
	}
	return nil
}

func validateIDs(ids []uuid.UUID) error {
	if len(ids) == 0 {
		return apperr.Validation("message_ids must not be empty")
	}
	if len(ids) > maxBulkIDs {
		return apperr.Validation("too many message_ids in one request")
	}
	return nil
}

func (e *JoinConversation) validate() error  { return requireConversation(e.ConversationID) }
func (e *LeaveConversation) validate() error { return requireConversation(e.ConversationID) }
func (e *SendMessage) validate() error       { return requireConversation(e.ConversationID) }
func (e *TypingStart) validate() error       { return requireConversation(e.ConversationID) }
func (e *TypingStop) validate() error        { return requireConversation(e.ConversationID) }
func (e *MarkAsDelivered) validate() error   { return validateIDs(e.MessageIDs) }
func (e *MarkAsRead) validate() error        { return validateIDs(e.MessageIDs) }

func (e *EditMessage) validate() error {
	if e.MessageID == uuid.Nil {
		return apperr.Validation("message_id is required")
	}
	return nil
}

func (e *DeleteMessage) validate() error {
	if e.MessageID == uuid.Nil {
		return apperr.Validation("message_id is required")
	}
	return nil
}

func (e *UpdateStatus) validate() error {
	if !e.Status.Valid() {
		return apperr.ErrInvalidStatus
	}
	return nil
}

// camelKeys maps accepted camelCase payload keys to their canonical names
var camelKeys = map[string]string{
	"conversationId": "conversation_id",
	"messageIds":     "message_ids",
	"messageId":      "message_id",
	"messageType":    "message_type",
	"fileUrl":        "file_url",
	"fileName":       "file_name",
	"fileSize":       "file_size",
	"mimeType":       "mime_type",
	"replyTo":        "reply_to",
}

// canonicalKeys rewrites camelCase keys of a payload object. Payloads that
// are not objects or carry no aliases come back unchanged.
func canonicalKeys(data json.RawMessage) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}

	renamed := false
	for camel, snake := range camelKeys {
		v, ok := fields[camel]
		if !ok {
			continue
		}
		delete(fields, camel)
		if _, exists := fields[snake]; !exists {
			fields[snake] = v
		}
		renamed = true
	}
	if !renamed {
		return data, nil
	}
	return json.Marshal(fields)
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newInbound(name string) Inbound {
	switch name {
	case EventJoinConversation:
		return &JoinConversation{}
	case EventLeaveConversation:
		return &LeaveConversation{}
	case EventSendMessage:
		return &SendMessage{}
	case EventTypingStart:
		return &TypingStart{}
	case EventTypingStop:
		return &TypingStop{}
	case EventMarkAsDelivered:
		return &MarkAsDelivered{}
	case EventMarkAsRead:
		return &MarkAsRead{}
	case EventEditMessage:
		return &EditMessage{}
	case EventDeleteMessage:
		return &DeleteMessage{}
	case EventUpdateStatus:
		return &UpdateStatus{}
	}
	return nil
}

// KnownInbound reports whether name is a client-to-server event
func KnownInbound(name string) bool {
	return newInbound(name) != nil
}

// DecodeInbound parses and validates one client frame. The returned name is
// the raw event name, useful for error replies even when decoding fails.
func DecodeInbound(raw []byte) (Inbound, string, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, "", ErrMalformedFrame
	}
	name := strings.TrimSpace(f.Event)

	ev := newInbound(name)
	if ev == nil {
		return nil, name, ErrUnknownEvent
	}
	if len(f.Data) > 0 && string(f.Data) != "null" {
		data, err := canonicalKeys(f.Data)
		if err == nil {
			err = json.Unmarshal(data, ev)
		}
		if err != nil {
			return nil, name, apperr.Wrap(apperr.KindValidation, "malformed "+name+" payload", err)
		}
	}
	if err := ev.validate(); err != nil {
		return nil, name, err
	}
	return ev, name, nil
}
