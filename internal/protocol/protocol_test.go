package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/docconnect/internal/apperr"
	"github.com/ammar1510/docconnect/internal/models"
)

func TestDecodeInbound(t *testing.T) {
	convID := uuid.New()
	msgID := uuid.New()

	testCases := []struct {
		name  string
		frame string
		want  Inbound
	}{
		{
			name:  "join",
			frame: `{"event":"join_conversation","data":{"conversation_id":"` + convID.String() + `"}}`,
			want:  &JoinConversation{ConversationID: convID},
		},
		{
			name:  "send file",
			frame: `{"event":"send_message","data":{"conversation_id":"` + convID.String() + `","message_type":"file","file_url":"https://cdn/x.pdf","file_name":"x.pdf","file_size":12}}`,
			want: &SendMessage{
				ConversationID: convID, MessageType: models.MessageTypeFile,
				FileURL: "https://cdn/x.pdf", FileName: "x.pdf", FileSize: 12,
			},
		},
		{
			name:  "mark read",
			frame: `{"event":"mark_as_read","data":{"conversation_id":"` + convID.String() + `","message_ids":["` + msgID.String() + `"]}}`,
			want:  &MarkAsRead{ConversationID: convID, MessageIDs: []uuid.UUID{msgID}},
		},
		{
			name:  "edit",
			frame: `{"event":"edit_message","data":{"message_id":"` + msgID.String() + `","content":"fixed"}}`,
			want:  &EditMessage{MessageID: msgID, Content: "fixed"},
		},
		{
			name:  "status",
			frame: `{"event":"update_status","data":{"status":"away"}}`,
			want:  &UpdateStatus{Status: models.PresenceAway},
		},
		{
			name:  "camelCase join",
			frame: `{"event":"join_conversation","data":{"conversationId":"` + convID.String() + `"}}`,
			want:  &JoinConversation{ConversationID: convID},
		},
		{
			name:  "camelCase mark delivered",
			frame: `{"event":"mark_as_delivered","data":{"conversationId":"` + convID.String() + `","messageIds":["` + msgID.String() + `"]}}`,
			want:  &MarkAsDelivered{ConversationID: convID, MessageIDs: []uuid.UUID{msgID}},
		},
		{
			name:  "camelCase send reply",
			frame: `{"event":"send_message","data":{"conversationId":"` + convID.String() + `","content":"ok","messageType":"text","replyTo":"` + msgID.String() + `"}}`,
			want: &SendMessage{
				ConversationID: convID, Content: "ok", MessageType: models.MessageTypeText, ReplyTo: &msgID,
			},
		},
		{
			name:  "camelCase file fields",
			frame: `{"event":"send_message","data":{"conversationId":"` + convID.String() + `","messageType":"file","fileUrl":"https://cdn/x.pdf","fileName":"x.pdf","fileSize":12,"mimeType":"application/pdf"}}`,
			want: &SendMessage{
				ConversationID: convID, MessageType: models.MessageTypeFile,
				FileURL: "https://cdn/x.pdf", FileName: "x.pdf", FileSize: 12, MimeType: "application/pdf",
			},
		},
		{
			name:  "camelCase delete",
			frame: `{"event":"delete_message","data":{"messageId":"` + msgID.String() + `"}}`,
			want:  &DeleteMessage{MessageID: msgID},
		},
		{
			name:  "snake_case wins over camelCase",
			frame: `{"event":"join_conversation","data":{"conversationId":"` + uuid.NewString() + `","conversation_id":"` + convID.String() + `"}}`,
			want:  &JoinConversation{ConversationID: convID},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ev, name, err := DecodeInbound([]byte(tc.frame))
			require.NoError(t, err)
			assert.Equal(t, tc.want, ev)
			assert.Equal(t, tc.want.EventName(), name)
		})
	}
}

func TestDecodeInboundErrors(t *testing.T) {
	testCases := []struct {
		name     string
		frame    string
		wantName string
		wantErr  error
	}{
		{"not json", `hello`, "", ErrMalformedFrame},
		{"unknown event", `{"event":"launch_rockets","data":{}}`, "launch_rockets", ErrUnknownEvent},
		{"missing conversation", `{"event":"typing_start","data":{}}`, "typing_start", errConversationRequired},
		{"missing data", `{"event":"join_conversation"}`, "join_conversation", errConversationRequired},
		{"bad uuid", `{"event":"join_conversation","data":{"conversation_id":"nope"}}`, "join_conversation", nil},
		{"empty ids", `{"event":"mark_as_delivered","data":{"message_ids":[]}}`, "mark_as_delivered", nil},
		{"empty camelCase ids", `{"event":"mark_as_read","data":{"messageIds":[]}}`, "mark_as_read", nil},
		{"data not an object", `{"event":"join_conversation","data":[1,2]}`, "join_conversation", nil},
		{"bad status", `{"event":"update_status","data":{"status":"busy"}}`, "update_status", apperr.ErrInvalidStatus},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ev, name, err := DecodeInbound([]byte(tc.frame))
			assert.Nil(t, ev)
			assert.Equal(t, tc.wantName, name)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestSendMessageAttachment(t *testing.T) {
	assert.Nil(t, (&SendMessage{Content: "hi"}).Attachment())

	file := (&SendMessage{FileURL: "u", FileName: "cv.pdf", FileSize: 3, MimeType: "application/pdf"}).Attachment()
	require.NotNil(t, file)
	assert.Equal(t, models.FileAttachment{URL: "u", Name: "cv.pdf", Size: 3, MimeType: "application/pdf"}, *file)
}

func TestEncodeEnvelope(t *testing.T) {
	msg := &models.Message{
		ID: uuid.New(), ConversationID: uuid.New(), Seq: 7,
		Type: models.MessageTypeText, Content: "Hello", Status: models.StatusSent,
		DeletedBy: []uuid.UUID{uuid.New()}, CreatedAt: time.Now().UTC(),
	}

	raw, err := Encode(NewMessage{Message: msg})
	require.NoError(t, err)

	var env struct {
		Event string                 `json:"event"`
		ID    string                 `json:"id"`
		TS    time.Time              `json:"ts"`
		Data  map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, EventNewMessage, env.Event)
	_, err = ulid.ParseStrict(env.ID)
	assert.NoError(t, err)
	assert.WithinDuration(t, time.Now(), env.TS, time.Minute)
	assert.Equal(t, "Hello", env.Data["content"])
	assert.Equal(t, float64(7), env.Data["seq"])
	assert.NotContains(t, env.Data, "deleted_by")
}

func TestEncodeIDsAreSortable(t *testing.T) {
	first := MustEncode(Error{Message: "a"})
	time.Sleep(2 * time.Millisecond)
	second := MustEncode(Error{Message: "b"})

	var a, b Envelope
	require.NoError(t, json.Unmarshal(first, &a))
	require.NoError(t, json.Unmarshal(second, &b))
	assert.Less(t, a.ID, b.ID)
}

func TestEncodePresence(t *testing.T) {
	userID := uuid.New()
	raw := MustEncode(UserStatusChanged{Presence: models.Presence{UserID: userID, Status: models.PresenceOnline}})

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	data := env.Data.(map[string]interface{})
	assert.Equal(t, EventUserStatusChanged, env.Event)
	assert.Equal(t, userID.String(), data["user_id"])
	assert.Equal(t, "online", data["status"])
}
