package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/docconnect/internal/models"
	"github.com/ammar1510/docconnect/internal/protocol"
)

func messagesPath(convID uuid.UUID) string {
	return "/api/conversations/" + convID.String() + "/messages"
}

func TestSendMessageOffline(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.user(t, "alice", models.RoleSenior)
	bob, _ := env.user(t, "bob", models.RoleJunior)
	convID := env.conversation(t, aliceToken, bob.ID)

	msg := env.send(t, aliceToken, convID, "  Are you free on Saturday?  ")
	assert.Equal(t, "Are you free on Saturday?", msg.Content)
	assert.Equal(t, models.MessageTypeText, msg.Type)
	assert.Equal(t, models.StatusSent, msg.Status)
	assert.Equal(t, alice.ID, msg.SenderID)
	assert.Equal(t, bob.ID, msg.RecipientID)
	assert.Nil(t, msg.DeliveredAt)

	// bob is offline so the notification waits in his queue
	queued, err := env.queue.Drain(context.Background(), bob.ID)
	require.NoError(t, err)
	require.Len(t, queued, 1)

	var frame struct {
		Event string              `json:"event"`
		Data  models.Notification `json:"data"`
	}
	require.NoError(t, json.Unmarshal(queued[0], &frame))
	assert.Equal(t, protocol.EventNewNotification, frame.Event)
	assert.Equal(t, "New message from alice", frame.Data.Title)
	assert.Equal(t, models.NotificationNewMessage, frame.Data.Type)
}

func TestSendMessageOnlineRecipient(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.user(t, "alice", models.RoleSenior)
	bob, _ := env.user(t, "bob", models.RoleJunior)
	convID := env.conversation(t, aliceToken, bob.ID)

	_, err := env.tracker.Connect(context.Background(), bob.ID, "conn-1")
	require.NoError(t, err)

	msg := env.send(t, aliceToken, convID, "hi")
	assert.Equal(t, models.StatusDelivered, msg.Status)
	require.NotNil(t, msg.DeliveredAt)
}

func TestSendMessageMutedSkipsNotification(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.user(t, "alice", models.RoleSenior)
	_, bobToken := env.user(t, "bob", models.RoleJunior)
	convID := env.conversation(t, bobToken, alice.ID)

	w := env.do(t, http.MethodPut, "/api/conversations/"+convID.String()+"/mute", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	env.send(t, aliceToken, convID, "quiet please")

	bob, err := env.db.GetUserByEmail(context.Background(), "bob@example.com")
	require.NoError(t, err)
	n, err := env.queue.Len(context.Background(), bob.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSendMessageValidation(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.user(t, "alice", models.RoleSenior)
	bob, _ := env.user(t, "bob", models.RoleJunior)
	_, malloryToken := env.user(t, "mallory", models.RoleJunior)
	convID := env.conversation(t, aliceToken, bob.ID)

	tests := []struct {
		name        string
		token       string
		body        interface{}
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "blank content",
			token:       aliceToken,
			body:        gin.H{"content": "   "},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "message content is required",
		},
		{
			name:        "content too long",
			token:       aliceToken,
			body:        gin.H{"content": strings.Repeat("a", 4001)},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "content must be at most 4000 characters",
		},
		{
			name:        "unknown type",
			token:       aliceToken,
			body:        gin.H{"content": "x", "message_type": "video"},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "message_type must be one of: text, file, system",
		},
		{
			name:        "file without size",
			token:       aliceToken,
			body:        gin.H{"message_type": "file", "file_url": "https://cdn.example.com/cv.pdf", "file_name": "cv.pdf"},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "file messages require file_url, file_name and file_size",
		},
		{
			name:        "bad file url",
			token:       aliceToken,
			body:        gin.H{"message_type": "file", "file_url": "not a url", "file_name": "cv.pdf", "file_size": 10},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "file_url must be a valid URL",
		},
		{
			name:        "reply outside thread",
			token:       aliceToken,
			body:        gin.H{"content": "x", "reply_to": uuid.New()},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "reply must reference a message in the same conversation",
		},
		{
			name:        "not a participant",
			token:       malloryToken,
			body:        gin.H{"content": "hello"},
			wantStatus:  http.StatusForbidden,
			wantMessage: "you are not a participant in this conversation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, messagesPath(convID), tt.token, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.wantMessage, decode(t, w).Message)
		})
	}
}

func TestSendFileMessage(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.user(t, "alice", models.RoleSenior)
	bob, _ := env.user(t, "bob", models.RoleJunior)
	convID := env.conversation(t, aliceToken, bob.ID)

	w := env.do(t, http.MethodPost, messagesPath(convID), aliceToken, gin.H{
		"message_type": "file",
		"content":      "ignored",
		"file_url":     "https://cdn.example.com/cv.pdf",
		"file_name":    "cv.pdf",
		"file_size":    2048,
		"mime_type":    "application/pdf",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var msg models.Message
	decodeData(t, w, &msg)
	assert.Equal(t, models.MessageTypeFile, msg.Type)
	assert.Empty(t, msg.Content)
	require.NotNil(t, msg.File)
	assert.Equal(t, "cv.pdf", msg.File.Name)
	assert.EqualValues(t, 2048, msg.File.Size)
}

func TestListMessages(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.user(t, "alice", models.RoleSenior)
	bob, bobToken := env.user(t, "bob", models.RoleJunior)
	convID := env.conversation(t, aliceToken, bob.ID)

	for _, content := range []string{"m1", "m2", "m3", "m4", "m5"} {
		env.send(t, aliceToken, convID, content)
	}

	w := env.do(t, http.MethodGet, messagesPath(convID)+"?limit=2", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	require.NotNil(t, resp.Pagination)
	assert.Equal(t, 5, resp.Pagination.Total)
	assert.Equal(t, 3, resp.Pagination.TotalPages)

	var page []models.Message
	decodeData(t, w, &page)
	require.Len(t, page, 2)
	assert.Equal(t, "m4", page[0].Content)
	assert.Equal(t, "m5", page[1].Content)
	assert.Less(t, page[0].Seq, page[1].Seq)

	w = env.do(t, http.MethodGet, messagesPath(convID)+"?page=3&limit=2", bobToken, nil)
	decodeData(t, w, &page)
	require.Len(t, page, 1)
	assert.Equal(t, "m1", page[0].Content)
}

func TestListMessagesHugePage(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.user(t, "alice", models.RoleSenior)
	bob, bobToken := env.user(t, "bob", models.RoleJunior)
	convID := env.conversation(t, aliceToken, bob.ID)
	env.send(t, aliceToken, convID, "hello")

	for _, path := range []string{
		messagesPath(convID) + "?page=100000000000000000&limit=100",
		"/api/conversations?page=100000000000000000&limit=100",
		"/api/notifications?page=100000000000000000",
	} {
		w := env.do(t, http.MethodGet, path, bobToken, nil)
		require.Equal(t, http.StatusOK, w.Code, path)

		resp := decode(t, w)
		assert.True(t, resp.Success)
		assert.JSONEq(t, "[]", string(resp.Data), path)
		require.NotNil(t, resp.Pagination)
		assert.Equal(t, 1, resp.Pagination.Total, path)
	}
}

func TestMarkDeliveredThenRead(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.user(t, "alice", models.RoleSenior)
	bob, bobToken := env.user(t, "bob", models.RoleJunior)
	convID := env.conversation(t, aliceToken, bob.ID)

	m1 := env.send(t, aliceToken, convID, "one")
	m2 := env.send(t, aliceToken, convID, "two")
	ids := gin.H{"message_ids": []uuid.UUID{m1.ID, m2.ID}}

	// the sender cannot acknowledge its own messages
	w := env.do(t, http.MethodPut, "/api/messages/delivered", aliceToken, ids)
	require.Equal(t, http.StatusOK, w.Code)
	var result map[string]interface{}
	decodeData(t, w, &result)
	assert.EqualValues(t, 0, result["updated"])

	w = env.do(t, http.MethodPut, "/api/messages/delivered", bobToken, ids)
	decodeData(t, w, &result)
	assert.EqualValues(t, 2, result["updated"])

	w = env.do(t, http.MethodPut, "/api/messages/read", bobToken, ids)
	decodeData(t, w, &result)
	assert.EqualValues(t, 2, result["updated"])

	// delivered after read changes nothing
	w = env.do(t, http.MethodPut, "/api/messages/delivered", bobToken, ids)
	decodeData(t, w, &result)
	assert.EqualValues(t, 0, result["updated"])

	w = env.do(t, http.MethodGet, messagesPath(convID), bobToken, nil)
	var msgs []models.Message
	decodeData(t, w, &msgs)
	for _, m := range msgs {
		assert.Equal(t, models.StatusRead, m.Status)
		assert.NotNil(t, m.DeliveredAt)
		assert.NotNil(t, m.ReadAt)
	}

	w = env.do(t, http.MethodPut, "/api/messages/read", bobToken, gin.H{"message_ids": []uuid.UUID{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEditMessage(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.user(t, "alice", models.RoleSenior)
	bob, bobToken := env.user(t, "bob", models.RoleJunior)
	convID := env.conversation(t, aliceToken, bob.ID)
	msg := env.send(t, aliceToken, convID, "typo")
	path := "/api/messages/" + msg.ID.String()

	w := env.do(t, http.MethodPut, path, aliceToken, gin.H{"content": "fixed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var edited models.Message
	decodeData(t, w, &edited)
	assert.Equal(t, "fixed", edited.Content)
	assert.NotNil(t, edited.EditedAt)

	w = env.do(t, http.MethodPut, path, bobToken, gin.H{"content": "hijack"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "only the sender can edit this message", decode(t, w).Message)

	w = env.do(t, http.MethodPut, "/api/messages/"+uuid.NewString(), aliceToken, gin.H{"content": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteMessage(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.user(t, "alice", models.RoleSenior)
	bob, bobToken := env.user(t, "bob", models.RoleJunior)
	convID := env.conversation(t, aliceToken, bob.ID)
	msg := env.send(t, aliceToken, convID, "secret")

	w := env.do(t, http.MethodDelete, "/api/messages/"+msg.ID.String(), aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var page []models.Message
	w = env.do(t, http.MethodGet, messagesPath(convID), aliceToken, nil)
	decodeData(t, w, &page)
	assert.Empty(t, page)

	// still visible to the other participant
	w = env.do(t, http.MethodGet, messagesPath(convID), bobToken, nil)
	decodeData(t, w, &page)
	require.Len(t, page, 1)
	assert.Equal(t, "secret", page[0].Content)

	w = env.do(t, http.MethodPut, "/api/messages/"+msg.ID.String(), aliceToken, gin.H{"content": "again"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
