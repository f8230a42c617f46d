package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/docconnect/internal/auth"
	"github.com/ammar1510/docconnect/internal/chat"
	"github.com/ammar1510/docconnect/internal/database"
	"github.com/ammar1510/docconnect/internal/messaging"
	"github.com/ammar1510/docconnect/internal/models"
	"github.com/ammar1510/docconnect/internal/notification"
	"github.com/ammar1510/docconnect/internal/presence"
	"github.com/ammar1510/docconnect/internal/queue"
	"github.com/ammar1510/docconnect/internal/websocket"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	auth.InitJWTKey([]byte("test-secret"))
	os.Exit(m.Run())
}

// testEnv is the full REST stack on top of the in-memory store
type testEnv struct {
	router  *gin.Engine
	db      *database.MemoryDB
	queue   *queue.MemoryQueue
	tracker *presence.Tracker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := database.NewMemoryDB()
	q := queue.NewMemoryQueue(queue.DefaultCapacity)
	manager := websocket.NewManager()
	tracker := presence.NewTracker(presence.NewMemoryRegistry(), db, manager.PresenceBroadcaster())
	notifications := notification.NewService(db, tracker, manager, q)
	convs := messaging.NewConversations(db, db)
	msgs := messaging.NewMessages(db, db, convs)
	chatSvc := chat.NewService(convs, msgs, db, tracker, manager, notifications)

	router := gin.New()
	RegisterRoutes(router, Handlers{
		Auth:          NewAuthHandler(db),
		Conversations: NewConversationHandler(convs, chatSvc),
		Messages:      NewMessageHandler(msgs, chatSvc),
		Notifications: NewNotificationHandler(notifications),
		Presence:      NewPresenceHandler(tracker),
	})

	return &testEnv{router: router, db: db, queue: q, tracker: tracker}
}

// user creates an active account and returns it with a bearer token
func (e *testEnv) user(t *testing.T, username string, role models.Role) (*models.User, string) {
	t.Helper()

	hash, err := auth.HashPassword("password123")
	require.NoError(t, err)
	u, err := e.db.CreateUser(context.Background(), &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	})
	require.NoError(t, err)

	token, _, err := auth.GenerateToken(u)
	require.NoError(t, err)
	return u, token
}

// conversation opens a conversation between two users through the API
func (e *testEnv) conversation(t *testing.T, token string, with uuid.UUID) uuid.UUID {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/conversations", token, gin.H{"participant_id": with})
	require.Contains(t, []int{http.StatusOK, http.StatusCreated}, w.Code, w.Body.String())

	var view models.ConversationView
	decodeData(t, w, &view)
	return view.ID
}

func (e *testEnv) send(t *testing.T, token string, convID uuid.UUID, content string) *models.Message {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/conversations/"+convID.String()+"/messages", token, gin.H{"content": content})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var msg models.Message
	decodeData(t, w, &msg)
	return &msg
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success    bool                  `json:"success"`
	Message    string                `json:"message"`
	Data       json.RawMessage       `json:"data"`
	Pagination *messaging.Pagination `json:"pagination"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()

	env := decode(t, w)
	require.True(t, env.Success, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, out))
}
