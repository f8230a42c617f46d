package database

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/docconnect/internal/models"
)

// runStoreSuite exercises the behaviour every DBInterface backend must share
func runStoreSuite(t *testing.T, newDB func(t *testing.T) DBInterface) {
	t.Run("find or create is idempotent and order independent", func(t *testing.T) {
		db := newDB(t)
		ctx := context.Background()
		a, b := createUser(t, db, "alice"), createUser(t, db, "bob")

		first, created, err := db.FindOrCreateConversation(ctx, a.ID, b.ID, &models.RelatedTo{Kind: models.RelatedJob, ID: uuid.New()})
		require.NoError(t, err)
		assert.True(t, created)
		require.NotNil(t, first.RelatedTo)

		second, created, err := db.FindOrCreateConversation(ctx, b.ID, a.ID, nil)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("concurrent find or create yields one conversation", func(t *testing.T) {
		db := newDB(t)
		ctx := context.Background()
		a, b := createUser(t, db, "carol"), createUser(t, db, "dave")

		const workers = 8
		ids := make([]uuid.UUID, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				x, y := a.ID, b.ID
				if i%2 == 1 {
					x, y = y, x
				}
				conv, _, err := db.FindOrCreateConversation(ctx, x, y, nil)
				assert.NoError(t, err)
				if conv != nil {
					ids[i] = conv.ID
				}
			}(i)
		}
		wg.Wait()

		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
	})

	t.Run("create message updates last message, unread and sequence", func(t *testing.T) {
		db := newDB(t)
		ctx := context.Background()
		conv, a, b := seedConversation(t, db)

		m1 := sendText(t, db, conv.ID, a.ID, b.ID, "hello")
		m2 := sendText(t, db, conv.ID, a.ID, b.ID, "are you there?")
		assert.Equal(t, int64(1), m1.Seq)
		assert.Equal(t, int64(2), m2.Seq)
		assert.Equal(t, models.StatusSent, m2.Status)

		got, err := db.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastMessage)
		assert.Equal(t, "are you there?", got.LastMessage.Content)
		assert.Equal(t, a.ID, got.LastMessage.SenderID)
		assert.Equal(t, 2, got.Participant(b.ID).UnreadCount)
		assert.Equal(t, 0, got.Participant(a.ID).UnreadCount)
	})

	t.Run("status transitions only move forward", func(t *testing.T) {
		db := newDB(t)
		ctx := context.Background()
		conv, a, b := seedConversation(t, db)
		m := sendText(t, db, conv.ID, a.ID, b.ID, "hi")
		now := time.Now().UTC()

		// Only the recipient can move the message
		changed, err := db.MarkDelivered(ctx, []uuid.UUID{m.ID}, a.ID, now)
		require.NoError(t, err)
		assert.Empty(t, changed)

		changed, err = db.MarkRead(ctx, []uuid.UUID{m.ID, m.ID}, b.ID, now)
		require.NoError(t, err)
		require.Len(t, changed, 1)
		assert.Equal(t, models.StatusRead, changed[0].Status)
		assert.NotNil(t, changed[0].ReadAt)
		assert.NotNil(t, changed[0].DeliveredAt)

		changed, err = db.MarkDelivered(ctx, []uuid.UUID{m.ID}, b.ID, now.Add(time.Second))
		require.NoError(t, err)
		assert.Empty(t, changed)

		got, err := db.GetMessage(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusRead, got.Status)
	})

	t.Run("read reconciles unread without losing pending messages", func(t *testing.T) {
		db := newDB(t)
		ctx := context.Background()
		conv, a, b := seedConversation(t, db)
		m1 := sendText(t, db, conv.ID, a.ID, b.ID, "one")
		sendText(t, db, conv.ID, a.ID, b.ID, "two")

		_, err := db.MarkRead(ctx, []uuid.UUID{m1.ID}, b.ID, time.Now().UTC())
		require.NoError(t, err)

		got, err := db.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Participant(b.ID).UnreadCount)

		changed, err := db.MarkConversationRead(ctx, conv.ID, b.ID, time.Now().UTC())
		require.NoError(t, err)
		assert.Len(t, changed, 1)

		got, err = db.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.Participant(b.ID).UnreadCount)
	})

	t.Run("pending messages are delivered on reconnect", func(t *testing.T) {
		db := newDB(t)
		ctx := context.Background()
		conv, a, b := seedConversation(t, db)
		sendText(t, db, conv.ID, a.ID, b.ID, "one")
		sendText(t, db, conv.ID, a.ID, b.ID, "two")

		changed, err := db.MarkPendingDelivered(ctx, b.ID, time.Now().UTC())
		require.NoError(t, err)
		require.Len(t, changed, 2)
		assert.Less(t, changed[0].Seq, changed[1].Seq)

		got, err := db.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Participant(b.ID).UnreadCount)
	})

	t.Run("list is newest first and hides messages deleted by the viewer", func(t *testing.T) {
		db := newDB(t)
		ctx := context.Background()
		conv, a, b := seedConversation(t, db)
		var ids []uuid.UUID
		for i := 0; i < 5; i++ {
			ids = append(ids, sendText(t, db, conv.ID, a.ID, b.ID, fmt.Sprintf("m%d", i)).ID)
		}

		_, err := db.SoftDeleteMessage(ctx, ids[4], a.ID)
		require.NoError(t, err)
		_, err = db.SoftDeleteMessage(ctx, ids[4], a.ID)
		require.NoError(t, err)

		forA, total, err := db.ListMessages(ctx, conv.ID, a.ID, 0, 2)
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		require.Len(t, forA, 2)
		assert.Equal(t, "m3", forA[0].Content)
		assert.Equal(t, "m2", forA[1].Content)

		forB, total, err := db.ListMessages(ctx, conv.ID, b.ID, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Equal(t, "m4", forB[0].Content)
		assert.Equal(t, []uuid.UUID{a.ID}, forB[0].DeletedBy)

		got, err := db.GetConversation(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, "m4", got.LastMessage.Content)
	})

	t.Run("only text messages can be edited", func(t *testing.T) {
		db := newDB(t)
		ctx := context.Background()
		conv, a, b := seedConversation(t, db)

		file, err := db.CreateMessage(ctx, &models.Message{
			ConversationID: conv.ID, SenderID: a.ID, RecipientID: b.ID,
			Type: models.MessageTypeFile,
			File: &models.FileAttachment{URL: "https://cdn.test/cv.pdf", Name: "cv.pdf", Size: 2048},
		})
		require.NoError(t, err)
		assert.Equal(t, "[file] cv.pdf", mustConversation(t, db, conv.ID).LastMessage.Content)

		_, err = db.UpdateMessageContent(ctx, file.ID, "nope", time.Now().UTC())
		assert.ErrorIs(t, err, ErrNotEditable)

		text := sendText(t, db, conv.ID, a.ID, b.ID, "draft")
		edited, err := db.UpdateMessageContent(ctx, text.ID, "final", time.Now().UTC())
		require.NoError(t, err)
		assert.Equal(t, "final", edited.Content)
		assert.NotNil(t, edited.EditedAt)
		assert.Equal(t, "final", mustConversation(t, db, conv.ID).LastMessage.Content)

		_, err = db.UpdateMessageContent(ctx, uuid.New(), "x", time.Now().UTC())
		assert.ErrorIs(t, err, ErrMessageNotFound)
	})

	t.Run("archive hides the conversation for one participant only", func(t *testing.T) {
		db := newDB(t)
		ctx := context.Background()
		conv, a, b := seedConversation(t, db)

		archived, err := db.ToggleArchive(ctx, conv.ID, a.ID)
		require.NoError(t, err)
		assert.True(t, archived)

		list, total, err := db.ListConversations(ctx, a.ID, 0, 20)
		require.NoError(t, err)
		assert.Empty(t, list)
		assert.Zero(t, total)

		list, _, err = db.ListConversations(ctx, b.ID, 0, 20)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		archived, err = db.ToggleArchive(ctx, conv.ID, a.ID)
		require.NoError(t, err)
		assert.False(t, archived)

		muted, err := db.ToggleMute(ctx, conv.ID, b.ID)
		require.NoError(t, err)
		assert.True(t, muted)

		_, err = db.ToggleMute(ctx, uuid.New(), b.ID)
		assert.ErrorIs(t, err, ErrConversationNotFound)
	})

	t.Run("conversations are ordered by last activity", func(t *testing.T) {
		db := newDB(t)
		ctx := context.Background()
		a := createUser(t, db, "erin")
		b, c := createUser(t, db, "frank"), createUser(t, db, "grace")

		older, _, err := db.FindOrCreateConversation(ctx, a.ID, b.ID, nil)
		require.NoError(t, err)
		newer, _, err := db.FindOrCreateConversation(ctx, a.ID, c.ID, nil)
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)
		sendText(t, db, older.ID, b.ID, a.ID, "bump")

		list, total, err := db.ListConversations(ctx, a.ID, 0, 20)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, list, 2)
		assert.Equal(t, older.ID, list[0].ID)
		assert.Equal(t, newer.ID, list[1].ID)
		assert.Equal(t, 1, list[0].Participant(a.ID).UnreadCount)
	})

	t.Run("notifications are listed newest first and marked read", func(t *testing.T) {
		db := newDB(t)
		ctx := context.Background()
		u := createUser(t, db, "heidi")

		base := time.Now().UTC().Truncate(time.Millisecond)
		var ids []uuid.UUID
		for i := 0; i < 3; i++ {
			n := &models.Notification{
				ID: uuid.New(), UserID: u.ID, Type: models.NotificationNewMessage,
				Title: fmt.Sprintf("n%d", i), Data: []byte(`{"k":1}`),
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			}
			require.NoError(t, db.CreateNotification(ctx, n))
			ids = append(ids, n.ID)
		}

		list, total, err := db.ListNotifications(ctx, u.ID, 0, 2)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, list, 2)
		assert.Equal(t, "n2", list[0].Title)
		assert.JSONEq(t, `{"k":1}`, string(list[0].Data))

		n, err := db.MarkNotificationsRead(ctx, u.ID, ids[:2])
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		n, err = db.MarkNotificationsRead(ctx, u.ID, ids[:2])
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("users and presence", func(t *testing.T) {
		db := newDB(t)
		ctx := context.Background()
		u := createUser(t, db, "ivan")

		_, err := db.CreateUser(ctx, &models.User{Username: "ivan", Email: "other@example.com", PasswordHash: "x", IsActive: true})
		assert.ErrorIs(t, err, ErrUserAlreadyExists)

		byEmail, err := db.GetUserByEmail(ctx, "IVAN@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byEmail.ID)

		seen := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, db.UpdatePresence(ctx, u.ID, models.PresenceAway, seen))
		got, err := db.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PresenceAway, got.Status)
		assert.True(t, seen.Equal(got.LastSeen))

		assert.ErrorIs(t, db.UpdatePresence(ctx, uuid.New(), models.PresenceOnline, seen), ErrUserNotFound)
		_, err = db.GetUserByID(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func createUser(t *testing.T, db DBInterface, name string) *models.User {
	t.Helper()
	u, err := db.CreateUser(context.Background(), &models.User{
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: "hash",
		Role:         models.RoleJunior,
		IsActive:     true,
	})
	require.NoError(t, err)
	return u
}

func seedConversation(t *testing.T, db DBInterface) (*models.Conversation, *models.User, *models.User) {
	t.Helper()
	suffix := uuid.NewString()[:8]
	a, b := createUser(t, db, "senior-"+suffix), createUser(t, db, "junior-"+suffix)
	conv, _, err := db.FindOrCreateConversation(context.Background(), a.ID, b.ID, nil)
	require.NoError(t, err)
	return conv, a, b
}

func sendText(t *testing.T, db DBInterface, convID, from, to uuid.UUID, content string) *models.Message {
	t.Helper()
	m, err := db.CreateMessage(context.Background(), &models.Message{
		ConversationID: convID,
		SenderID:       from,
		RecipientID:    to,
		Type:           models.MessageTypeText,
		Content:        content,
	})
	require.NoError(t, err)
	return m
}

func mustConversation(t *testing.T, db DBInterface, id uuid.UUID) *models.Conversation {
	t.Helper()
	conv, err := db.GetConversation(context.Background(), id)
	require.NoError(t, err)
	return conv
}
