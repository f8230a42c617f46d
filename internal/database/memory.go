package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/docconnect/internal/models"
)

type pairKey [2]uuid.UUID

func newPairKey(a, b uuid.UUID) pairKey {
	if strings.Compare(a.String(), b.String()) > 0 {
		a, b = b, a
	}
	return pairKey{a, b}
}

// MemoryDB is a process-local DBInterface. A single mutex serializes every
// mutation, which gives the same atomicity the Postgres transactions provide.
type MemoryDB struct {
	mu sync.RWMutex

	users         map[uuid.UUID]*models.User
	conversations map[uuid.UUID]*models.Conversation
	pairs         map[pairKey]uuid.UUID
	nextSeq       map[uuid.UUID]int64
	messages      map[uuid.UUID]*models.Message
	byConv        map[uuid.UUID][]*models.Message
	notifications map[uuid.UUID][]*models.Notification
}

var _ DBInterface = (*MemoryDB)(nil)

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		users:         make(map[uuid.UUID]*models.User),
		conversations: make(map[uuid.UUID]*models.Conversation),
		pairs:         make(map[pairKey]uuid.UUID),
		nextSeq:       make(map[uuid.UUID]int64),
		messages:      make(map[uuid.UUID]*models.Message),
		byConv:        make(map[uuid.UUID][]*models.Message),
		notifications: make(map[uuid.UUID][]*models.Notification),
	}
}

func (db *MemoryDB) Close() error { return nil }

// Users

func (db *MemoryDB) CreateUser(_ context.Context, user *models.User) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if strings.EqualFold(u.Email, user.Email) || u.Username == user.Username {
			return nil, ErrUserAlreadyExists
		}
	}

	u := *user
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.LastSeen.IsZero() {
		u.LastSeen = now
	}
	if u.Status == "" {
		u.Status = models.PresenceOffline
	}
	db.users[u.ID] = &u

	out := u
	return &out, nil
}

func (db *MemoryDB) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, u := range db.users {
		if strings.EqualFold(u.Email, email) {
			out := *u
			return &out, nil
		}
	}
	return nil, ErrUserNotFound
}

func (db *MemoryDB) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	u, ok := db.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *u
	return &out, nil
}

func (db *MemoryDB) GetAllUsers(_ context.Context, excludeUserID uuid.UUID) ([]*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	users := make([]*models.User, 0, len(db.users))
	for _, u := range db.users {
		if u.ID == excludeUserID || !u.IsActive {
			continue
		}
		out := *u
		users = append(users, &out)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (db *MemoryDB) UpdatePresence(_ context.Context, userID uuid.UUID, status models.PresenceStatus, lastSeen time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	u, ok := db.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Status = status
	u.LastSeen = lastSeen
	return nil
}

// Conversations

func (db *MemoryDB) FindOrCreateConversation(_ context.Context, userA, userB uuid.UUID, related *models.RelatedTo) (*models.Conversation, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	key := newPairKey(userA, userB)
	if id, ok := db.pairs[key]; ok {
		return db.conversations[id].Clone(), false, nil
	}

	now := time.Now().UTC()
	conv := &models.Conversation{
		ID: uuid.New(),
		Participants: [2]models.Participant{
			{UserID: userA},
			{UserID: userB},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if related != nil {
		rt := *related
		conv.RelatedTo = &rt
	}
	db.conversations[conv.ID] = conv
	db.pairs[key] = conv.ID
	db.nextSeq[conv.ID] = 1

	return conv.Clone(), true, nil
}

func (db *MemoryDB) GetConversation(_ context.Context, id uuid.UUID) (*models.Conversation, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	conv, ok := db.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return conv.Clone(), nil
}

func activity(c *models.Conversation) time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.Timestamp
	}
	return c.CreatedAt
}

func (db *MemoryDB) ListConversations(_ context.Context, userID uuid.UUID, offset, limit int) ([]*models.Conversation, int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var matched []*models.Conversation
	for _, c := range db.conversations {
		p := c.Participant(userID)
		if p == nil || p.Archived {
			continue
		}
		matched = append(matched, c)
	}
	sort.Slice(matched, func(i, j int) bool {
		ai, aj := activity(matched[i]), activity(matched[j])
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return matched[i].ID.String() > matched[j].ID.String()
	})

	total := len(matched)
	out := make([]*models.Conversation, 0, limit)
	for _, c := range page(matched, offset, limit) {
		out = append(out, c.Clone())
	}
	return out, total, nil
}

func (db *MemoryDB) participant(conversationID, userID uuid.UUID) (*models.Participant, error) {
	conv, ok := db.conversations[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	p := conv.Participant(userID)
	if p == nil {
		return nil, ErrConversationNotFound
	}
	return p, nil
}

func (db *MemoryDB) IncrementUnread(_ context.Context, conversationID, userID uuid.UUID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	p, err := db.participant(conversationID, userID)
	if err != nil {
		return err
	}
	p.UnreadCount++
	return nil
}

func (db *MemoryDB) ResetUnread(_ context.Context, conversationID, userID uuid.UUID) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.reconcileLocked(conversationID, userID)
}

func (db *MemoryDB) reconcileLocked(conversationID, userID uuid.UUID) (int, error) {
	p, err := db.participant(conversationID, userID)
	if err != nil {
		return 0, err
	}
	pending := 0
	for _, m := range db.byConv[conversationID] {
		if m.RecipientID == userID && m.Status.Pending() {
			pending++
		}
	}
	p.UnreadCount = pending
	return pending, nil
}

func (db *MemoryDB) ToggleArchive(_ context.Context, conversationID, userID uuid.UUID) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	p, err := db.participant(conversationID, userID)
	if err != nil {
		return false, err
	}
	p.Archived = !p.Archived
	return p.Archived, nil
}

func (db *MemoryDB) ToggleMute(_ context.Context, conversationID, userID uuid.UUID) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	p, err := db.participant(conversationID, userID)
	if err != nil {
		return false, err
	}
	p.Muted = !p.Muted
	return p.Muted, nil
}

// Messages

func (db *MemoryDB) CreateMessage(_ context.Context, msg *models.Message) (*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	conv, ok := db.conversations[msg.ConversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	recipient := conv.Participant(msg.RecipientID)
	if recipient == nil {
		return nil, ErrConversationNotFound
	}

	m := msg.Clone()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.Status = models.StatusSent
	m.Seq = db.nextSeq[conv.ID]
	db.nextSeq[conv.ID] = m.Seq + 1

	db.messages[m.ID] = m
	db.byConv[conv.ID] = append(db.byConv[conv.ID], m)

	conv.LastMessage = &models.LastMessage{
		Content:   m.Preview(),
		SenderID:  m.SenderID,
		Timestamp: m.CreatedAt,
	}
	conv.UpdatedAt = m.CreatedAt
	recipient.UnreadCount++

	return m.Clone(), nil
}

func (db *MemoryDB) GetMessage(_ context.Context, id uuid.UUID) (*models.Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	m, ok := db.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	return m.Clone(), nil
}

func (db *MemoryDB) ListMessages(_ context.Context, conversationID, viewerID uuid.UUID, offset, limit int) ([]*models.Message, int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	all := db.byConv[conversationID]
	visible := make([]*models.Message, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if !all[i].DeletedFor(viewerID) {
			visible = append(visible, all[i])
		}
	}

	out := make([]*models.Message, 0, limit)
	for _, m := range page(visible, offset, limit) {
		out = append(out, m.Clone())
	}
	return out, len(visible), nil
}

func (db *MemoryDB) MarkDelivered(_ context.Context, ids []uuid.UUID, recipientID uuid.UUID, at time.Time) ([]*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var changed []*models.Message
	for _, id := range uniqueIDs(ids) {
		m, ok := db.messages[id]
		if !ok || m.RecipientID != recipientID || m.Status != models.StatusSent {
			continue
		}
		deliver(m, at)
		changed = append(changed, m.Clone())
	}
	return changed, nil
}

func (db *MemoryDB) MarkPendingDelivered(_ context.Context, recipientID uuid.UUID, at time.Time) ([]*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var changed []*models.Message
	for _, msgs := range db.byConv {
		for _, m := range msgs {
			if m.RecipientID == recipientID && m.Status == models.StatusSent {
				deliver(m, at)
				changed = append(changed, m.Clone())
			}
		}
	}
	sortBySeq(changed)
	return changed, nil
}

func (db *MemoryDB) MarkRead(_ context.Context, ids []uuid.UUID, recipientID uuid.UUID, at time.Time) ([]*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var changed []*models.Message
	convs := make(map[uuid.UUID]struct{})
	for _, id := range uniqueIDs(ids) {
		m, ok := db.messages[id]
		if !ok || m.RecipientID != recipientID || !m.Status.Pending() {
			continue
		}
		read(m, at)
		changed = append(changed, m.Clone())
		convs[m.ConversationID] = struct{}{}
	}
	for convID := range convs {
		if _, err := db.reconcileLocked(convID, recipientID); err != nil {
			return nil, err
		}
	}
	return changed, nil
}

func (db *MemoryDB) MarkConversationRead(_ context.Context, conversationID, recipientID uuid.UUID, at time.Time) ([]*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.conversations[conversationID]; !ok {
		return nil, ErrConversationNotFound
	}

	var changed []*models.Message
	for _, m := range db.byConv[conversationID] {
		if m.RecipientID == recipientID && m.Status.Pending() {
			read(m, at)
			changed = append(changed, m.Clone())
		}
	}
	if _, err := db.reconcileLocked(conversationID, recipientID); err != nil {
		return nil, err
	}
	return changed, nil
}

func (db *MemoryDB) UpdateMessageContent(_ context.Context, id uuid.UUID, content string, at time.Time) (*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	m, ok := db.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	if m.Type != models.MessageTypeText {
		return nil, ErrNotEditable
	}
	m.Content = content
	m.EditedAt = &at

	// Keep the preview in sync when the newest message is edited
	conv := db.conversations[m.ConversationID]
	if msgs := db.byConv[m.ConversationID]; len(msgs) > 0 && msgs[len(msgs)-1].ID == m.ID && conv.LastMessage != nil {
		conv.LastMessage.Content = content
	}
	return m.Clone(), nil
}

func (db *MemoryDB) SoftDeleteMessage(_ context.Context, id, userID uuid.UUID) (*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	m, ok := db.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	if !m.DeletedFor(userID) {
		m.DeletedBy = append(m.DeletedBy, userID)
	}
	return m.Clone(), nil
}

// Notifications

func (db *MemoryDB) CreateNotification(_ context.Context, n *models.Notification) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	cp := *n
	db.notifications[n.UserID] = append(db.notifications[n.UserID], &cp)
	return nil
}

func (db *MemoryDB) ListNotifications(_ context.Context, userID uuid.UUID, offset, limit int) ([]*models.Notification, int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	all := db.notifications[userID]
	newest := make([]*models.Notification, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		newest = append(newest, all[i])
	}

	out := make([]*models.Notification, 0, limit)
	for _, n := range page(newest, offset, limit) {
		cp := *n
		out = append(out, &cp)
	}
	return out, len(newest), nil
}

func (db *MemoryDB) MarkNotificationsRead(_ context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	want := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var n int64
	for _, rec := range db.notifications[userID] {
		if _, ok := want[rec.ID]; ok && !rec.IsRead {
			rec.IsRead = true
			n++
		}
	}
	return n, nil
}

func deliver(m *models.Message, at time.Time) {
	m.Status = models.StatusDelivered
	t := at
	m.DeliveredAt = &t
}

func read(m *models.Message, at time.Time) {
	if m.DeliveredAt == nil {
		d := at
		m.DeliveredAt = &d
	}
	m.Status = models.StatusRead
	t := at
	m.ReadAt = &t
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sortBySeq(msgs []*models.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].ConversationID != msgs[j].ConversationID {
			return msgs[i].ConversationID.String() < msgs[j].ConversationID.String()
		}
		return msgs[i].Seq < msgs[j].Seq
	})
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 || limit <= 0 || offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
