package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/docconnect/internal/apperr"
	"github.com/ammar1510/docconnect/internal/database"
	"github.com/ammar1510/docconnect/internal/logger"
	"github.com/ammar1510/docconnect/internal/metrics"
	"github.com/ammar1510/docconnect/internal/models"
)

var log = logger.New("presence")

// BroadcastFunc publishes a presence change to every connected user
type BroadcastFunc func(models.Presence)

const lockStripes = 64

// Tracker combines the connection registry with the persisted user status
type Tracker struct {
	registry  ConnectionRegistry
	users     database.UserStore
	broadcast BroadcastFunc
	now       func() time.Time

	// Connect, Disconnect and SetStatus for one user are serialized so the
	// persisted status follows registry order.
	stripes [lockStripes]sync.Mutex
}

func NewTracker(registry ConnectionRegistry, users database.UserStore, broadcast BroadcastFunc) *Tracker {
	if broadcast == nil {
		broadcast = func(models.Presence) {}
	}
	return &Tracker{
		registry:  registry,
		users:     users,
		broadcast: broadcast,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (t *Tracker) lock(userID uuid.UUID) func() {
	var h uint32
	for _, b := range userID {
		h = h*31 + uint32(b)
	}
	m := &t.stripes[h%lockStripes]
	m.Lock()
	return m.Unlock
}

// Connect registers a live connection. The first connection of a user
// marks them online.
func (t *Tracker) Connect(ctx context.Context, userID uuid.UUID, connID string) (bool, error) {
	unlock := t.lock(userID)
	defer unlock()

	if !t.registry.Add(userID, connID) {
		return false, nil
	}
	metrics.OnlineUsers.Inc()

	now := t.now()
	if err := t.users.UpdatePresence(ctx, userID, models.PresenceOnline, now); err != nil {
		log.Error("Failed to persist online status for %s: %v", userID, err)
		return true, err
	}
	log.Debug("User %s is online", userID)
	t.broadcast(models.Presence{UserID: userID, Status: models.PresenceOnline, LastSeen: now})
	return true, nil
}

// Disconnect deregisters a connection. A heartbeat timeout takes the same
// path. The last connection marks the user offline.
func (t *Tracker) Disconnect(ctx context.Context, userID uuid.UUID, connID string) (bool, error) {
	unlock := t.lock(userID)
	defer unlock()

	if !t.registry.Remove(userID, connID) {
		return false, nil
	}
	metrics.OnlineUsers.Dec()

	now := t.now()
	if err := t.users.UpdatePresence(ctx, userID, models.PresenceOffline, now); err != nil {
		log.Error("Failed to persist offline status for %s: %v", userID, err)
		return true, err
	}
	log.Debug("User %s is offline", userID)
	t.broadcast(models.Presence{UserID: userID, Status: models.PresenceOffline, LastSeen: now})
	return true, nil
}

// SetStatus applies a manual status change
func (t *Tracker) SetStatus(ctx context.Context, userID uuid.UUID, status models.PresenceStatus) (*models.Presence, error) {
	if !status.Valid() {
		return nil, apperr.ErrInvalidStatus
	}

	unlock := t.lock(userID)
	defer unlock()

	now := t.now()
	if err := t.users.UpdatePresence(ctx, userID, status, now); err != nil {
		if err == database.ErrUserNotFound {
			return nil, apperr.ErrUserNotFound
		}
		return nil, apperr.Internal(err)
	}

	p := models.Presence{UserID: userID, Status: status, LastSeen: now}
	t.broadcast(p)
	return &p, nil
}

// IsOnline reports whether the user has at least one live connection
func (t *Tracker) IsOnline(userID uuid.UUID) bool {
	return t.registry.Count(userID) > 0
}

// OnlineUsers lists users with a live connection
func (t *Tracker) OnlineUsers() []uuid.UUID {
	return t.registry.OnlineUsers()
}

// Get returns the presence other users see for userID
func (t *Tracker) Get(ctx context.Context, userID uuid.UUID) (*models.Presence, error) {
	user, err := t.users.GetUserByID(ctx, userID)
	if err != nil {
		if err == database.ErrUserNotFound {
			return nil, apperr.ErrUserNotFound
		}
		return nil, apperr.Internal(err)
	}

	p := &models.Presence{UserID: userID, Status: user.Status, LastSeen: user.LastSeen}
	if !t.IsOnline(userID) {
		p.Status = models.PresenceOffline
	}
	return p, nil
}
