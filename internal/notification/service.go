package notification

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/docconnect/internal/apperr"
	"github.com/ammar1510/docconnect/internal/database"
	"github.com/ammar1510/docconnect/internal/logger"
	"github.com/ammar1510/docconnect/internal/messaging"
	"github.com/ammar1510/docconnect/internal/metrics"
	"github.com/ammar1510/docconnect/internal/models"
	"github.com/ammar1510/docconnect/internal/protocol"
	"github.com/ammar1510/docconnect/internal/queue"
)

var log = logger.New("notification")

const lockStripes = 64

// Pusher writes a frame to every live connection of a user and returns how
// many connections accepted it.
type Pusher interface {
	SendToUser(userID uuid.UUID, frame []byte) int
}

// Presence answers whether a user has a live connection
type Presence interface {
	IsOnline(userID uuid.UUID) bool
}

// Service persists notifications and routes them to live connections or
// the offline queue. Deliveries to one user are serialized so a direct push
// never overtakes frames still waiting in the queue.
type Service struct {
	store    database.NotificationStore
	presence Presence
	pusher   Pusher
	queue    queue.Queue
	now      func() time.Time

	stripes [lockStripes]sync.Mutex
}

func NewService(store database.NotificationStore, presence Presence, pusher Pusher, q queue.Queue) *Service {
	return &Service{
		store:    store,
		presence: presence,
		pusher:   pusher,
		queue:    q,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Send persists a notification and delivers it at most once. It only fails
// when the record cannot be stored.
func (s *Service) Send(ctx context.Context, userID uuid.UUID, kind, title, body string, data any) (*models.Notification, error) {
	n := &models.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      kind,
		Title:     title,
		Body:      body,
		CreatedAt: s.now(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, "notification data must be valid JSON", err)
		}
		n.Data = raw
	}

	if err := s.store.CreateNotification(ctx, n); err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		return nil, apperr.Internal(err)
	}

	frame, err := protocol.Encode(protocol.NewNotification{Notification: n})
	if err != nil {
		return n, apperr.Internal(err)
	}

	unlock := s.lock(userID)
	defer unlock()

	if s.presence.IsOnline(userID) {
		pending, err := s.queue.Len(ctx, userID)
		if err == nil && pending == 0 && s.pusher.SendToUser(userID, frame) > 0 {
			metrics.Notifications.WithLabelValues("pushed").Inc()
			return n, nil
		}
		if err == nil && pending > 0 {
			// Older frames are still waiting; go behind them and flush
			if s.enqueue(ctx, n, frame) {
				if _, err := s.flushLocked(ctx, userID); err != nil {
					log.Error("Failed to flush queue for %s: %v", userID, err)
				}
			}
			return n, nil
		}
	}

	// Offline, or every connection went away between the check and the push
	if s.enqueue(ctx, n, frame) {
		log.Debug("Queued notification %s for offline user %s", n.ID, userID)
	}
	return n, nil
}

func (s *Service) enqueue(ctx context.Context, n *models.Notification, frame []byte) bool {
	if err := s.queue.Enqueue(ctx, n.UserID, frame); err != nil {
		log.Error("Failed to queue notification %s for %s: %v", n.ID, n.UserID, err)
		metrics.Notifications.WithLabelValues("failed").Inc()
		return false
	}
	metrics.Notifications.WithLabelValues("queued").Inc()
	return true
}

func (s *Service) lock(userID uuid.UUID) func() {
	var h uint32
	for _, b := range userID {
		h = h*31 + uint32(b)
	}
	m := &s.stripes[h%lockStripes]
	m.Lock()
	return m.Unlock
}

// Notify is Send for callers that must not fail on notification errors
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, kind, title, body string, data any) {
	if _, err := s.Send(ctx, userID, kind, title, body, data); err != nil {
		log.Error("Notification %s for %s failed: %v", kind, userID, err)
	}
}

// Flush pushes everything queued for a user who just connected, oldest
// first, and returns how many frames were written.
func (s *Service) Flush(ctx context.Context, userID uuid.UUID) (int, error) {
	unlock := s.lock(userID)
	defer unlock()
	return s.flushLocked(ctx, userID)
}

func (s *Service) flushLocked(ctx context.Context, userID uuid.UUID) (int, error) {
	frames, err := s.queue.Drain(ctx, userID)
	if err != nil {
		return 0, apperr.Internal(err)
	}

	sent := 0
	for i, frame := range frames {
		if s.pusher.SendToUser(userID, frame) == 0 {
			// Disconnected mid-flush; the rest goes back to the head
			if err := s.queue.Requeue(ctx, userID, frames[i:]); err != nil {
				log.Error("Failed to requeue %d notifications for %s: %v", len(frames)-i, userID, err)
			}
			break
		}
		sent++
	}
	if sent > 0 {
		log.Info("Delivered %d queued notifications to %s", sent, userID)
	}
	return sent, nil
}

// List returns a user's notifications, newest first
func (s *Service) List(ctx context.Context, userID uuid.UUID, page messaging.Page) ([]*models.Notification, messaging.Pagination, error) {
	items, total, err := s.store.ListNotifications(ctx, userID, page.Offset(), page.Limit)
	if err != nil {
		return nil, messaging.Pagination{}, apperr.Internal(err)
	}
	if items == nil {
		items = []*models.Notification{}
	}
	return items, page.Result(total), nil
}

// MarkRead flags the given notifications of userID as read
func (s *Service) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := s.store.MarkNotificationsRead(ctx, userID, ids)
	if err != nil {
		return 0, apperr.Internal(err)
	}
	return n, nil
}
