package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ammar1510/docconnect/internal/metrics"
)

// MemoryQueue keeps buffers in process memory. Contents do not survive a restart.
type MemoryQueue struct {
	capacity int
	dropped  atomic.Int64

	mu      sync.Mutex
	buffers map[uuid.UUID][][]byte
}

var _ Queue = (*MemoryQueue)(nil)

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryQueue{capacity: capacity, buffers: make(map[uuid.UUID][][]byte)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, userID uuid.UUID, payload []byte) error {
	entry := append([]byte(nil), payload...)

	q.mu.Lock()
	defer q.mu.Unlock()

	buf := q.buffers[userID]
	if len(buf) >= q.capacity {
		evict := len(buf) - q.capacity + 1
		buf = buf[evict:]
		q.dropped.Add(int64(evict))
		metrics.QueueDropped.Add(float64(evict))
		log.Warn("Offline queue for %s is full, dropped %d oldest entries", userID, evict)
	}
	q.buffers[userID] = append(buf, entry)
	return nil
}

func (q *MemoryQueue) Drain(_ context.Context, userID uuid.UUID) ([][]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	buf := q.buffers[userID]
	delete(q.buffers, userID)
	return buf, nil
}

func (q *MemoryQueue) Requeue(_ context.Context, userID uuid.UUID, payloads [][]byte) error {
	if len(payloads) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	buf := make([][]byte, 0, len(payloads)+len(q.buffers[userID]))
	for _, p := range payloads {
		buf = append(buf, append([]byte(nil), p...))
	}
	buf = append(buf, q.buffers[userID]...)
	if over := len(buf) - q.capacity; over > 0 {
		buf = buf[over:]
		q.dropped.Add(int64(over))
		metrics.QueueDropped.Add(float64(over))
		log.Warn("Offline queue for %s is full, dropped %d oldest entries", userID, over)
	}
	q.buffers[userID] = buf
	return nil
}

func (q *MemoryQueue) Len(_ context.Context, userID uuid.UUID) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buffers[userID]), nil
}

// Dropped is the number of entries evicted since start
func (q *MemoryQueue) Dropped() int64 {
	return q.dropped.Load()
}
