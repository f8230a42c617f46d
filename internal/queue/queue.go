// Package queue buffers payloads for users without a live connection.
//
// Delivery is best effort. Each user's buffer is bounded and a full buffer
// evicts its oldest entry to make room, so a user who stays away long
// enough loses the earliest notices. Those notices are still persisted and
// remain listable over REST.
package queue

import (
	"context"

	"github.com/google/uuid"
)

const DefaultCapacity = 100

// Queue is a per-user FIFO of opaque payloads
type Queue interface {
	Enqueue(ctx context.Context, userID uuid.UUID, payload []byte) error
	// Drain returns the buffered payloads oldest first and empties the buffer
	Drain(ctx context.Context, userID uuid.UUID) ([][]byte, error)
	// Requeue puts undelivered payloads back ahead of anything queued since
	// the drain, keeping their order.
	Requeue(ctx context.Context, userID uuid.UUID, payloads [][]byte) error
	Len(ctx context.Context, userID uuid.UUID) (int, error)
}
