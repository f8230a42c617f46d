package queue

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ammar1510/docconnect/internal/logger"
	"github.com/ammar1510/docconnect/internal/metrics"
)

var log = logger.New("queue")

const keyPrefix = "docconnect:offline:"

// RedisQueue stores buffers as Redis lists so several gateway instances
// share them.
type RedisQueue struct {
	client   redis.UniversalClient
	capacity int
	dropped  atomic.Int64
}

var _ Queue = (*RedisQueue)(nil)

// NewRedisQueue parses a redis:// URL and checks the server is reachable
func NewRedisQueue(ctx context.Context, url string, capacity int) (*RedisQueue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	log.Info("Offline queue backed by redis at %s", opts.Addr)
	return NewRedisQueueWithClient(client, capacity), nil
}

func NewRedisQueueWithClient(client redis.UniversalClient, capacity int) *RedisQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RedisQueue{client: client, capacity: capacity}
}

func key(userID uuid.UUID) string {
	return fmt.Sprintf("%s%s", keyPrefix, userID)
}

func (q *RedisQueue) Enqueue(ctx context.Context, userID uuid.UUID, payload []byte) error {
	k := key(userID)
	pipe := q.client.TxPipeline()
	push := pipe.RPush(ctx, k, payload)
	pipe.LTrim(ctx, k, int64(-q.capacity), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "enqueue for %s", userID)
	}

	if over := push.Val() - int64(q.capacity); over > 0 {
		q.dropped.Add(over)
		metrics.QueueDropped.Add(float64(over))
		log.Warn("Offline queue for %s is full, dropped %d oldest entries", userID, over)
	}
	return nil
}

func (q *RedisQueue) Drain(ctx context.Context, userID uuid.UUID) ([][]byte, error) {
	k := key(userID)
	pipe := q.client.TxPipeline()
	items := pipe.LRange(ctx, k, 0, -1)
	pipe.Del(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, errors.Wrapf(err, "drain for %s", userID)
	}

	vals := items.Val()
	if len(vals) == 0 {
		return nil, nil
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (q *RedisQueue) Requeue(ctx context.Context, userID uuid.UUID, payloads [][]byte) error {
	if len(payloads) == 0 {
		return nil
	}

	// LPUSH inserts one value at a time at the head, so push newest first
	vals := make([]interface{}, len(payloads))
	for i, p := range payloads {
		vals[len(payloads)-1-i] = p
	}

	k := key(userID)
	pipe := q.client.TxPipeline()
	push := pipe.LPush(ctx, k, vals...)
	pipe.LTrim(ctx, k, int64(-q.capacity), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "requeue for %s", userID)
	}

	if over := push.Val() - int64(q.capacity); over > 0 {
		q.dropped.Add(over)
		metrics.QueueDropped.Add(float64(over))
		log.Warn("Offline queue for %s is full, dropped %d oldest entries", userID, over)
	}
	return nil
}

func (q *RedisQueue) Len(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := q.client.LLen(ctx, key(userID)).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "length for %s", userID)
	}
	return int(n), nil
}

// Dropped is the number of entries this instance evicted since start
func (q *RedisQueue) Dropped() int64 {
	return q.dropped.Load()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
