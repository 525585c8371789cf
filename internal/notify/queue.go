package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctoring/internal/config"
)

// RedisQueue pushes escalations onto the Redis list drained by the escalation worker.
type RedisQueue struct {
	rdb *redis.Client
	key string
}

// NewRedisQueue creates a queue on config.WorkerKey.EscalationQueue.
func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: config.WorkerKey.EscalationQueue}
}

// Enqueue appends an escalation job.
func (q *RedisQueue) Enqueue(ctx context.Context, esc Escalation) error {
	data, err := json.Marshal(esc)
	if err != nil {
		return fmt.Errorf("marshal escalation: %w", err)
	}
	return q.rdb.RPush(ctx, q.key, data).Err()
}
