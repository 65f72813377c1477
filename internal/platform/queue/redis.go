package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"starblog/internal/domain/model"
	"starblog/internal/platform/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Connect opens a Redis client and verifies it with PING.
func Connect(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("could not connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	return rdb, nil
}

// RatingAuditQueue is a Redis list of JSON-encoded audit jobs. Producers
// LPUSH, consumers BRPOP, so jobs come out in arrival order.
type RatingAuditQueue struct {
	rdb  *redis.Client
	name string
}

func NewRatingAuditQueue(rdb *redis.Client, name string) *RatingAuditQueue {
	return &RatingAuditQueue{rdb: rdb, name: name}
}

func (q *RatingAuditQueue) PublishRatingRecorded(ctx context.Context, job model.RatingAuditJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal audit job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.name, payload).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", q.name, err)
	}
	return nil
}

// Next blocks up to timeout for a job. It returns nil, nil when the wait
// times out with nothing queued.
func (q *RatingAuditQueue) Next(ctx context.Context, timeout time.Duration) (*model.RatingAuditJob, error) {
	// result is [queueName, value]
	result, err := q.rdb.BRPop(ctx, timeout, q.name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 || result[1] == "" {
		return nil, nil
	}

	var job model.RatingAuditJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("malformed audit job %q: %w", result[1], err)
	}
	return &job, nil
}

// Requeue pushes job to the tail so other jobs get a turn first.
func (q *RatingAuditQueue) Requeue(ctx context.Context, job model.RatingAuditJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal audit job: %w", err)
	}
	return q.rdb.RPush(ctx, q.name, payload).Err()
}

// releaseScript deletes the lock only if we still hold it.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker is a single-key SET NX lock with a TTL.
type RedisLocker struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewRedisLocker(rdb *redis.Client, key string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, key: key, ttl: ttl}
}

// Acquire returns a release func when the lock was taken, or ok=false when
// someone else holds it.
func (l *RedisLocker) Acquire(ctx context.Context) (release func(context.Context) (bool, error), ok bool, err error) {
	token := uuid.NewString()
	ok, err = l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release = func(ctx context.Context) (bool, error) {
		deleted, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Int64()
		if err != nil {
			return false, fmt.Errorf("failed to release lock %s: %w", l.key, err)
		}
		return deleted == 1, nil
	}
	return release, true, nil
}
