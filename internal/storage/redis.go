package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kalambet/stepup/internal/elicitation"
)

const (
	redisStatePrefix = "elicitation:"
	redisQueuePrefix = "elicitation_queue:"
	redisScanCount   = 100
)

// casScript flips the status field only when it still holds the expected
// value. A missing key yields 0.
var casScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur or cur ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[2])
return 1
`)

// setStatusScript sets the status field only on an existing record so a
// stray update cannot resurrect an expired key as a bare hash.
var setStatusScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[1])
return 1
`)

// insertScript writes the record hash and its TTL only if the key is absent.
// ARGV[1] is the TTL in milliseconds, the rest are field/value pairs.
var insertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
redis.call('PEXPIRE', KEYS[1], ARGV[1])
return 1
`)

// RedisStore keeps elicitation records as hashes under elicitation:{id} and
// per-session queues as lists under elicitation_queue:{session_id}. New ids
// are pushed at the head, so the oldest entry sits at the tail.
type RedisStore struct {
	client   redis.UniversalClient
	queueTTL time.Duration
}

// RedisOptions configures OpenRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	QueueTTL time.Duration
}

// OpenRedis connects to Redis and verifies the connection with PING.
func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}
	return NewRedisStore(client, opts.QueueTTL), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, queueTTL time.Duration) *RedisStore {
	if queueTTL <= 0 {
		queueTTL = defaultQueueTTL
	}
	return &RedisStore{client: client, queueTTL: queueTTL}
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func stateKey(id string) string        { return redisStatePrefix + id }
func queueKey(sessionID string) string { return redisQueuePrefix + sessionID }

func (r *RedisStore) Save(ctx context.Context, st elicitation.State, ttl time.Duration) error {
	rec, err := toRecord(st)
	if err != nil {
		return err
	}
	fields := rec.fields()
	args := make([]any, 0, 1+2*len(fields))
	args = append(args, ttl.Milliseconds())
	for k, v := range fields {
		args = append(args, k, v)
	}
	n, err := insertScript.Run(ctx, r.client, []string{stateKey(st.ID)}, args...).Int()
	if err != nil {
		return fmt.Errorf("saving elicitation %s: %w", st.ID, err)
	}
	if n == 0 {
		return elicitation.ErrDuplicate
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (elicitation.State, error) {
	h, err := r.client.HGetAll(ctx, stateKey(id)).Result()
	if err != nil {
		return elicitation.State{}, fmt.Errorf("loading elicitation %s: %w", id, err)
	}
	if len(h) == 0 {
		return elicitation.State{}, elicitation.ErrNotFound
	}
	return recordFromHash(h).state()
}

func (r *RedisStore) UpdateStatus(ctx context.Context, id string, status elicitation.Status) (bool, error) {
	n, err := setStatusScript.Run(ctx, r.client, []string{stateKey(id)}, string(status)).Int()
	if err != nil {
		return false, fmt.Errorf("updating status of %s: %w", id, err)
	}
	return n == 1, nil
}

func (r *RedisStore) CompareAndSwapStatus(ctx context.Context, id string, from, to elicitation.Status) (bool, error) {
	n, err := casScript.Run(ctx, r.client, []string{stateKey(id)}, string(from), string(to)).Int()
	if err != nil {
		return false, fmt.Errorf("swapping status of %s: %w", id, err)
	}
	return n == 1, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Del(ctx, stateKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("deleting elicitation %s: %w", id, err)
	}
	return n > 0, nil
}

// FindExpired walks elicitation:* with SCAN. The pattern does not match the
// elicitation_queue: lists.
func (r *RedisStore) FindExpired(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	iter := r.client.Scan(ctx, 0, redisStatePrefix+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		vals, err := r.client.HMGet(ctx, key, "elicitation_id", "status", "expires_at").Result()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
		id, _ := vals[0].(string)
		status, _ := vals[1].(string)
		expiresAt, _ := vals[2].(string)
		if id == "" || status != string(elicitation.StatusPending) {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, expiresAt)
		if err != nil {
			return nil, fmt.Errorf("parsing expires_at for %s: %w", id, err)
		}
		if now.After(t) {
			ids = append(ids, id)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning elicitations: %w", err)
	}
	return ids, nil
}

func (r *RedisStore) Enqueue(ctx context.Context, sessionID, id string) error {
	key := queueKey(sessionID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, id)
		pipe.Expire(ctx, key, r.queueTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueueing %s: %w", id, err)
	}
	return nil
}

func (r *RedisStore) Peek(ctx context.Context, sessionID string) (string, bool, error) {
	id, err := r.client.LIndex(ctx, queueKey(sessionID), -1).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("peeking queue %s: %w", sessionID, err)
	}
	return id, true, nil
}

func (r *RedisStore) Remove(ctx context.Context, sessionID, id string) (bool, error) {
	n, err := r.client.LRem(ctx, queueKey(sessionID), 0, id).Result()
	if err != nil {
		return false, fmt.Errorf("removing %s from queue: %w", id, err)
	}
	return n > 0, nil
}

func (r *RedisStore) Len(ctx context.Context, sessionID string) (int, error) {
	n, err := r.client.LLen(ctx, queueKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("counting queue %s: %w", sessionID, err)
	}
	return int(n), nil
}

var (
	_ elicitation.Store = (*RedisStore)(nil)
	_ elicitation.Queue = (*RedisStore)(nil)
)
