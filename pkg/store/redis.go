package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/crashdetector/crashdetector/pkg/types"
)

// unlockScript deletes the lock only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps snapshots in Redis.
type RedisStore struct {
	client *redis.Client
	prefix string

	mu     sync.Mutex
	tokens map[string]string // lock key → token we set
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "crashdetector"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("store: redis ping %s: %w", cfg.Addr, err)
	}
	return newRedisStore(client, cfg.Prefix), nil
}

func newRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, tokens: make(map[string]string)}
}

func (r *RedisStore) key(name string) string { return r.prefix + ":" + name }

func (r *RedisStore) LoadCurrent(ctx context.Context) (*types.Snapshot, error) {
	data, err := r.client.Get(ctx, r.key("current")).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: redis get current: %w", err)
	}
	var s types.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("store: decode current: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) LoadHistory(ctx context.Context) (types.History, error) {
	items, err := r.client.LRange(ctx, r.key("history"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("store: redis lrange history: %w", err)
	}
	h := make(types.History, 0, len(items))
	for i, item := range items {
		var s types.Snapshot
		if err := json.Unmarshal([]byte(item), &s); err != nil {
			return nil, fmt.Errorf("store: decode history[%d]: %w", i, err)
		}
		h = append(h, s)
	}
	return h, nil
}

func (r *RedisStore) WriteCurrent(ctx context.Context, s *types.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("store: encode current: %w", err)
	}
	if err := r.client.Set(ctx, r.key("current"), data, 0).Err(); err != nil {
		return fmt.Errorf("store: redis set current: %w", err)
	}
	return nil
}

// AppendHistory pushes s and trims the list in one transaction.
func (r *RedisStore) AppendHistory(ctx context.Context, s *types.Snapshot, limit int) error {
	if limit <= 0 {
		limit = types.DefaultHistoryLimit
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("store: encode history entry: %w", err)
	}
	key := r.key("history")
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-limit), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: redis append history: %w", err)
	}
	return nil
}

// TryLock sets a random token under key if it is not already held.
func (r *RedisStore) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key(key), token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("store: redis lock %s: %w", key, err)
	}
	if ok {
		r.mu.Lock()
		r.tokens[key] = token
		r.mu.Unlock()
	}
	return ok, nil
}

// Unlock releases key if this store still holds it. Releasing a lock that
// expired and was taken by another process is a no-op.
func (r *RedisStore) Unlock(ctx context.Context, key string) error {
	r.mu.Lock()
	token, ok := r.tokens[key]
	delete(r.tokens, key)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	if err := unlockScript.Run(ctx, r.client, []string{r.key(key)}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("store: redis unlock %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Close() error { return r.client.Close() }
