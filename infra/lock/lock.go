// Package lock provides the per-sheet locks guarding DSF delivery.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/kilianp07/ndf/config"
	"github.com/kilianp07/ndf/core/dsf"
)

// Memory is an in-process lock with expiry. It only protects a single
// instance.
type Memory struct {
	mu   sync.Mutex
	held map[string]memEntry
	now  func() time.Time
}

type memEntry struct {
	token   string
	expires time.Time
}

func NewMemory() *Memory {
	return &Memory{held: make(map[string]memEntry), now: time.Now}
}

// Acquire takes key for ttl or fails with dsf.ErrLocked.
func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if e, ok := m.held[key]; ok && now.Before(e.expires) {
		return nil, dsf.ErrLocked
	}
	token := uuid.NewString()
	m.held[key] = memEntry{token: token, expires: now.Add(ttl)}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if e, ok := m.held[key]; ok && e.token == token {
			delete(m.held, key)
		}
	}, nil
}

// release deletes the key only while it still holds our token.
var release = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// Redis is a lock shared by every instance using the same Redis.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to cfg.Addr and pings it.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	c := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &Redis{client: c, prefix: "ndf:lock:"}, nil
}

// Acquire runs SET NX PX and fails with dsf.ErrLocked when the key exists.
func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	k := r.prefix + key
	ok, err := r.client.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lock %s: %w", key, err)
	}
	if !ok {
		return nil, dsf.ErrLocked
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = release.Run(ctx, r.client, []string{k}, token).Err()
	}, nil
}

func (r *Redis) Close() error { return r.client.Close() }

// New returns a Redis lock when cfg.Addr is set, a Memory lock otherwise.
func New(ctx context.Context, cfg config.RedisConfig) (dsf.Locker, func() error, error) {
	if cfg.Addr == "" {
		return NewMemory(), func() error { return nil }, nil
	}
	r, err := NewRedis(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return r, r.Close, nil
}

var (
	_ dsf.Locker = (*Memory)(nil)
	_ dsf.Locker = (*Redis)(nil)
)
