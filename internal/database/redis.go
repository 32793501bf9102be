package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisTimeout = 5 * time.Second
	scanBatchSize       = 500
)

// RedisOptions configures the connection used by RedisStore
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
}

// RedisStore keeps every proxy record as a redis hash under its proxy key
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisClient dials redis and verifies the connection with a PING
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.Timeout,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
		// per-operation deadlines from opContext must reach the socket
		ContextTimeoutEnabled: true,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeoutOrDefault(opts.Timeout))
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable(fmt.Sprintf("ping %s", opts.Addr), err)
	}

	return client, nil
}

// NewRedisStore wraps an existing client
func NewRedisStore(client *redis.Client, timeout time.Duration) *RedisStore {
	return &RedisStore{client: client, timeout: timeoutOrDefault(timeout)}
}

func (s *RedisStore) GetAllFields(ctx context.Context, key string) (map[string]string, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	fields, err := s.client.HGetAll(opCtx, key).Result()
	if err != nil {
		return nil, unavailable("hgetall "+key, err)
	}
	return fields, nil
}

func (s *RedisStore) SetField(ctx context.Context, key, field, value string) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.client.HSet(opCtx, key, field, value).Err(); err != nil {
		return unavailable("hset "+key+" "+field, err)
	}
	return nil
}

// SetFields writes the whole mapping with a single HSET
func (s *RedisStore) SetFields(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.client.HSet(opCtx, key, fields).Err(); err != nil {
		return unavailable("hset "+key, err)
	}
	return nil
}

// ScanKeys walks the keyspace with SCAN MATCH. SCAN may return a key more than once,
// so results are de-duplicated. Each SCAN round trip gets its own timeout.
func (s *RedisStore) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	seen := make(map[string]struct{})
	var keys []string

	scanCtx, cancel := s.opContext(ctx)
	iter := s.client.Scan(scanCtx, 0, pattern, scanBatchSize).Iterator()
	cancel()
	for s.next(ctx, iter) {
		key := iter.Val()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable("scan "+pattern, err)
	}

	return keys, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.client.Del(opCtx, key).Err(); err != nil {
		return unavailable("del "+key, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) next(ctx context.Context, iter *redis.ScanIterator) bool {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	return iter.Next(opCtx)
}

// opContext bounds a single round trip unless the caller already set a tighter deadline
func (s *RedisStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= s.timeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func timeoutOrDefault(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return defaultRedisTimeout
	}
	return timeout
}
