package blob

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces fragment blobs inside a shared Redis instance.
const redisKeyPrefix = "driftlog:blob:"

// RedisStore keeps blobs in Redis. SET NX gives the atomic refuse-overwrite
// guarantee; listing walks SCAN with a literal-escaped match pattern.
type RedisStore struct {
	client *redis.Client
}

// OpenRedis connects to a redis:// or rediss:// URL.
func OpenRedis(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis store: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

// NewRedisStore wraps an existing client, sharing its connection pool.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, name string, data []byte) error {
	ok, err := s.client.SetNX(ctx, redisKeyPrefix+name, data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis store put %s: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("redis store put %s: %w", name, ErrExists)
	}
	return nil
}

// List implements Store.
func (s *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	match := escapeGlob(redisKeyPrefix+prefix) + "*"

	var names []string
	iter := s.client.Scan(ctx, 0, match, 0).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), redisKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis store list %s: %w", prefix, err)
	}
	slices.Sort(names)
	return names, nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis store get %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis store get %s: %w", name, err)
	}
	return data, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// escapeGlob escapes SCAN MATCH metacharacters so names match literally.
func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
