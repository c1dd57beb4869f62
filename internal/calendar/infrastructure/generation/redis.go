package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/almanac/internal/calendar/application"
	"github.com/redis/go-redis/v9"
)

// DefaultKey is the key holding the store generation.
const DefaultKey = "almanac:generation"

// RedisSource keeps the store generation in Redis so that processes sharing
// a store also share cancellation.
type RedisSource struct {
	client *redis.Client
	key    string
}

var _ application.GenerationSource = (*RedisSource)(nil)

// NewRedisSource creates a generation source on client. An empty key uses
// DefaultKey.
func NewRedisSource(client *redis.Client, key string) *RedisSource {
	if key == "" {
		key = DefaultKey
	}
	return &RedisSource{client: client, key: key}
}

// Connect parses a redis:// URL and checks the server is reachable.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Key returns the key holding the generation.
func (s *RedisSource) Key() string {
	return s.key
}

// Current returns the stored generation. A missing key reads as zero.
func (s *RedisSource) Current(ctx context.Context) (uint64, error) {
	gen, err := s.client.Get(ctx, s.key).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read generation: %w", err)
	}
	return gen, nil
}

// Advance increments the stored generation and returns the new value.
func (s *RedisSource) Advance(ctx context.Context) (uint64, error) {
	gen, err := s.client.Incr(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to advance generation: %w", err)
	}
	return uint64(gen), nil
}
