package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// channelFor namespaces the pub/sub channel per room.
func channelFor(roomID string) string {
	return "driftlog:notify:" + roomID
}

// RedisNotifier delivers fragment-availability signals over Redis pub/sub.
// Delivery is best-effort, which matches the contract: the signal is a hint
// to re-list, never the source of truth.
type RedisNotifier struct {
	client *redis.Client
}

// OpenRedis connects a notifier to a redis:// or rediss:// URL.
func OpenRedis(url string) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis notifier: %w", err)
	}
	return &RedisNotifier{client: redis.NewClient(opts)}, nil
}

// NewRedisNotifier wraps an existing client, sharing its connection pool.
func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// Announce implements Notifier.
func (n *RedisNotifier) Announce(ctx context.Context, roomID string) error {
	if err := n.client.Publish(ctx, channelFor(roomID), "fragments").Err(); err != nil {
		return fmt.Errorf("announce %s: %w", roomID, err)
	}
	return nil
}

// Watch implements Notifier.
func (n *RedisNotifier) Watch(ctx context.Context, roomID string) (<-chan struct{}, error) {
	sub := n.client.Subscribe(ctx, channelFor(roomID))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("watch %s: %w", roomID, err)
	}

	ch := make(chan struct{})
	go func() {
		defer close(ch)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case ch <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// Close implements Notifier.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
