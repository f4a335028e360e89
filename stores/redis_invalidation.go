package stores

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// IdentityInvalidator is the slice of the decision-cache contract the bus
// needs.
type IdentityInvalidator interface {
	InvalidateIdentity(identityID string)
}

const defaultInvalidationChannel = "accessctl:invalidate"

// RedisInvalidationBus fans identity invalidations out to every node running
// a local decision cache. When an administrative change touches an
// identity's scope, Publish broadcasts the identity ID and each subscriber
// purges its own cache, keeping the single-node cache contract intact
// without a shared networked cache.
type RedisInvalidationBus struct {
	client  *redis.Client
	channel string

	mu   sync.Mutex
	subs []*redis.PubSub
}

func NewRedisInvalidationBus(client *redis.Client, channel string) *RedisInvalidationBus {
	if channel == "" {
		channel = defaultInvalidationChannel
	}
	return &RedisInvalidationBus{client: client, channel: channel}
}

// Publish broadcasts one identity invalidation.
func (b *RedisInvalidationBus) Publish(ctx context.Context, identityID string) error {
	return b.client.Publish(ctx, b.channel, identityID).Err()
}

// Subscribe applies incoming invalidations to the given cache until the
// returned stop function is called. The local publisher should invalidate
// its own cache directly before publishing; messages echo back to it, which
// is a harmless double purge.
func (b *RedisInvalidationBus) Subscribe(ctx context.Context, cache IdentityInvalidator) (stop func(), err error) {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go func() {
		for msg := range sub.Channel() {
			cache.InvalidateIdentity(msg.Payload)
		}
	}()
	return func() { _ = sub.Close() }, nil
}

// Close shuts every subscription down.
func (b *RedisInvalidationBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for _, sub := range b.subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.subs = nil
	return firstErr
}
