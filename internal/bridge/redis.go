package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/redis/go-redis/v9"
)

// RedisTransport implements Transport over Redis Pub/Sub. A circuit breaker
// guards publishes so a Redis outage degrades to single-process behaviour
// instead of stalling every broadcast on a dead server.
type RedisTransport struct {
	rdb *redis.Client
	cb  circuitbreaker.CircuitBreaker[any]
}

// NewRedisTransport creates a transport from a URL
// (e.g., "redis://localhost:6379").
func NewRedisTransport(redisURL string) (*RedisTransport, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	cb := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "redis_transport",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
		}).
		Build()

	return &RedisTransport{rdb: redis.NewClient(opts), cb: cb}, nil
}

// Ping verifies the Redis connection.
func (t *RedisTransport) Ping(ctx context.Context) error {
	return t.rdb.Ping(ctx).Err()
}

func (t *RedisTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	if !t.cb.TryAcquirePermit() {
		return fmt.Errorf("redis publish rejected: %w", circuitbreaker.ErrOpen)
	}
	if err := t.rdb.Publish(ctx, topic, payload).Err(); err != nil {
		t.cb.RecordError(err)
		return fmt.Errorf("redis publish failed: %w", err)
	}
	t.cb.RecordSuccess()
	return nil
}

func (t *RedisTransport) Subscribe(ctx context.Context, topic string, h Handler) (func(), error) {
	sub := t.rdb.Subscribe(ctx, topic)

	// Force the subscription to establish before returning, so a publish
	// issued right after Subscribe is not lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe failed: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		msgCh := sub.Channel()
		for {
			select {
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				h([]byte(msg.Payload))
			case <-subCtx.Done():
				return
			}
		}
	}()

	return func() {
		cancel()
		_ = sub.Close()
	}, nil
}

func (t *RedisTransport) Close() error {
	return t.rdb.Close()
}
