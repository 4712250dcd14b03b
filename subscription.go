package rrb

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// subscription wraps a *redis.PubSub — the backend's dedicated subscribed
// connection (spec.md §5: it accepts only pub/sub commands, so it is never
// reused for RPUSH/LPOP/PUBLISH). newSubscription blocks until the SUBSCRIBE
// is acknowledged.
type subscription struct {
	ps      *redis.PubSub
	channel string
	msgs    <-chan *redis.Message
}

func newSubscription(ctx context.Context, client *redis.Client, channel string) (*subscription, error) {
	ps, err := subscribe(ctx, client, channel)
	if err != nil {
		return nil, err
	}
	return &subscription{ps: ps, channel: channel, msgs: ps.Channel()}, nil
}

// messages exposes the raw delivery channel; it closes when the
// subscription is torn down (close()) or the connection drops.
func (s *subscription) messages() <-chan *redis.Message { return s.msgs }

func (s *subscription) close() {
	_ = s.ps.Unsubscribe(context.Background(), s.channel)
	_ = s.ps.Close()
}
