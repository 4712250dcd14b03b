package rrb

import (
	"context"
	"errors"
	"time"

	"github.com/arcbroker/rrb/rrbmetrics"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// conn is the command-connection half of the two-connection discipline
// spec.md §5 imposes: a *redis.Client used for RPUSH/LPOP/PUBLISH/PING,
// wrapped in a circuit breaker so a failing backend degrades callers to a
// BackendError instead of hanging them — the same pattern the teacher repo
// applies to its own Redis bus, generalized from one named breaker ("redis")
// to one breaker per participant instance.
type conn struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	metrics *rrbmetrics.Metrics
	name    string
}

func newConn(cfg RedisConfig, bcfg BreakerConfig, participant string, metrics *rrbmetrics.Metrics) (*conn, error) {
	if cfg.Options == nil {
		return nil, errors.New("rrb: Options.Redis.Options must be set")
	}
	client := redis.NewClient(cfg.Options)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &BackendError{Op: "ping", Err: err}
	}

	settings := bcfg.resolve(participant)
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		if metrics == nil {
			return
		}
		var v float64
		switch to {
		case gobreaker.StateClosed:
			v = 0
		case gobreaker.StateOpen:
			v = 1
		case gobreaker.StateHalfOpen:
			v = 2
		}
		metrics.BreakerState.WithLabelValues(participant).Set(v)
	}

	return &conn{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker(settings),
		metrics: metrics,
		name:    participant,
	}, nil
}

func (c *conn) execute(op string, fn func() (any, error)) (any, error) {
	res, err := c.breaker.Execute(fn)
	if err != nil {
		return nil, &BackendError{Op: op, Err: err}
	}
	return res, nil
}

func (c *conn) rpush(ctx context.Context, key string, payload []byte) error {
	_, err := c.execute("rpush", func() (any, error) {
		return nil, c.client.RPush(ctx, key, payload).Err()
	})
	return err
}

// lpop returns (nil, nil) when the queue is empty — not an error, just the
// "another worker won the race" / "nothing queued yet" case.
func (c *conn) lpop(ctx context.Context, key string) ([]byte, error) {
	res, err := c.execute("lpop", func() (any, error) {
		v, err := c.client.LPop(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return v, err
	})
	if err != nil {
		return nil, err
	}
	s := res.(string)
	if s == "" {
		return nil, nil
	}
	return []byte(s), nil
}

func (c *conn) llen(ctx context.Context, key string) (int64, error) {
	res, err := c.execute("llen", func() (any, error) {
		return c.client.LLen(ctx, key).Result()
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

func (c *conn) publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	res, err := c.execute("publish", func() (any, error) {
		return c.client.Publish(ctx, channel, payload).Result()
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

func (c *conn) ping(ctx context.Context) error {
	_, err := c.execute("ping", func() (any, error) {
		return nil, c.client.Ping(ctx).Err()
	})
	return err
}

// close performs a graceful QUIT-equivalent shutdown; go-redis's Close
// already returns connections to the pool and tears it down, which is the
// END of the connection's lifetime spec.md §5 requires on every exit path.
func (c *conn) close() error {
	return c.client.Close()
}

// subscribe opens a dedicated subscriber connection (go-redis's *redis.PubSub
// IS the backend's "subscribed connection that accepts only pub/sub
// commands" — it is never shared with c's command path) and blocks until
// the SUBSCRIBE is acknowledged, so callers can safely run a first
// queue-check immediately after.
func subscribe(ctx context.Context, client *redis.Client, channel string) (*redis.PubSub, error) {
	ps := client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, &BackendError{Op: "subscribe", Err: err}
	}
	return ps, nil
}
