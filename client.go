package rrb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/arcbroker/rrb/internal/codec"
	"github.com/arcbroker/rrb/internal/keys"
	"github.com/arcbroker/rrb/rrblog"
	"github.com/google/uuid"
)

// Client issues requests on a named queue and awaits their response through
// a request-specific response channel (spec.md §4.4).
type Client struct {
	id    string
	queue string
	opts  Options
	keys  keys.Builder

	mu           sync.Mutex
	connected    bool
	shuttingDown bool
	cmd          *conn
	tracker      *requestTracker
}

// NewClient prepares key names only; it performs no network I/O.
func NewClient(queueName string, opts Options) *Client {
	opts = Apply(opts)
	return &Client{
		id:      uuid.NewString(),
		queue:   queueName,
		opts:    opts,
		keys:    keys.New(opts.Redis.Prefix),
		tracker: newRequestTracker(),
	}
}

// ID returns the client's unique instance id.
func (c *Client) ID() string { return c.id }

// Connect opens the command connection and clears the shutting-down flag.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}
	conn, err := newConn(c.opts.Redis, c.opts.Breaker, "client:"+c.id, c.opts.Metrics)
	if err != nil {
		return fmt.Errorf("rrb: connect: %w", err)
	}
	c.cmd = conn
	c.connected = true
	c.shuttingDown = false
	return nil
}

// Disconnect sets shuttingDown, waits for every in-flight request to
// complete or time out, then closes the command connection. Idempotent:
// calling it more than once, or before Connect, resolves without error.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.shuttingDown = true
	tracker := c.tracker
	c.mu.Unlock()

	waitErr := tracker.await(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd != nil {
		_ = c.cmd.close()
	}
	c.connected = false
	c.shuttingDown = false
	return waitErr
}

// Request sends one request and awaits its resolution: success returns the
// raw JSON response value; a handler-raised error comes back as
// *HandlerError; anything else is a *BackendError or ErrTimeout.
func (c *Client) Request(ctx context.Context, data any) (json.RawMessage, error) {
	c.mu.Lock()
	connected, shuttingDown, cmd := c.connected, c.shuttingDown, c.cmd
	c.mu.Unlock()

	if !connected {
		return nil, ErrNotConnected
	}
	if shuttingDown {
		return nil, ErrShuttingDown
	}

	if c.opts.RateLimiter != nil {
		limited, err := c.admissionRejected(ctx)
		if err != nil {
			return nil, &BackendError{Op: "ratelimit", Err: err}
		}
		if limited {
			return nil, ErrRateLimited
		}
	}

	requestID := uuid.NewString()
	start := time.Now()

	sub, err := newSubscription(ctx, cmd.client, c.keys.Response(requestID))
	if err != nil {
		c.observe("backend_error", start)
		return nil, err
	}

	c.tracker.add(requestID, c.opts.Timeout)
	cleanup := func() {
		sub.close()
		c.tracker.finish(requestID)
	}

	payload, err := codec.ComposeRequest(requestID, data)
	if err != nil {
		cleanup()
		c.observe("error", start)
		return nil, fmt.Errorf("rrb: compose request: %w", err)
	}

	if err := cmd.rpush(ctx, c.keys.Queue(c.queue), payload); err != nil {
		cleanup()
		c.observe("backend_error", start)
		return nil, err
	}

	recipients, err := cmd.publish(ctx, c.keys.Notification(c.queue), codec.ComposeNotification())
	if err != nil {
		cleanup()
		c.observe("backend_error", start)
		return nil, err
	}
	if recipients == 0 {
		c.log(rrblog.LevelNotice, "no active worker", map[string]any{"requestId": requestID})
	}

	resp, err := c.awaitResponse(ctx, sub, requestID)
	cleanup()

	switch {
	case err != nil:
		c.observe(outcomeFor(err), start)
		return nil, err
	default:
		c.observe("ok", start)
		return resp, nil
	}
}

func outcomeFor(err error) string {
	switch {
	case err == ErrTimeout:
		return "timeout"
	default:
		if _, ok := err.(*HandlerError); ok {
			return "handler_error"
		}
		return "backend_error"
	}
}

func (c *Client) awaitResponse(ctx context.Context, sub *subscription, requestID string) (json.RawMessage, error) {
	timer := time.NewTimer(c.opts.Timeout)
	defer timer.Stop()

	for {
		select {
		case msg, ok := <-sub.messages():
			if !ok {
				return nil, &BackendError{Op: "subscribe", Err: context.Canceled}
			}
			id, respOk, response, wireErr, err := codec.ParseResponse([]byte(msg.Payload))
			if err != nil {
				c.log(rrblog.LevelWarning, "malformed response, ignoring", map[string]any{"error": err.Error()})
				continue
			}
			if id != requestID {
				continue
			}
			if !respOk {
				return nil, &HandlerError{
					Message: wireErr.Message,
					Name:    wireErr.Name,
					Stack:   wireErr.Stack,
					Fields:  wireErr.Fields,
				}
			}
			return response, nil
		case <-timer.C:
			return nil, ErrTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// admissionRejected consults the optional rate limiter keyed by queue name.
func (c *Client) admissionRejected(ctx context.Context) (bool, error) {
	res, err := c.opts.RateLimiter.Get(ctx, c.queue)
	if err != nil {
		return false, err
	}
	return res.Reached, nil
}

func (c *Client) observe(outcome string, start time.Time) {
	if c.opts.Metrics == nil {
		return
	}
	c.opts.Metrics.ClientRequestsTotal.WithLabelValues(c.queue, outcome).Inc()
	c.opts.Metrics.ClientRequestDuration.WithLabelValues(c.queue, outcome).Observe(time.Since(start).Seconds())
}

func (c *Client) log(level rrblog.Level, msg string, scope map[string]any) {
	if scope == nil {
		scope = map[string]any{}
	}
	scope["queue"] = c.queue
	c.opts.Logger.Log(resolveLevel(level, c.opts.Levels), msg, time.Now(), "client", c.id, scope)
}
