package rrb

import (
	"context"
	"fmt"
	"sync"

	"github.com/arcbroker/rrb/internal/codec"
	"github.com/arcbroker/rrb/internal/keys"
	"github.com/google/uuid"
)

// Publisher emits fan-out messages on a named channel (spec.md §4.5).
type Publisher struct {
	channel string
	opts    Options
	keys    keys.Builder

	mu   sync.Mutex
	cmd  *conn
}

// NewPublisher prepares key names only; no network I/O.
func NewPublisher(channelName string, opts Options) *Publisher {
	opts = Apply(opts)
	return &Publisher{
		channel: channelName,
		opts:    opts,
		keys:    keys.New(opts.Redis.Prefix),
	}
}

// Connect opens a command connection. Returns ErrAlreadyConnected if called
// twice without an intervening Disconnect.
func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return ErrAlreadyConnected
	}
	c, err := newConn(p.opts.Redis, p.opts.Breaker, "publisher:"+p.channel, p.opts.Metrics)
	if err != nil {
		return fmt.Errorf("rrb: connect: %w", err)
	}
	p.cmd = c
	return nil
}

// Disconnect is idempotent: closes the connection if open, otherwise
// resolves immediately (spec.md §9: never-connected disconnect is a quiet
// resolve, not a rejection).
func (p *Publisher) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil {
		return nil
	}
	err := p.cmd.close()
	p.cmd = nil
	return err
}

// Publish composes and publishes message, returning the recipient count. If
// the count is below Options.MinimumRecipients, it rejects with
// ErrInsufficientRecipients — note the message was still delivered to
// whoever was listening; only the caller's view of "enough" recipients
// failed.
func (p *Publisher) Publish(ctx context.Context, message any) (int64, error) {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil {
		return 0, ErrNotConnected
	}

	payload, err := codec.ComposePubSubMessage(uuid.NewString(), message)
	if err != nil {
		return 0, fmt.Errorf("rrb: compose pubsub message: %w", err)
	}

	count, err := cmd.publish(ctx, p.keys.Channel(p.channel), payload)
	if err != nil {
		return 0, err
	}

	if p.opts.Metrics != nil {
		p.opts.Metrics.PublisherRecipients.WithLabelValues(p.channel).Observe(float64(count))
	}

	if count < int64(p.opts.MinimumRecipients) {
		if p.opts.Metrics != nil {
			p.opts.Metrics.PublisherInsufficientTotal.WithLabelValues(p.channel).Inc()
		}
		return 0, ErrInsufficientRecipients
	}

	return count, nil
}
