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
)

// MessageHandler is invoked for every message delivered on a Subscriber's
// channel. A returned error is caught and logged at warning — it never
// stops the subscriber or affects the publisher (spec.md §4.6).
type MessageHandler func(ctx context.Context, message json.RawMessage) error

// Subscriber listens on a named pub/sub channel and invokes handler for
// every message delivered while it is listening.
type Subscriber struct {
	channel string
	handler MessageHandler
	opts    Options
	keys    keys.Builder

	mu        sync.Mutex
	listening bool
	cmd       *conn
	sub       *subscription
	stopped   chan struct{}
	once      sync.Once
}

// NewSubscriber prepares key names only; no network I/O.
func NewSubscriber(channelName string, handler MessageHandler, opts Options) *Subscriber {
	opts = Apply(opts)
	return &Subscriber{
		channel: channelName,
		handler: handler,
		opts:    opts,
		keys:    keys.New(opts.Redis.Prefix),
		stopped: make(chan struct{}),
	}
}

// Listen opens a subscriber connection, subscribes to the channel, and
// arms the message callback. Returns ErrAlreadyListening if called twice.
func (s *Subscriber) Listen(ctx context.Context) error {
	s.mu.Lock()
	if s.listening {
		s.mu.Unlock()
		return ErrAlreadyListening
	}
	s.mu.Unlock()

	c, err := newConn(s.opts.Redis, s.opts.Breaker, "subscriber:"+s.channel, s.opts.Metrics)
	if err != nil {
		return fmt.Errorf("rrb: listen: %w", err)
	}
	sub, err := newSubscription(ctx, c.client, s.keys.Channel(s.channel))
	if err != nil {
		_ = c.close()
		return fmt.Errorf("rrb: listen: %w", err)
	}

	s.mu.Lock()
	s.cmd = c
	s.sub = sub
	s.listening = true
	s.mu.Unlock()

	go s.readLoop()
	return nil
}

func (s *Subscriber) readLoop() {
	for msg := range s.sub.messages() {
		s.deliver(msg.Payload)
	}
}

func (s *Subscriber) deliver(payload string) {
	_, message, err := codec.ParsePubSubMessage([]byte(payload))
	if err != nil {
		s.log(rrblog.LevelWarning, "discarding malformed pubsub message", map[string]any{"error": err.Error()})
		return
	}

	s.messageMetric()
	if err := s.invokeHandler(message); err != nil {
		s.failureMetric()
		s.log(rrblog.LevelWarning, "subscriber handler failed", map[string]any{"error": err.Error()})
	}
}

func (s *Subscriber) invokeHandler(message json.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rrb: handler panicked: %v", r)
		}
	}()
	return s.handler(context.Background(), message)
}

// Stop is idempotent: unsubscribes and closes the connection.
func (s *Subscriber) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.listening {
		s.mu.Unlock()
		s.once.Do(func() { close(s.stopped) })
		return nil
	}
	s.listening = false
	s.mu.Unlock()

	s.once.Do(func() {
		s.sub.close()
		_ = s.cmd.close()
		close(s.stopped)
	})
	return nil
}

func (s *Subscriber) messageMetric() {
	if s.opts.Metrics != nil {
		s.opts.Metrics.SubscriberMessagesTotal.WithLabelValues(s.channel).Inc()
	}
}

func (s *Subscriber) failureMetric() {
	if s.opts.Metrics != nil {
		s.opts.Metrics.SubscriberHandlerFailures.WithLabelValues(s.channel).Inc()
	}
}

func (s *Subscriber) log(level rrblog.Level, msg string, scope map[string]any) {
	if scope == nil {
		scope = map[string]any{}
	}
	scope["channel"] = s.channel
	s.opts.Logger.Log(resolveLevel(level, s.opts.Levels), msg, time.Now(), "subscriber", "", scope)
}
