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

// Handler is invoked for exactly one claimed request at a time (spec.md
// §4.3 invariant: at most one in-flight request per worker). Returning an
// error composes an error response, carried back to the Client and
// re-raised there; it is never fatal to the Worker.
type Handler func(ctx context.Context, data json.RawMessage) (any, error)

type workerState int32

const (
	workerIdle workerState = iota
	workerWorking
	workerDraining
	workerStopped
)

func (s workerState) String() string {
	switch s {
	case workerIdle:
		return "Idle"
	case workerWorking:
		return "Working"
	case workerDraining:
		return "Draining"
	default:
		return "Stopped"
	}
}

// Worker listens on a queue's request-notification channel, races other
// workers on the same queue for queued requests via an atomic LPOP, and
// invokes handler for whichever one it wins.
type Worker struct {
	id      string
	queue   string
	handler Handler
	opts    Options
	keys    keys.Builder

	mu        sync.Mutex
	state     workerState
	listening bool

	cmd     *conn
	sub     *subscription
	stopped chan struct{}
	once    sync.Once
}

// New prepares key names only; it performs no network I/O (spec.md §4.3).
func New(queueName string, handler Handler, opts Options) *Worker {
	opts = Apply(opts)
	return &Worker{
		id:      uuid.NewString(),
		queue:   queueName,
		handler: handler,
		opts:    opts,
		keys:    keys.New(opts.Redis.Prefix),
		stopped: make(chan struct{}),
	}
}

// ID returns the worker's unique instance id, generated at construction.
func (w *Worker) ID() string { return w.id }

// Listen opens the worker's two connections (spec.md §5: one subscriber
// connection restricted to pub/sub, one command connection), subscribes to
// the queue's request-notification channel, and — once the subscription is
// acknowledged — runs a first queue-check. Returns a ListenError-shaped
// *BackendError if the subscribe fails.
func (w *Worker) Listen(ctx context.Context) error {
	c, err := newConn(w.opts.Redis, w.opts.Breaker, "worker:"+w.id, w.opts.Metrics)
	if err != nil {
		return fmt.Errorf("rrb: listen: %w", err)
	}

	notifKey := w.keys.Notification(w.queue)
	sub, err := newSubscription(ctx, c.client, notifKey)
	if err != nil {
		_ = c.close()
		return fmt.Errorf("rrb: listen: %w", err)
	}

	w.mu.Lock()
	w.cmd = c
	w.sub = sub
	w.state = workerIdle
	w.listening = true
	w.mu.Unlock()

	go w.readNotifications()
	if w.opts.HealthCheckInterval > 0 {
		go w.healthLoop()
	}

	go w.drain() // first checkQueue
	return nil
}

func (w *Worker) readNotifications() {
	for range w.sub.messages() {
		go w.drain()
	}
	// Channel closed: either Stop() tore the subscription down, or the
	// connection dropped out from under us. Only the latter warrants a
	// resubscribe attempt — optional maintenance, not correctness (see
	// spec.md §9: the startup checkQueue plus the notification/LPOP race
	// already make the protocol correct without a live subscription).
	w.mu.Lock()
	listening := w.listening
	w.mu.Unlock()
	if listening {
		w.resubscribe()
	}
}

func (w *Worker) resubscribe() {
	backoff := 100 * time.Millisecond
	for {
		w.mu.Lock()
		listening := w.listening
		w.mu.Unlock()
		if !listening {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		sub, err := newSubscription(ctx, w.cmd.client, w.keys.Notification(w.queue))
		cancel()
		if err == nil {
			w.mu.Lock()
			w.sub = sub
			w.mu.Unlock()
			w.log(rrblog.LevelNotice, "resubscribed to notification channel", nil)
			go w.readNotifications()
			go w.drain()
			return
		}

		w.log(rrblog.LevelWarning, "resubscribe failed, retrying", map[string]any{"error": err.Error()})
		time.Sleep(backoff)
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
}

func (w *Worker) healthLoop() {
	ticker := time.NewTicker(w.opts.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopped:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := w.cmd.ping(ctx)
			cancel()
			if err != nil {
				w.log(rrblog.LevelWarning, "worker health check failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

// Healthy sends a PING on the worker's command connection and reports
// whether it succeeded. It does not depend on Options.HealthCheckInterval
// or on the health loop's results; it returns false before Listen.
func (w *Worker) Healthy(ctx context.Context) bool {
	w.mu.Lock()
	c := w.cmd
	w.mu.Unlock()
	if c == nil {
		return false
	}
	return c.ping(ctx) == nil
}

// drain attempts claims until the queue appears empty, the worker is no
// longer Idle, or a backend error interrupts it. Safe to call concurrently
// from multiple goroutines: only one can ever be Working at a time, so
// redundant callers no-op immediately — notifications are advisory, LPOP is
// authoritative (spec.md §4.3).
func (w *Worker) drain() {
	for w.claimOnce() {
	}
}

func (w *Worker) claimOnce() bool {
	w.mu.Lock()
	if w.state != workerIdle {
		w.mu.Unlock()
		return false
	}
	w.state = workerWorking
	w.mu.Unlock()
	w.transitionMetric("Idle", "Working")

	ctx := context.Background()
	queueKey := w.keys.Queue(w.queue)
	item, err := w.cmd.lpop(ctx, queueKey)
	if err != nil {
		w.log(rrblog.LevelWarning, "lpop failed", map[string]any{"error": err.Error()})
		return w.finishClaim(false)
	}
	if item == nil {
		w.claimMissMetric()
		return w.finishClaim(false)
	}

	w.handleClaimedRequest(ctx, item)
	return w.finishClaim(true)
}

// finishClaim transitions out of Working, honoring a Stop() call that
// arrived mid-handler by draining to Stopped instead of back to Idle.
// tryAgain reports whether the caller should attempt another claim
// immediately.
func (w *Worker) finishClaim(tryAgain bool) bool {
	w.mu.Lock()
	if w.state == workerDraining {
		w.state = workerStopped
		w.mu.Unlock()
		w.transitionMetric("Working", "Stopped")
		w.shutdown()
		return false
	}
	w.state = workerIdle
	w.mu.Unlock()
	w.transitionMetric("Working", "Idle")
	return tryAgain
}

func (w *Worker) handleClaimedRequest(ctx context.Context, item []byte) {
	id, data, err := codec.ParseRequest(item)
	if err != nil {
		w.log(rrblog.LevelWarning, "discarding malformed request", map[string]any{"error": err.Error()})
		return
	}

	start := time.Now()
	result, handlerErr := w.invokeHandler(ctx, data)

	var payload []byte
	var composeErr error
	outcome := "ok"
	if handlerErr != nil {
		outcome = "error"
		payload, composeErr = codec.ComposeError(id, handlerErr)
	} else {
		payload, composeErr = codec.ComposeResponse(id, result)
	}
	if composeErr != nil {
		w.log(rrblog.LevelWarning, "failed to compose response", map[string]any{"error": composeErr.Error(), "requestId": id})
		return
	}

	if w.opts.Metrics != nil {
		w.opts.Metrics.WorkerHandlerDuration.WithLabelValues(w.queue, outcome).Observe(time.Since(start).Seconds())
	}

	respChannel := w.keys.Response(id)
	if _, err := w.cmd.publish(ctx, respChannel, payload); err != nil {
		// The client may have already given up (its short-lived subscriber
		// connection closed). At-most-once delivery of the response is
		// accepted; the client's own timeout is the safety net.
		w.log(rrblog.LevelWarning, "failed to publish response", map[string]any{"error": err.Error(), "requestId": id})
	}
}

func (w *Worker) invokeHandler(ctx context.Context, data json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rrb: handler panicked: %v", r)
		}
	}()
	return w.handler(ctx, data)
}

// Stop is idempotent: it marks the worker as non-listening, unsubscribes,
// and — if not currently handling a request — shuts down connections
// immediately; otherwise it defers shutdown until the current handler
// returns. Returns once connections are closed.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.listening {
		w.mu.Unlock()
		select {
		case <-w.stopped:
		default:
			// Never listened: nothing to close.
			w.once.Do(func() { close(w.stopped) })
		}
		return nil
	}
	w.listening = false

	switch w.state {
	case workerWorking:
		w.state = workerDraining
		sub := w.sub
		w.mu.Unlock()
		if sub != nil {
			sub.close()
		}
	default:
		w.state = workerStopped
		w.mu.Unlock()
		w.shutdown()
	}

	select {
	case <-w.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) shutdown() {
	w.once.Do(func() {
		w.mu.Lock()
		sub := w.sub
		c := w.cmd
		w.mu.Unlock()

		if sub != nil {
			sub.close()
		}
		if c != nil {
			_ = c.close()
		}
		close(w.stopped)
	})
}

func (w *Worker) transitionMetric(from, to string) {
	if w.opts.Metrics != nil {
		w.opts.Metrics.WorkerStateTransitions.WithLabelValues(w.queue, from, to).Inc()
	}
}

func (w *Worker) claimMissMetric() {
	if w.opts.Metrics != nil {
		w.opts.Metrics.WorkerClaimMisses.WithLabelValues(w.queue).Inc()
	}
}

func (w *Worker) log(level rrblog.Level, msg string, scope map[string]any) {
	if scope == nil {
		scope = map[string]any{}
	}
	scope["queue"] = w.queue
	w.opts.Logger.Log(resolveLevel(level, w.opts.Levels), msg, time.Now(), "worker", w.id, scope)
}

func resolveLevel(l rrblog.Level, levels rrblog.Levels) rrblog.Level {
	switch l {
	case rrblog.LevelError:
		return levels.Error
	case rrblog.LevelWarning:
		return levels.Warning
	case rrblog.LevelNotice:
		return levels.Notice
	case rrblog.LevelInfo:
		return levels.Info
	case rrblog.LevelDebug:
		return levels.Debug
	default:
		return l
	}
}
