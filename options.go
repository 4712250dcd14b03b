package rrb

import (
	"sync"
	"time"

	"github.com/arcbroker/rrb/rrblog"
	"github.com/arcbroker/rrb/rrbmetrics"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/ulule/limiter/v3"
)

// RedisConfig is the backend connection configuration. Prefix is read once
// at participant construction (spec.md §4.2): changing the process-wide
// default prefix afterward never retroactively affects an open participant.
type RedisConfig struct {
	// Options is passed straight to redis.NewClient. Nil is invalid; callers
	// must at least set Addr (see rrbenv.FromEnv for a convenience loader).
	Options *redis.Options
	// Prefix is the keyspace prefix (default "rrb:").
	Prefix string
}

// BreakerConfig tunes the circuit breaker wrapped around every backend
// command. Zero value uses the teacher-derived defaults below.
type BreakerConfig struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
}

func (b BreakerConfig) resolve(name string) gobreaker.Settings {
	maxRequests := b.MaxRequests
	if maxRequests == 0 {
		maxRequests = 5
	}
	interval := b.Interval
	if interval == 0 {
		interval = time.Minute
	}
	timeout := b.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
	}
}

// Options configures a Worker, Client, Publisher, or Subscriber. Every
// field is optional; zero values fall back to the process-wide Defaults
// registry and then to the built-in defaults documented per field.
type Options struct {
	Redis RedisConfig

	// Timeout is the Client request timeout (default 1000ms). Unused by
	// Worker/Publisher/Subscriber.
	Timeout time.Duration

	// MinimumRecipients is the Publisher's minimum recipient count (default 0).
	MinimumRecipients int

	// Logger and Levels configure structured logging (default:
	// rrblog.Default(), identity Levels).
	Logger rrblog.Logger
	Levels rrblog.Levels

	// Metrics registers instrumentation; nil disables it entirely.
	Metrics *rrbmetrics.Metrics

	// Breaker tunes the circuit breaker wrapped around backend commands.
	Breaker BreakerConfig

	// RateLimiter, if set, is consulted by Client.Request before the
	// backend is touched at all (Worker/Publisher/Subscriber ignore it).
	RateLimiter *limiter.Limiter

	// HealthCheckInterval enables Worker's optional backend health loop
	// (spec.md §9: optional maintenance, not part of the dispatch
	// correctness protocol) when non-zero.
	HealthCheckInterval time.Duration
}

var (
	defaultsMu  sync.RWMutex
	defaultOpts Options
)

// SetDefaults replaces the process-wide default options merged into every
// subsequently-constructed participant's Options via Apply. It does not
// affect participants already constructed.
func SetDefaults(o Options) {
	defaultsMu.Lock()
	defer defaultsMu.Unlock()
	defaultOpts = o
}

// Apply merges o over the process-wide defaults: any zero-valued field in o
// is filled from the registry, then from the built-in fallback. Call sites
// never need to special-case which fields the caller actually set.
func Apply(o Options) Options {
	defaultsMu.RLock()
	d := defaultOpts
	defaultsMu.RUnlock()

	if o.Redis.Options == nil {
		o.Redis.Options = d.Redis.Options
	}
	if o.Redis.Prefix == "" {
		o.Redis.Prefix = d.Redis.Prefix
	}
	if o.Timeout == 0 {
		o.Timeout = d.Timeout
	}
	if o.Timeout == 0 {
		o.Timeout = time.Second
	}
	if o.MinimumRecipients == 0 {
		o.MinimumRecipients = d.MinimumRecipients
	}
	if o.Logger == nil {
		o.Logger = d.Logger
	}
	if o.Logger == nil {
		o.Logger = rrblog.Default()
	}
	o.Levels = mergeLevels(o.Levels, d.Levels).Resolve()
	if o.Metrics == nil {
		o.Metrics = d.Metrics
	}
	if o.Breaker == (BreakerConfig{}) {
		o.Breaker = d.Breaker
	}
	if o.RateLimiter == nil {
		o.RateLimiter = d.RateLimiter
	}
	if o.HealthCheckInterval == 0 {
		o.HealthCheckInterval = d.HealthCheckInterval
	}
	return o
}

func mergeLevels(o, d rrblog.Levels) rrblog.Levels {
	if o.Error == "" {
		o.Error = d.Error
	}
	if o.Warning == "" {
		o.Warning = d.Warning
	}
	if o.Notice == "" {
		o.Notice = d.Notice
	}
	if o.Info == "" {
		o.Info = d.Info
	}
	if o.Debug == "" {
		o.Debug = d.Debug
	}
	return o
}
