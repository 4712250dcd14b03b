package rrb

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// NewRateLimiter builds an admission-control limiter for Options.RateLimiter,
// following the teacher repo's ratelimit package: a formatted rate string
// ("100-M", "10-S", ...) backed by a Redis store when a client is supplied,
// falling back to an in-memory store otherwise (e.g. local testing without a
// shared backend for the limiter itself).
func NewRateLimiter(formattedRate string, redisClient *redis.Client) (*limiter.Limiter, error) {
	rate, err := limiter.NewRateFromFormatted(formattedRate)
	if err != nil {
		return nil, fmt.Errorf("rrb: invalid rate %q: %w", formattedRate, err)
	}

	var store limiter.Store
	if redisClient != nil {
		store, err = sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "rrb:ratelimit:"})
		if err != nil {
			return nil, fmt.Errorf("rrb: redis rate limit store: %w", err)
		}
	} else {
		store = memory.NewStore()
	}

	return limiter.New(store, rate), nil
}
