package rrb

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/arcbroker/rrb/rrblog"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func noopHandler(ctx context.Context, message json.RawMessage) error {
	return nil
}

func redisClientFromOptions(t *testing.T, opts Options) *redis.Client {
	t.Helper()
	return redis.NewClient(opts.Redis.Options)
}

func testOptions(t *testing.T, mr *miniredis.Miniredis) Options {
	t.Helper()
	return Options{
		Redis: RedisConfig{
			Options: &redis.Options{Addr: mr.Addr()},
			Prefix:  "test:",
		},
		Timeout: 200 * time.Millisecond,
		Logger:  rrblog.Noop(),
	}
}

func newTestRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return mr
}
