package rrb

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// S1: a worker whose handler echoes its input resolves a client's request
// to that same value.
func TestWorkerEchoesRequest(t *testing.T) {
	mr := newTestRedis(t)
	opts := testOptions(t, mr)

	w := New("test", func(ctx context.Context, data json.RawMessage) (any, error) {
		var n int
		require.NoError(t, json.Unmarshal(data, &n))
		return n, nil
	}, opts)
	require.NoError(t, w.Listen(context.Background()))
	defer func() { _ = w.Stop(context.Background()) }()

	client := NewClient("test", opts)
	require.NoError(t, client.Connect(context.Background()))
	defer func() { _ = client.Disconnect(context.Background()) }()

	resp, err := client.Request(context.Background(), 10)
	require.NoError(t, err)

	var got int
	require.NoError(t, json.Unmarshal(resp, &got))
	assert.Equal(t, 10, got)
}

// S2: a handler that raises surfaces its payload on the client as a
// *HandlerError.
func TestWorkerHandlerErrorPropagates(t *testing.T) {
	mr := newTestRedis(t)
	opts := testOptions(t, mr)

	w := New("test", func(ctx context.Context, data json.RawMessage) (any, error) {
		var s string
		require.NoError(t, json.Unmarshal(data, &s))
		return nil, errors.New(s)
	}, opts)
	require.NoError(t, w.Listen(context.Background()))
	defer func() { _ = w.Stop(context.Background()) }()

	client := NewClient("test", opts)
	require.NoError(t, client.Connect(context.Background()))
	defer func() { _ = client.Disconnect(context.Background()) }()

	_, err := client.Request(context.Background(), "data")
	require.Error(t, err)

	var he *HandlerError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "data", he.Message)
}

// S3: with no worker listening, a request times out within the configured
// window.
func TestClientTimesOutWithNoWorker(t *testing.T) {
	mr := newTestRedis(t)
	opts := testOptions(t, mr)
	opts.Timeout = 70 * time.Millisecond

	client := NewClient("invalid", opts)
	require.NoError(t, client.Connect(context.Background()))
	defer func() { _ = client.Disconnect(context.Background()) }()

	start := time.Now()
	_, err := client.Request(context.Background(), 20)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

// S4: two workers on the same queue, a request handled by exactly one.
func TestExactlyOneWorkerHandlesRequest(t *testing.T) {
	mr := newTestRedis(t)
	opts := testOptions(t, mr)

	var invocations int32
	handler := func(ctx context.Context, data json.RawMessage) (any, error) {
		if atomic.AddInt32(&invocations, 1) > 1 {
			return nil, errors.New("handled more than once")
		}
		var s string
		require.NoError(t, json.Unmarshal(data, &s))
		return s, nil
	}

	w1 := New("test", handler, opts)
	w2 := New("test", handler, opts)
	require.NoError(t, w1.Listen(context.Background()))
	require.NoError(t, w2.Listen(context.Background()))
	defer func() { _ = w1.Stop(context.Background()) }()
	defer func() { _ = w2.Stop(context.Background()) }()

	client := NewClient("test", opts)
	require.NoError(t, client.Connect(context.Background()))
	defer func() { _ = client.Disconnect(context.Background()) }()

	resp, err := client.Request(context.Background(), "work")
	require.NoError(t, err)

	var got string
	require.NoError(t, json.Unmarshal(resp, &got))
	assert.Equal(t, "work", got)
	assert.Equal(t, int32(1), atomic.LoadInt32(&invocations))
}

func TestWorkerSequentialHandling(t *testing.T) {
	mr := newTestRedis(t)
	opts := testOptions(t, mr)
	opts.Timeout = time.Second

	var concurrent int32
	var maxConcurrent int32
	w := New("seq", func(ctx context.Context, data json.RawMessage) (any, error) {
		n := atomic.AddInt32(&concurrent, 1)
		if n > atomic.LoadInt32(&maxConcurrent) {
			atomic.StoreInt32(&maxConcurrent, n)
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&concurrent, -1)
		return "ok", nil
	}, opts)
	require.NoError(t, w.Listen(context.Background()))
	defer func() { _ = w.Stop(context.Background()) }()

	client := NewClient("seq", opts)
	require.NoError(t, client.Connect(context.Background()))
	defer func() { _ = client.Disconnect(context.Background()) }()

	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := client.Request(context.Background(), "x")
			assert.NoError(t, err)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 3; i++ {
		<-done
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxConcurrent))
}

func TestWorkerStopIsIdempotent(t *testing.T) {
	mr := newTestRedis(t)
	opts := testOptions(t, mr)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	w := New("idempotent", func(ctx context.Context, data json.RawMessage) (any, error) {
		return nil, nil
	}, opts)
	require.NoError(t, w.Listen(context.Background()))

	assert.NoError(t, w.Stop(context.Background()))
	assert.NoError(t, w.Stop(context.Background()))
}

func TestWorkerStopBeforeListenIsNoop(t *testing.T) {
	w := New("never-listened", func(ctx context.Context, data json.RawMessage) (any, error) {
		return nil, nil
	}, Options{})
	assert.NoError(t, w.Stop(context.Background()))
}

func TestWorkerDrainsInFlightHandlerBeforeStopping(t *testing.T) {
	mr := newTestRedis(t)
	opts := testOptions(t, mr)
	opts.Timeout = time.Second
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	handlerStarted := make(chan struct{})
	releaseHandler := make(chan struct{})
	w := New("drain", func(ctx context.Context, data json.RawMessage) (any, error) {
		close(handlerStarted)
		<-releaseHandler
		return "done", nil
	}, opts)
	require.NoError(t, w.Listen(context.Background()))

	client := NewClient("drain", opts)
	require.NoError(t, client.Connect(context.Background()))
	defer func() { _ = client.Disconnect(context.Background()) }()

	requestDone := make(chan error, 1)
	go func() {
		_, err := client.Request(context.Background(), "go")
		requestDone <- err
	}()

	<-handlerStarted

	stopDone := make(chan error, 1)
	go func() { stopDone <- w.Stop(context.Background()) }()

	select {
	case <-stopDone:
		t.Fatal("Stop returned before in-flight handler completed")
	case <-time.After(20 * time.Millisecond):
	}

	close(releaseHandler)

	require.NoError(t, <-requestDone)
	require.NoError(t, <-stopDone)
}
