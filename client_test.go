package rrb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRequestBeforeConnect(t *testing.T) {
	client := NewClient("queue", Options{})
	_, err := client.Request(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClientRequestAfterDisconnect(t *testing.T) {
	mr := newTestRedis(t)
	opts := testOptions(t, mr)

	client := NewClient("queue", opts)
	require.NoError(t, client.Connect(context.Background()))
	require.NoError(t, client.Disconnect(context.Background()))

	_, err := client.Request(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClientConnectIsIdempotent(t *testing.T) {
	mr := newTestRedis(t)
	opts := testOptions(t, mr)

	client := NewClient("queue", opts)
	require.NoError(t, client.Connect(context.Background()))
	defer func() { _ = client.Disconnect(context.Background()) }()

	assert.NoError(t, client.Connect(context.Background()))
}

func TestClientDisconnectBeforeConnectIsNoop(t *testing.T) {
	client := NewClient("queue", Options{})
	assert.NoError(t, client.Disconnect(context.Background()))
}

func TestClientEachHasUniqueID(t *testing.T) {
	a := NewClient("queue", Options{})
	b := NewClient("queue", Options{})
	assert.NotEqual(t, a.ID(), b.ID())
}
