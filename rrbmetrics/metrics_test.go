package rrbmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NotNil(t, m)

	m.WorkerStateTransitions.WithLabelValues("test", "Idle", "Working").Inc()
	m.ClientRequestsTotal.WithLabelValues("test", "ok").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestSeparateRegistriesDontCollide(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	assert.NotPanics(t, func() {
		New(reg1)
		New(reg2)
	})
}
