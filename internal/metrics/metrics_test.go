package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)
	require.NotNil(t, m)

	m.SeatLockAttempts.WithLabelValues("granted").Inc()
	m.SeatLockAttempts.WithLabelValues("conflict").Inc()
	m.SeatLockAttempts.WithLabelValues("conflict").Inc()
	m.StoreBestEffort.Set(1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SeatLockAttempts.WithLabelValues("conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreBestEffort))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["seat_lock_attempts_total"])
	assert.True(t, names["ephemeral_store_best_effort"])
}

func TestDiscard_IsolatedRegistries(t *testing.T) {
	a := Discard()
	b := Discard()
	a.BookingsTotal.WithLabelValues("confirmed").Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.BookingsTotal.WithLabelValues("confirmed")))
}
