package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.GatewayCall("getblock", OutcomeHit)
		m.SkippedHeight()
		m.Cycle(true, 1)
	})
	assert.NotNil(t, m.Handler())
}

func TestCounters(t *testing.T) {
	m := New()
	m.GatewayCall("getblock", OutcomeMiss)
	m.GatewayCall("getblock", OutcomeHit)
	m.GatewayCall("getblock", OutcomeHit)
	m.SkippedHeight()
	m.Cycle(false, 0)
	m.Cycle(true, 42)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.gatewayCalls.WithLabelValues("getblock", OutcomeHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gatewayCalls.WithLabelValues("getblock", OutcomeMiss)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skippedHeights))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("failure")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.lastSuccess))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
