package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dnsflatd/internal/upstream"
)

func newTestMonitor(t *testing.T, cfg Config) *Monitor {
	t.Helper()
	registry := upstream.NewRegistry([]upstream.Entry{{Name: "up1"}}, 16)
	m := NewMonitor(registry, upstream.NewClient(), cfg, nil)
	m.started = time.Now().Add(-time.Hour) // outside startup grace
	return m
}

func TestMonitorStartsUnknown(t *testing.T) {
	m := newTestMonitor(t, Config{FailureThreshold: 3, RecoveryThreshold: 2})
	assert.Equal(t, Unknown, m.StateOf("up1"))
}

func TestMonitorUnknownToHealthyOnFirstSuccess(t *testing.T) {
	m := newTestMonitor(t, Config{FailureThreshold: 3, RecoveryThreshold: 2})
	m.ObserveQueryOutcome("up1", upstream.OutcomeSuccess)
	assert.Equal(t, Healthy, m.StateOf("up1"))
}

func TestMonitorHealthyToUnhealthyAfterFailureThreshold(t *testing.T) {
	m := newTestMonitor(t, Config{FailureThreshold: 3, RecoveryThreshold: 2})
	m.ObserveQueryOutcome("up1", upstream.OutcomeSuccess)
	require.Equal(t, Healthy, m.StateOf("up1"))

	m.ObserveQueryOutcome("up1", upstream.OutcomeTimeout)
	m.ObserveQueryOutcome("up1", upstream.OutcomeTimeout)
	assert.Equal(t, Healthy, m.StateOf("up1"), "below threshold, stays healthy")

	m.ObserveQueryOutcome("up1", upstream.OutcomeTimeout)
	assert.Equal(t, Unhealthy, m.StateOf("up1"), "hits failure threshold")
}

func TestMonitorUnhealthyRequiresConsecutiveRecoverySuccesses(t *testing.T) {
	m := newTestMonitor(t, Config{FailureThreshold: 1, RecoveryThreshold: 2})
	m.ObserveQueryOutcome("up1", upstream.OutcomeServFail)
	require.Equal(t, Unhealthy, m.StateOf("up1"))

	m.ObserveQueryOutcome("up1", upstream.OutcomeSuccess)
	assert.Equal(t, Unhealthy, m.StateOf("up1"), "one success is not enough to recover")

	m.ObserveQueryOutcome("up1", upstream.OutcomeSuccess)
	assert.Equal(t, Healthy, m.StateOf("up1"))
}

func TestMonitorRecoveryResetsOnIntermittentFailure(t *testing.T) {
	m := newTestMonitor(t, Config{FailureThreshold: 1, RecoveryThreshold: 2})
	m.ObserveQueryOutcome("up1", upstream.OutcomeServFail)
	m.ObserveQueryOutcome("up1", upstream.OutcomeSuccess)
	m.ObserveQueryOutcome("up1", upstream.OutcomeServFail)
	assert.Equal(t, Unhealthy, m.StateOf("up1"), "a failure between successes resets the recovery streak")
}

func TestMonitorHealthyForDegradedFallback(t *testing.T) {
	m := newTestMonitor(t, Config{FailureThreshold: 1, RecoveryThreshold: 2})
	m.ObserveQueryOutcome("up1", upstream.OutcomeServFail)
	require.Equal(t, Unhealthy, m.StateOf("up1"))

	healthy, degraded := m.HealthyFor()
	assert.True(t, degraded)
	assert.Len(t, healthy, 1, "degraded fallback returns every configured upstream")
}

func TestMonitorHealthyForIncludesUnknownAndHealthy(t *testing.T) {
	registry := upstream.NewRegistry([]upstream.Entry{{Name: "a"}, {Name: "b"}}, 16)
	m := NewMonitor(registry, upstream.NewClient(), Config{FailureThreshold: 1, RecoveryThreshold: 1}, nil)
	m.started = time.Now().Add(-time.Hour)

	m.ObserveQueryOutcome("a", upstream.OutcomeSuccess)

	healthy, degraded := m.HealthyFor()
	assert.False(t, degraded)
	assert.Len(t, healthy, 2, "b is still Unknown and counts as available")
}
