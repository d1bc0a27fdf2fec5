package upstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsWindowEmptySnapshot(t *testing.T) {
	w := NewMetricsWindow(4)
	snap := w.Snapshot()
	assert.Equal(t, Snapshot{}, snap)
}

func TestMetricsWindowComputesSuccessRateAndLatency(t *testing.T) {
	w := NewMetricsWindow(4)
	w.Record(OutcomeSuccess, 10)
	w.Record(OutcomeSuccess, 20)
	w.Record(OutcomeTimeout, 30)
	w.Record(OutcomeSuccess, 40)

	snap := w.Snapshot()
	assert.Equal(t, 4, snap.SampleCount)
	assert.InDelta(t, 0.75, snap.SuccessRate, 0.001)
	assert.InDelta(t, 25.0, snap.MeanLatencyMs, 0.001)
}

func TestMetricsWindowEvictsOldestOnOverflow(t *testing.T) {
	w := NewMetricsWindow(2)
	w.Record(OutcomeTimeout, 100)
	w.Record(OutcomeSuccess, 10)
	w.Record(OutcomeSuccess, 10)

	snap := w.Snapshot()
	assert.Equal(t, 2, snap.SampleCount, "ring holds only the last `size` samples")
	assert.InDelta(t, 1.0, snap.SuccessRate, 0.001, "the evicted timeout no longer counts")
}

func TestMetricsWindowConsecutiveSuccessStreak(t *testing.T) {
	w := NewMetricsWindow(8)
	w.Record(OutcomeTimeout, 1)
	w.Record(OutcomeSuccess, 1)
	w.Record(OutcomeSuccess, 1)
	w.Record(OutcomeSuccess, 1)

	snap := w.Snapshot()
	assert.Equal(t, 3, snap.ConsecutiveSuccesses)
	assert.Equal(t, 0, snap.ConsecutiveFailures)
}

func TestMetricsWindowConsecutiveFailureStreak(t *testing.T) {
	w := NewMetricsWindow(8)
	w.Record(OutcomeSuccess, 1)
	w.Record(OutcomeTimeout, 1)
	w.Record(OutcomeServFail, 1)

	snap := w.Snapshot()
	assert.Equal(t, 2, snap.ConsecutiveFailures)
	assert.Equal(t, 0, snap.ConsecutiveSuccesses)
}

func TestOutcomeStringAndIsSuccess(t *testing.T) {
	assert.True(t, OutcomeSuccess.IsSuccess())
	assert.False(t, OutcomeTimeout.IsSuccess())
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "timeout", OutcomeTimeout.String())
	assert.Equal(t, "refused", OutcomeRefused.String())
	assert.Equal(t, "servfail", OutcomeServFail.String())
	assert.Equal(t, "error", OutcomeError.String())
}
