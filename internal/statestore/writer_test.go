package statestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dnsflatd/internal/health"
	"dnsflatd/internal/upstream"
)

func TestWriterWriteOnceCapturesEveryUpstream(t *testing.T) {
	s := openTestStore(t)
	registry := upstream.NewRegistry([]upstream.Entry{{Name: "a"}, {Name: "b"}}, 16)
	monitor := health.NewMonitor(registry, upstream.NewClient(), health.Config{FailureThreshold: 1, RecoveryThreshold: 1}, nil)
	monitor.ObserveQueryOutcome("a", upstream.OutcomeSuccess)

	w := NewWriter(s, registry, monitor, time.Minute, nil)
	w.writeOnce(context.Background())

	got, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	names := map[string]bool{}
	for _, snap := range got {
		names[snap.UpstreamName] = true
	}
	assert.True(t, names["a"])
	assert.True(t, names["b"])
}

func TestNewWriterDefaultsIntervalWhenNonPositive(t *testing.T) {
	w := NewWriter(nil, nil, nil, 0, nil)
	assert.Equal(t, time.Minute, w.interval)
}
