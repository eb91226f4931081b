package cycle

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedCycles pushes count beats 500ms apart starting at startMs, hinting a
// downbeat every 8th beat.
func feedCycles(t *Tracker, startMs float64, count int, bpm float64) []State {
	states := make([]State, 0, count)
	for i := 0; i < count; i++ {
		ts := startMs + float64(i)*500
		states = append(states, t.ProcessBeat(i%8 == 0, ts, bpm))
	}
	return states
}

func TestPositionsCycleThroughEightCounts(t *testing.T) {
	tr := NewTracker()
	states := feedCycles(tr, 0, 16, 120)

	require.Len(t, states, 16)
	for i, s := range states {
		assert.Equal(t, i%8+1, s.DisplayPosition, "beat %d", i)
		assert.Equal(t, s.DisplayPosition == 4 || s.DisplayPosition == 8, s.DashBeat, "beat %d", i)
		assert.Equal(t, i%8 == 0, s.Downbeat, "beat %d", i)
	}
	assert.Equal(t, uint64(1), states[7].CycleIndex)
	assert.Equal(t, uint64(2), states[8].CycleIndex)
}

func TestDisplayPositionAlwaysInRange(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 100; i++ {
		s := tr.ProcessBeat(i%5 == 0, float64(i)*400, 0)
		assert.GreaterOrEqual(t, s.DisplayPosition, 1)
		assert.LessOrEqual(t, s.DisplayPosition, 8)
		assert.Equal(t, s.DisplayPosition == 4 || s.DisplayPosition == 8, s.DashBeat)
	}
}

func TestTimeoutRecoveryRestartsCycle(t *testing.T) {
	tr := NewTracker()
	states := feedCycles(tr, 0, 16, 120)
	assert.Equal(t, uint64(2), states[15].CycleIndex)
	assert.Equal(t, 8, states[15].DisplayPosition)

	// Last beat at t=7500ms, next after a 4-second gap.
	s := tr.ProcessBeat(true, 11500, 120)
	assert.Equal(t, 1, s.DisplayPosition)
	assert.Equal(t, uint64(1), s.CycleIndex)
	assert.True(t, s.Downbeat)
}

func TestTimeoutRecoveryWithoutDownbeatHint(t *testing.T) {
	tr := NewTracker()
	feedCycles(tr, 0, 16, 120)

	s := tr.ProcessBeat(false, 12000, 120)
	assert.Equal(t, 2, s.DisplayPosition)
	assert.Equal(t, uint64(0), s.CycleIndex)
	assert.False(t, s.Downbeat)
}

func TestDownbeatSuppressedOnDashPositionGuard(t *testing.T) {
	// Position 1 is never a dash position, so the guard stays dormant under
	// correct hint sequencing.
	tr := NewTracker()
	for i := 0; i < 32; i++ {
		s := tr.ProcessBeat(i%8 == 0, float64(i)*500, 0)
		if s.DashBeat {
			assert.False(t, s.Downbeat)
		}
	}
}

func TestPredictedNextBeat(t *testing.T) {
	tr := NewTracker()

	_, ok := tr.PredictedNextBeat()
	assert.False(t, ok, "no tempo or beats yet")

	// Before any cycle: extrapolate from the last beat.
	tr.ProcessBeat(false, 1000, 120)
	next, ok := tr.PredictedNextBeat()
	require.True(t, ok)
	assert.InDelta(t, 1500, next, 1e-9)

	// In a cycle: project from the cycle start.
	tr.ProcessBeat(true, 2000, 120)
	next, ok = tr.PredictedNextBeat()
	require.True(t, ok)
	assert.InDelta(t, 2500, next, 1e-9)

	tr.ProcessBeat(false, 2500, 120)
	next, ok = tr.PredictedNextBeat()
	require.True(t, ok)
	assert.InDelta(t, 3000, next, 1e-9)
}

func TestTempoDeviationDefersToNextDownbeat(t *testing.T) {
	tr := NewTracker()
	tr.ProcessBeat(true, 0, 120)
	s1 := tr.ProcessBeat(false, 500, 120)
	assert.False(t, tr.PendingResync())

	// A >10% hint change is noted but does not move the cycle.
	s2 := tr.ProcessBeat(false, 1000, 140)
	assert.True(t, tr.PendingResync())
	assert.Equal(t, s1.DisplayPosition+1, s2.DisplayPosition)
	assert.Equal(t, s1.CycleIndex, s2.CycleIndex)

	tr.ProcessBeat(true, 4000, 140)
	assert.False(t, tr.PendingResync())
}

func TestInvalidTimestampIgnored(t *testing.T) {
	tr := NewTracker()
	feedCycles(tr, 0, 3, 120)
	before := tr.CurrentState()

	assert.Equal(t, before, tr.ProcessBeat(false, math.NaN(), 120))
	assert.Equal(t, before, tr.ProcessBeat(false, -1, 120))
	assert.Equal(t, before, tr.ProcessBeat(false, math.Inf(1), 120))
	assert.Equal(t, before, tr.CurrentState())
}

func TestResetZeroesEverything(t *testing.T) {
	tr := NewTracker()
	feedCycles(tr, 0, 10, 120)
	tr.Reset()

	s := tr.CurrentState()
	assert.Equal(t, 1, s.DisplayPosition)
	assert.Equal(t, uint64(0), s.CycleIndex)
	assert.False(t, s.Downbeat)
	assert.False(t, s.DashBeat)
	assert.False(t, tr.PendingResync())

	_, ok := tr.PredictedNextBeat()
	assert.False(t, ok)
}

func TestResetReproducesIdenticalStates(t *testing.T) {
	tr := NewTracker()
	first := feedCycles(tr, 0, 24, 110)
	tr.Reset()
	second := feedCycles(tr, 0, 24, 110)
	assert.Equal(t, first, second)
}
