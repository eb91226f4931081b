// Package cycle maps a detected beat stream onto the repeating 8-count dance
// cycle, classifying downbeats and the two silent "dash" counts.
package cycle

import "math"

const (
	// Positions is the length of the dance count cycle.
	Positions = 8
	// TimeoutMs is the silence span after which the cycle restarts: a long
	// gap marks the end of a phrase, not a pause inside one.
	TimeoutMs = 3000

	// Dash counts in the salsa 8-count; dancers hold on these.
	dashPositionA = 4
	dashPositionB = 8

	// Relative BPM-hint change treated as a tempo deviation.
	tempoDeviation = 0.1
)

// State is the externally visible cycle position after a beat.
type State struct {
	DisplayPosition int // 1..8
	CycleIndex      uint64
	Downbeat        bool
	DashBeat        bool
}

// Tracker advances the 8-count on every beat event. It performs no I/O and is
// not safe for concurrent use.
type Tracker struct {
	position   int // 0..Positions-1
	cycleIndex uint64

	lastBeatMs   float64
	haveBeat     bool
	cycleStartMs float64
	inCycle      bool

	bpm           float64
	pendingResync bool
	lastDownbeat  bool
}

// NewTracker returns a Tracker at position 1 with no cycle underway.
func NewTracker() *Tracker {
	return &Tracker{}
}

// ProcessBeat advances the cycle for one beat. downbeat is the detector's
// downbeat hint, tsMs the beat timestamp, and bpmHint the current stabilized
// tempo (0 when none is known). Beats with invalid timestamps are ignored.
func (t *Tracker) ProcessBeat(downbeat bool, tsMs float64, bpmHint float64) State {
	if tsMs < 0 || math.IsNaN(tsMs) || math.IsInf(tsMs, 0) {
		return t.CurrentState()
	}

	if t.haveBeat && tsMs-t.lastBeatMs > TimeoutMs {
		t.position = 0
		t.cycleIndex = 0
		t.inCycle = false
	}

	if bpmHint > 0 {
		if t.bpm > 0 && math.Abs(bpmHint-t.bpm)/t.bpm > tempoDeviation {
			// Deviation noted; the cycle resynchronizes at the next
			// naturally occurring downbeat rather than mid-phrase.
			t.pendingResync = true
		}
		t.bpm = bpmHint
	}

	if downbeat {
		t.cycleIndex++
		t.position = 0
		t.cycleStartMs = tsMs
		t.inCycle = true
		t.pendingResync = false
	} else {
		t.position = (t.position + 1) % Positions
	}

	t.lastBeatMs = tsMs
	t.haveBeat = true
	t.lastDownbeat = downbeat

	return t.CurrentState()
}

// CurrentState returns the cycle state as of the last processed beat.
func (t *Tracker) CurrentState() State {
	display := t.position + 1
	dash := display == dashPositionA || display == dashPositionB
	return State{
		DisplayPosition: display,
		CycleIndex:      t.cycleIndex,
		Downbeat:        t.lastDownbeat && !dash,
		DashBeat:        dash,
	}
}

// PredictedNextBeat returns the expected wall-clock time of the next beat in
// milliseconds. Before a cycle has started it extrapolates from the last beat;
// once underway it projects from the cycle start. It reports false when no
// tempo or beat reference is available.
func (t *Tracker) PredictedNextBeat() (float64, bool) {
	if t.bpm <= 0 {
		return 0, false
	}
	interval := 60000 / t.bpm
	if !t.inCycle {
		if !t.haveBeat {
			return 0, false
		}
		return t.lastBeatMs + interval, true
	}
	return t.cycleStartMs + float64(t.position+1)*interval, true
}

// PendingResync reports whether a tempo deviation is waiting for the next
// downbeat to take effect.
func (t *Tracker) PendingResync() bool {
	return t.pendingResync
}

// Reset zeroes position, cycle counter, beat times, and tempo fields.
func (t *Tracker) Reset() {
	t.position = 0
	t.cycleIndex = 0
	t.lastBeatMs = 0
	t.haveBeat = false
	t.cycleStartMs = 0
	t.inCycle = false
	t.bpm = 0
	t.pendingResync = false
	t.lastDownbeat = false
}
