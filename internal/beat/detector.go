// Package beat implements the online beat detector: an adaptive-threshold
// onset detector over a rolling energy window, with tempo-aware debouncing,
// a predictive early-trigger path, and a stabilized BPM estimate.
package beat

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/samsoedien/baila-beat/internal/dsp"
	"github.com/samsoedien/baila-beat/internal/utils"
)

// Options tunes the behaviour of the Detector. Zero values fall back to the
// defaults the detector was designed around; overriding them is mainly useful
// in tests.
type Options struct {
	EnergyWindow int     // rolling energy history length in ticks
	MinEnergy    float64 // silence floor in weighted-energy units

	OnsetRatio          float64 // relative rise over previous tick flagging an onset
	ThresholdMultiplier float64 // stddev multiplier for the dynamic threshold
	RelativeMultiplier  float64 // fallback accept path relative to the window average

	DebounceFloorMs   float64 // minimum adaptive inter-beat interval
	DebounceCeilMs    float64 // maximum adaptive inter-beat interval
	DebounceDefaultMs float64 // interval used before enough beats are known
	DebounceFactor    float64 // fraction of the recent average interval

	LookAheadMs          float64 // predictive trigger window before the expected beat
	PredictiveMultiplier float64 // energy recheck multiplier for the predictive path
	RetriggerGuardMs     float64 // minimum spacing between predictive fires
	DedupGuardMs         float64 // main-path suppression window after a predictive fire

	BeatHistory    int     // beat timestamp buffer length
	DownbeatPeriod int     // every Nth accepted beat is a downbeat
	MinBPM         float64 // tempo acceptance range lower bound
	MaxBPM         float64 // tempo acceptance range upper bound
	OutlierBound   float64 // max relative deviation from the stabilized tempo
	BPMHistory     int     // accepted tempo sample buffer length
	SmoothingAlpha float64 // weight of the new candidate in the stabilized blend
}

func (o Options) withDefaults() Options {
	if o.EnergyWindow <= 0 {
		o.EnergyWindow = 43 // about one second of ticks
	}
	if o.MinEnergy <= 0 {
		o.MinEnergy = 1.5
	}
	if o.OnsetRatio <= 0 {
		o.OnsetRatio = 0.12
	}
	if o.ThresholdMultiplier <= 0 {
		o.ThresholdMultiplier = 1.3
	}
	if o.RelativeMultiplier <= 0 {
		o.RelativeMultiplier = 1.08
	}
	if o.DebounceFloorMs <= 0 {
		o.DebounceFloorMs = 150
	}
	if o.DebounceCeilMs <= 0 {
		o.DebounceCeilMs = 300
	}
	if o.DebounceDefaultMs <= 0 {
		o.DebounceDefaultMs = 200
	}
	if o.DebounceFactor <= 0 {
		o.DebounceFactor = 0.6
	}
	if o.LookAheadMs <= 0 {
		o.LookAheadMs = 250
	}
	if o.PredictiveMultiplier <= 0 {
		o.PredictiveMultiplier = 1.05
	}
	if o.RetriggerGuardMs <= 0 {
		o.RetriggerGuardMs = 100
	}
	if o.DedupGuardMs <= 0 {
		o.DedupGuardMs = 150
	}
	if o.BeatHistory <= 0 {
		o.BeatHistory = 15
	}
	if o.DownbeatPeriod <= 0 {
		o.DownbeatPeriod = 8
	}
	if o.MinBPM <= 0 {
		o.MinBPM = 60
	}
	if o.MaxBPM <= 0 {
		o.MaxBPM = 200
	}
	if o.OutlierBound <= 0 {
		o.OutlierBound = 0.4
	}
	if o.BPMHistory <= 0 {
		o.BPMHistory = 20
	}
	if o.SmoothingAlpha <= 0 {
		o.SmoothingAlpha = 0.2
	}
	return o
}

// Event is one accepted beat.
type Event struct {
	Beat        bool
	Downbeat    bool
	TimestampMs float64
	Energy      float64
}

// Output is the per-tick result of Process.
type Output struct {
	Event
	Silence      bool
	BPM          int
	TempoUpdated bool
}

// Detector holds all rolling detection state for one listening session.
// It is not safe for concurrent use; drive it from a single tick loop.
type Detector struct {
	opts Options

	energy *ring
	beats  *ring
	bpms   *ring

	prevEnergy float64

	beatCount  uint64
	lastBeatMs float64
	haveBeat   bool

	predictedMs    float64
	havePrediction bool
	lastFireMs     float64
	haveFired      bool

	stableBPM  float64
	roundedBPM int

	statScratch []float64
	bpmScratch  []float64
}

// NewDetector returns a ready-to-use Detector.
func NewDetector(opts Options) *Detector {
	opts = opts.withDefaults()
	return &Detector{
		opts:        opts,
		energy:      newRing(opts.EnergyWindow),
		beats:       newRing(opts.BeatHistory),
		bpms:        newRing(opts.BPMHistory),
		statScratch: make([]float64, 0, opts.EnergyWindow),
		bpmScratch:  make([]float64, 0, opts.BPMHistory),
	}
}

// Reset zeroes all buffers and counters so a subsequent tick stream starts
// from a cold state.
func (d *Detector) Reset() {
	d.energy.Reset()
	d.beats.Reset()
	d.bpms.Reset()
	d.prevEnergy = 0
	d.beatCount = 0
	d.lastBeatMs = 0
	d.haveBeat = false
	d.predictedMs = 0
	d.havePrediction = false
	d.lastFireMs = 0
	d.haveFired = false
	d.stableBPM = 0
	d.roundedBPM = 0
}

// BPM returns the current stabilized tempo, or 0 if none is established.
func (d *Detector) BPM() int {
	return d.roundedBPM
}

// BeatCount returns the number of beats accepted since the last reset.
func (d *Detector) BeatCount() uint64 {
	return d.beatCount
}

// Warm reports whether the energy window has filled and detection is active.
func (d *Detector) Warm() bool {
	return d.energy.Full()
}

// Process ingests one spectrum snapshot and returns the tick's outcome.
// Malformed snapshots (empty magnitudes, non-finite or negative timestamp)
// are dropped without touching rolling state.
func (d *Detector) Process(sp dsp.Spectrum) Output {
	now := sp.TimestampMs
	if len(sp.Magnitudes) == 0 || sp.SampleRate <= 0 ||
		now < 0 || math.IsNaN(now) || math.IsInf(now, 0) {
		return Output{}
	}

	energy := sp.Energy()
	prev := d.prevEnergy
	d.prevEnergy = energy
	d.energy.Push(energy)

	out := Output{
		Event: Event{TimestampMs: now, Energy: energy},
		BPM:   d.roundedBPM,
	}

	// Cold start: record only until the window fills.
	if !d.energy.Full() {
		return out
	}

	d.statScratch = d.energy.Values(d.statScratch)
	avg, stdDev := stat.MeanStdDev(d.statScratch, nil)
	if math.IsNaN(stdDev) {
		stdDev = 0
	}

	if avg < d.opts.MinEnergy {
		out.Silence = true
		return out
	}

	if d.tryPredictiveTrigger(now, energy, avg, &out) {
		return out
	}

	threshold := avg + d.opts.ThresholdMultiplier*stdDev
	onset := prev > 1e-9 && (energy-prev)/prev >= d.opts.OnsetRatio

	if energy <= d.opts.MinEnergy || energy <= threshold {
		return out
	}
	if !onset && energy <= avg*d.opts.RelativeMultiplier {
		return out
	}

	// A predictive fire already claimed this beat; emit no second event.
	if d.haveFired && now-d.lastFireMs <= d.opts.DedupGuardMs {
		return out
	}

	if d.haveBeat && now-d.lastBeatMs < d.debounceIntervalMs() {
		return out
	}

	d.accept(now, energy, &out)
	return out
}

// tryPredictiveTrigger fires an early beat when the current time has entered
// the look-ahead window before the predicted next beat and the energy recheck
// passes. The emitted event is stamped at the predicted instant rather than
// the wall-clock detection time.
func (d *Detector) tryPredictiveTrigger(now, energy, avg float64, out *Output) bool {
	if !d.havePrediction || now >= d.predictedMs || d.predictedMs-now > d.opts.LookAheadMs {
		return false
	}
	if energy <= avg*d.opts.PredictiveMultiplier || energy <= d.opts.MinEnergy {
		return false
	}
	if d.haveFired && now-d.lastFireMs <= d.opts.RetriggerGuardMs {
		return false
	}

	d.lastFireMs = now
	d.haveFired = true
	d.accept(now+d.opts.LookAheadMs, energy, out)
	return true
}

// accept records a beat at ts, updating downbeat bookkeeping, tempo, and the
// next-beat prediction.
func (d *Detector) accept(ts, energy float64, out *Output) {
	downbeat := d.beatCount%uint64(d.opts.DownbeatPeriod) == 0
	d.beatCount++

	if d.haveBeat {
		out.TempoUpdated = d.observeInterval(ts - d.lastBeatMs)
	}
	d.beats.Push(ts)
	d.lastBeatMs = ts
	d.haveBeat = true
	d.updatePrediction(ts)

	out.Beat = true
	out.Downbeat = downbeat
	out.TimestampMs = ts
	out.Energy = energy
	out.BPM = d.roundedBPM
}

// debounceIntervalMs derives the minimum inter-beat interval from the recent
// tempo, falling back to a fixed default until enough beats are known.
func (d *Detector) debounceIntervalMs() float64 {
	avgInterval, ok := d.averageBeatIntervalMs()
	if !ok {
		return d.opts.DebounceDefaultMs
	}
	return utils.Clamp(d.opts.DebounceFactor*avgInterval, d.opts.DebounceFloorMs, d.opts.DebounceCeilMs)
}

func (d *Detector) averageBeatIntervalMs() (float64, bool) {
	if d.beats.Len() < 2 {
		return 0, false
	}
	d.statScratch = d.beats.Values(d.statScratch)
	var sum float64
	for i := 1; i < len(d.statScratch); i++ {
		sum += d.statScratch[i] - d.statScratch[i-1]
	}
	return sum / float64(len(d.statScratch)-1), true
}

func (d *Detector) updatePrediction(ts float64) {
	if interval, ok := d.averageBeatIntervalMs(); ok {
		d.predictedMs = ts + interval
		d.havePrediction = true
		return
	}
	if d.stableBPM > 0 {
		d.predictedMs = ts + 60000/d.stableBPM
		d.havePrediction = true
		return
	}
	d.havePrediction = false
}

// observeInterval folds one inter-beat interval into the stabilized tempo.
// It reports whether the rounded tempo changed.
func (d *Detector) observeInterval(intervalMs float64) bool {
	if intervalMs <= 0 {
		return false
	}
	bpm := 60000 / intervalMs
	if bpm < d.opts.MinBPM || bpm > d.opts.MaxBPM {
		return false
	}
	if d.bpms.Len() >= 5 && d.stableBPM > 0 &&
		math.Abs(bpm-d.stableBPM)/d.stableBPM > d.opts.OutlierBound {
		return false
	}

	d.bpms.Push(bpm)
	candidate := d.candidateBPM()
	if d.stableBPM == 0 {
		d.stableBPM = candidate
	} else {
		alpha := d.opts.SmoothingAlpha
		d.stableBPM = (1-alpha)*d.stableBPM + alpha*candidate
	}

	rounded := int(math.Round(d.stableBPM))
	if rounded != d.roundedBPM {
		d.roundedBPM = rounded
		return true
	}
	return false
}

// candidateBPM computes a lightweight trimmed median: with five or more
// samples, the mean of a 5-wide window centered on the median of the sorted
// history; otherwise the plain mean.
func (d *Detector) candidateBPM() float64 {
	d.bpmScratch = d.bpms.Values(d.bpmScratch)
	n := len(d.bpmScratch)
	if n == 0 {
		return 0
	}
	sort.Float64s(d.bpmScratch)
	if n < 5 {
		return stat.Mean(d.bpmScratch, nil)
	}
	start := utils.Clamp(n/2-2, 0, n-5)
	return stat.Mean(d.bpmScratch[start:start+5], nil)
}
