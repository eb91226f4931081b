// Package controller wires the analysis pipeline together: it feeds spectra
// to the beat detector, forwards accepted beats to the cycle tracker, and
// publishes the resulting count state to the TUI and the log.
package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/samsoedien/baila-beat/internal/beat"
	"github.com/samsoedien/baila-beat/internal/cycle"
	"github.com/samsoedien/baila-beat/internal/dsp"
	"github.com/samsoedien/baila-beat/internal/ui"
	"github.com/samsoedien/baila-beat/internal/utils"
)

// The beat pulse releases toward zero between beats; 0.12 leaves 88% of
// the level per tick.
const pulseRelease = 0.12

// CountController owns one listening session's detector and tracker.
type CountController struct {
	detector *beat.Detector
	tracker  *cycle.Tracker
	logger   *slog.Logger
	viz      *ui.Counter

	noiseFloor *dsp.Smoother
	peakEnergy *dsp.Smoother
	beatPulse  *dsp.Smoother

	state     cycle.State
	haveState bool
}

// NewCountController constructs a controller around a fresh detector and
// tracker. viz may be nil for headless operation.
func NewCountController(logger *slog.Logger, viz *ui.Counter) *CountController {
	c := &CountController{
		detector:   beat.NewDetector(beat.Options{}),
		tracker:    cycle.NewTracker(),
		logger:     logger,
		viz:        viz,
		noiseFloor: dsp.NewSmoother(0.01),
		peakEnergy: dsp.NewAsymmetricSmoother(0.34, 0.02),
		beatPulse:  dsp.NewSmoother(pulseRelease),
	}
	c.noiseFloor.Set(1e-3)
	c.peakEnergy.Set(1e-2)
	c.beatPulse.Set(0)
	return c
}

// Run consumes spectra until the channel closes or ctx is cancelled.
func (c *CountController) Run(ctx context.Context, in <-chan dsp.Spectrum) error {
	debugTicker := time.NewTicker(2 * time.Second)
	defer debugTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sp, ok := <-in:
			if !ok {
				return nil
			}
			c.apply(sp)
		case <-debugTicker.C:
			c.logger.Debug("detection state",
				slog.Int("bpm", c.detector.BPM()),
				slog.Uint64("beats", c.detector.BeatCount()),
				slog.Int("position", c.state.DisplayPosition),
				slog.Uint64("cycle", c.state.CycleIndex))
		}
	}
}

func (c *CountController) apply(sp dsp.Spectrum) {
	out := c.detector.Process(sp)

	// Noise floor and decaying peak envelope for display normalization.
	energy := out.Energy
	if energy <= 0 {
		energy = 1e-9
	}
	floor := c.noiseFloor.Step(energy)
	peak := c.peakEnergy.Step(energy)
	if minPeak := floor * 1.5; peak < minPeak {
		c.peakEnergy.Set(minPeak)
		peak = minPeak
	}
	energyNorm := utils.Clamp((energy-floor)/(peak-floor+1e-9), 0.0, 1.0)

	if out.TempoUpdated {
		c.logger.Info("tempo update", slog.Int("bpm", out.BPM))
	}

	if out.Beat {
		c.state = c.tracker.ProcessBeat(out.Downbeat, out.TimestampMs, float64(out.BPM))
		c.haveState = true
		c.beatPulse.Set(1)
		c.logBeat(out)
	} else {
		c.beatPulse.Step(0)
	}

	if c.viz != nil {
		c.viz.Update(ui.CounterFrame{
			Position:   c.state.DisplayPosition,
			CycleIndex: c.state.CycleIndex,
			Downbeat:   c.state.Downbeat,
			DashBeat:   c.state.DashBeat,
			BPM:        out.BPM,
			Energy:     energyNorm,
			BeatPulse:  utils.Clamp(c.beatPulse.Value(), 0.0, 1.0),
			Silence:    out.Silence,
			Counting:   c.haveState,
		})
	}
}

func (c *CountController) logBeat(out beat.Output) {
	level := slog.LevelInfo
	if c.viz != nil {
		level = slog.LevelDebug
	}
	c.logger.Log(context.Background(), level, "beat",
		slog.Int("count", c.state.DisplayPosition),
		slog.Uint64("cycle", c.state.CycleIndex),
		slog.Bool("downbeat", c.state.Downbeat),
		slog.Bool("dash", c.state.DashBeat),
		slog.Int("bpm", out.BPM),
		slog.Float64("energy", out.Energy))
}
