package controller

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/samsoedien/baila-beat/internal/dsp"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func uniformSpectrum(energy, tsMs float64) dsp.Spectrum {
	mags := make([]float64, 33)
	for i := range mags {
		mags[i] = energy
	}
	return dsp.Spectrum{Magnitudes: mags, SampleRate: 44100, TimestampMs: tsMs}
}

func TestRunDrainsUntilChannelCloses(t *testing.T) {
	ctrl := NewCountController(discardLogger(), nil)

	in := make(chan dsp.Spectrum, 128)
	for n := 0; n < 120; n++ {
		energy := 2.0
		if n >= 50 && (n-50)%25 == 0 {
			energy = 100
		}
		in <- uniformSpectrum(energy, float64(n)*20)
	}
	close(in)

	err := ctrl.Run(context.Background(), in)
	assert.NoError(t, err)
	// Pulses at ticks 50, 75, 100: three accepted beats, count at 3.
	assert.Equal(t, uint64(3), ctrl.detector.BeatCount())
	assert.Equal(t, 3, ctrl.state.DisplayPosition)
}

func TestSilenceGapRestartsCount(t *testing.T) {
	ctrl := NewCountController(discardLogger(), nil)

	in := make(chan dsp.Spectrum, 1024)
	for n := 0; n < 700; n++ {
		energy := 2.0
		switch {
		case n >= 50 && n <= 425 && (n-50)%25 == 0:
			// 16 pulses 500ms apart, two full 8-count cycles.
			energy = 100
		case n == 675:
			// One pulse after a 5-second gap.
			energy = 100
		}
		in <- uniformSpectrum(energy, float64(n)*20)
	}
	close(in)

	err := ctrl.Run(context.Background(), in)
	assert.NoError(t, err)

	// Beat 16 is a downbeat hint (16 mod 8 == 0) and the gap exceeded the
	// tracker timeout, so the count restarts at 1 with a fresh cycle.
	assert.Equal(t, uint64(17), ctrl.detector.BeatCount())
	assert.Equal(t, 1, ctrl.state.DisplayPosition)
	assert.Equal(t, uint64(1), ctrl.state.CycleIndex)
	assert.True(t, ctrl.state.Downbeat)
}

func TestBeatPulseEnvelopeDecays(t *testing.T) {
	ctrl := NewCountController(discardLogger(), nil)

	in := make(chan dsp.Spectrum, 128)
	for n := 0; n < 80; n++ {
		energy := 2.0
		if n == 50 {
			energy = 100
		}
		in <- uniformSpectrum(energy, float64(n)*20)
	}
	close(in)

	err := ctrl.Run(context.Background(), in)
	assert.NoError(t, err)

	// One beat at tick 50, then 29 quiet ticks releasing 12% per tick.
	assert.Equal(t, uint64(1), ctrl.detector.BeatCount())
	assert.InDelta(t, math.Pow(0.88, 29), ctrl.beatPulse.Value(), 1e-9)
	assert.Greater(t, ctrl.peakEnergy.Value(), ctrl.noiseFloor.Value())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctrl := NewCountController(discardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan dsp.Spectrum)

	done := make(chan error, 1)
	go func() {
		done <- ctrl.Run(ctx, in)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}
