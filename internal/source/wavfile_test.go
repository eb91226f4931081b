package source

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestWAV(t *testing.T, samples []int, sampleRate, channels int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Data:           samples,
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	return path
}

func TestOpenWAVReadsFormat(t *testing.T) {
	path := writeTestWAV(t, make([]int, 512), 8000, 1)

	src, err := OpenWAV(path, 256)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, 8000.0, src.SampleRate())
	assert.Equal(t, 1, src.Channels())
}

func TestOpenWAVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	require.NoError(t, os.WriteFile(path, []byte("not a wav"), 0o644))

	_, err := OpenWAV(path, 256)
	assert.Error(t, err)

	_, err = OpenWAV(filepath.Join(t.TempDir(), "missing.wav"), 256)
	assert.Error(t, err)

	_, err = OpenWAV(path, 0)
	assert.Error(t, err)
}

func TestOpenWAVRejectsUnsupportedBitDepth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "8bit.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, 8000, 8, 1, 1)
	buf := &audio.IntBuffer{
		Data:           make([]int, 64),
		Format:         &audio.Format{NumChannels: 1, SampleRate: 8000},
		SourceBitDepth: 8,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	_, err = OpenWAV(path, 256)
	assert.ErrorContains(t, err, "unsupported bit depth")
}

func TestStreamDeliversNormalizedFrames(t *testing.T) {
	// 1024 mono samples at half full-scale for 16-bit PCM.
	samples := make([]int, 1024)
	for i := range samples {
		samples[i] = 16384
	}
	path := writeTestWAV(t, samples, 8000, 1)

	src, err := OpenWAV(path, 256)
	require.NoError(t, err)
	defer src.Close()

	out := make(chan []float32, 16)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	err = src.Stream(context.Background(), logger, out)
	require.NoError(t, err)
	close(out)

	var frames [][]float32
	for frame := range out {
		frames = append(frames, frame)
	}

	require.Len(t, frames, 4)
	for _, frame := range frames {
		require.Len(t, frame, 256)
		assert.InDelta(t, 0.5, float64(frame[0]), 1e-6)
	}
}

func TestStreamStopsOnCancel(t *testing.T) {
	path := writeTestWAV(t, make([]int, 4096), 8000, 1)

	src, err := OpenWAV(path, 256)
	require.NoError(t, err)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan []float32)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.ErrorIs(t, src.Stream(ctx, logger, out), context.Canceled)
}
