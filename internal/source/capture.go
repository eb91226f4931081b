// Package source provides frame producers for the analysis pipeline: live
// PortAudio capture and real-time WAV replay. Both deliver interleaved
// float32 frames on a channel and stop when their context is cancelled.
package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rotisserie/eris"
)

// CaptureConfig describes one live capture session.
type CaptureConfig struct {
	Device     *portaudio.DeviceInfo
	SampleRate float64
	FrameSize  int
	Channels   int
	Latency    time.Duration
}

// Capture opens an input stream on the configured device and pushes frames to
// out until ctx is cancelled. When the consumer falls behind, the oldest
// queued frame is dropped so the stream never blocks the audio callback.
func Capture(ctx context.Context, logger *slog.Logger, out chan []float32, cfg CaptureConfig) error {
	if cfg.Device == nil {
		return eris.New("audio device is not specified")
	}

	logger.Info("using audio input device",
		slog.String("name", cfg.Device.Name),
		slog.Float64("sample_rate", cfg.SampleRate),
		slog.Int("channels", cfg.Channels),
		slog.Int("frame_size", cfg.FrameSize))

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   cfg.Device,
			Channels: cfg.Channels,
			Latency:  cfg.Device.DefaultLowInputLatency,
		},
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: cfg.FrameSize,
	}
	if cfg.Latency > 0 {
		params.Input.Latency = cfg.Latency
	}

	stream, err := portaudio.OpenStream(params, func(in []float32) {
		frame := make([]float32, len(in))
		copy(frame, in)
		pushLatest(out, frame)
	})
	if err != nil {
		return eris.Wrap(err, "open audio stream")
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return eris.Wrap(err, "start audio stream")
	}
	defer stream.Stop()

	<-ctx.Done()
	return ctx.Err()
}

// pushLatest enqueues frame, evicting the oldest queued frame if the channel
// is full.
func pushLatest(out chan []float32, frame []float32) {
	select {
	case out <- frame:
	default:
		select {
		case <-out:
		default:
		}
		select {
		case out <- frame:
		default:
		}
	}
}
