package source

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rotisserie/eris"
)

// WAVSource replays a PCM WAV file through the same frame-channel interface
// as live capture, pacing frames at real-time cadence so the downstream
// pipeline sees a forward-only stream.
type WAVSource struct {
	file      *os.File
	decoder   *wav.Decoder
	frameSize int
}

// OpenWAV opens path and validates it as a decodable PCM WAV file.
func OpenWAV(path string, frameSize int) (*WAVSource, error) {
	if frameSize <= 0 {
		return nil, eris.New("frame size must be > 0")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "open wav file")
	}

	decoder := wav.NewDecoder(f)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		f.Close()
		return nil, eris.Errorf("%s is not a valid wav file", path)
	}
	if decoder.BitDepth == 0 || decoder.NumChans == 0 || decoder.SampleRate == 0 {
		f.Close()
		return nil, eris.Errorf("%s has no decodable format info", path)
	}
	// Stream's sample scaling assumes signed PCM; 8-bit WAV is unsigned
	// and would decode off-center.
	switch decoder.BitDepth {
	case 16, 24, 32:
	default:
		f.Close()
		return nil, eris.Errorf("%s has unsupported bit depth %d", path, decoder.BitDepth)
	}

	return &WAVSource{
		file:      f,
		decoder:   decoder,
		frameSize: frameSize,
	}, nil
}

// SampleRate returns the file's sample rate in Hz.
func (s *WAVSource) SampleRate() float64 {
	return float64(s.decoder.SampleRate)
}

// Channels returns the file's channel count.
func (s *WAVSource) Channels() int {
	return int(s.decoder.NumChans)
}

// Stream decodes the file frame by frame and sends each frame on out, paced
// to the frame duration. It returns nil at end of file.
func (s *WAVSource) Stream(ctx context.Context, logger *slog.Logger, out chan<- []float32) error {
	channels := s.Channels()
	frameDuration := time.Duration(float64(s.frameSize) / s.SampleRate() * float64(time.Second))

	logger.Info("replaying wav file",
		slog.String("name", s.file.Name()),
		slog.Float64("sample_rate", s.SampleRate()),
		slog.Int("channels", channels),
		slog.Int("frame_size", s.frameSize))

	scale := 1.0 / float64(int64(1)<<(uint(s.decoder.BitDepth)-1))
	buf := &audio.IntBuffer{
		Data: make([]int, s.frameSize*channels),
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  int(s.decoder.SampleRate),
		},
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		n, err := s.decoder.PCMBuffer(buf)
		if err != nil {
			return eris.Wrap(err, "decode wav frame")
		}
		if n == 0 {
			return nil
		}

		frame := make([]float32, len(buf.Data))
		for i := 0; i < n; i++ {
			frame[i] = float32(float64(buf.Data[i]) * scale)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		select {
		case out <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close releases the underlying file.
func (s *WAVSource) Close() error {
	return s.file.Close()
}
