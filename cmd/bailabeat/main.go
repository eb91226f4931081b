package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/samsoedien/baila-beat/internal/controller"
	"github.com/samsoedien/baila-beat/internal/dsp"
	"github.com/samsoedien/baila-beat/internal/source"
	"github.com/samsoedien/baila-beat/internal/ui"
)

type pipelineConfig struct {
	SampleRate float64
	FrameSize  int
	Channels   int
	Visualize  bool
}

func main() {
	cfg := parseCLIFlags()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg runtimeOptions) error {
	logger := setupLogger(cfg.debug, cfg.visualize)

	if cfg.wavPath != "" {
		return runFromWAV(ctx, logger, cfg)
	}
	return runFromCapture(ctx, logger, cfg)
}

func setupLogger(debug, visualize bool) *slog.Logger {
	logOutput := os.Stdout
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	if visualize && !debug {
		logLevel = slog.LevelWarn
	}
	if visualize {
		logOutput = os.Stderr
	}

	logger := slog.New(slog.NewTextHandler(logOutput, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	return logger
}

func runFromWAV(ctx context.Context, logger *slog.Logger, cfg runtimeOptions) error {
	src, err := source.OpenWAV(cfg.wavPath, effectiveFrameSize(cfg.frameSize))
	if err != nil {
		return err
	}
	defer src.Close()

	pipeCfg := pipelineConfig{
		SampleRate: src.SampleRate(),
		FrameSize:  effectiveFrameSize(cfg.frameSize),
		Channels:   src.Channels(),
		Visualize:  cfg.visualize,
	}

	return runPipeline(ctx, logger, pipeCfg, func(produceCtx context.Context, out chan []float32) error {
		return src.Stream(produceCtx, logger, out)
	})
}

func runFromCapture(ctx context.Context, logger *slog.Logger, cfg runtimeOptions) error {
	if err := portaudio.Initialize(); err != nil {
		return eris.Wrap(err, "initialize PortAudio")
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return eris.Wrap(err, "enumerate audio devices")
	}

	defaultDevice, err := portaudio.DefaultInputDevice()
	if err != nil {
		return eris.Wrap(err, "resolve default audio input device")
	}

	device, err := selectInputDevice(devices, defaultDevice.Index, cfg)
	if err != nil {
		return eris.Wrap(err, "select input device")
	}
	if device.MaxInputChannels < 1 {
		return eris.Errorf("device %s has no input channels; select a loopback/monitor device", device.Name)
	}

	channels := sanitizeChannelCount(cfg.channels, int(device.MaxInputChannels))
	if cfg.channels > 0 && cfg.channels > int(device.MaxInputChannels) {
		logger.Warn("requested channels exceed device capabilities",
			slog.Int("requested", cfg.channels),
			slog.Int("max", int(device.MaxInputChannels)),
			slog.Int("using", channels),
		)
	}

	pipeCfg := pipelineConfig{
		SampleRate: effectiveSampleRate(cfg.sampleRate, device.DefaultSampleRate),
		FrameSize:  effectiveFrameSize(cfg.frameSize),
		Channels:   channels,
		Visualize:  cfg.visualize,
	}

	captureCfg := source.CaptureConfig{
		Device:     device,
		SampleRate: pipeCfg.SampleRate,
		FrameSize:  pipeCfg.FrameSize,
		Channels:   pipeCfg.Channels,
		Latency:    cfg.latency,
	}

	return runPipeline(ctx, logger, pipeCfg, func(produceCtx context.Context, out chan []float32) error {
		return source.Capture(produceCtx, logger, out, captureCfg)
	})
}

// runPipeline drives capture → spectrum analysis → beat detection until the
// producer finishes or the context is cancelled.
func runPipeline(
	ctx context.Context,
	logger *slog.Logger,
	cfg pipelineConfig,
	produce func(ctx context.Context, out chan []float32) error,
) error {
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	frameCh := make(chan []float32, 32)
	spectraCh := make(chan dsp.Spectrum, 32)
	analyzer := dsp.NewAnalyzer(cfg.SampleRate, cfg.FrameSize)

	var viz *ui.Counter
	if cfg.Visualize {
		viz = ui.NewCounter(cancel)
		defer viz.Close()
	}

	ctrl := controller.NewCountController(logger, viz)

	g, gctx := errgroup.WithContext(loopCtx)

	g.Go(func() error {
		defer close(frameCh)
		return produce(gctx, frameCh)
	})

	g.Go(func() error {
		defer close(spectraCh)
		start := time.Now()
		var mono []float64
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case frame, ok := <-frameCh:
				if !ok {
					return nil
				}
				mono = dsp.ToMono(frame, cfg.Channels, mono)
				if len(mono) != cfg.FrameSize {
					continue
				}
				nowMs := float64(time.Since(start).Microseconds()) / 1000
				sp := analyzer.Process(mono, nowMs)
				select {
				case spectraCh <- sp:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
	})

	g.Go(func() error {
		return ctrl.Run(gctx, spectraCh)
	})

	if err := g.Wait(); err != nil && !eris.Is(err, context.Canceled) {
		logger.Error("analysis pipeline failed", slog.Any("error", err))
		return err
	}

	return nil
}
