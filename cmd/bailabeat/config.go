package main

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/rotisserie/eris"

	"github.com/samsoedien/baila-beat/internal/ui"
)

// selectInputDevice resolves the capture device from the -device flag or,
// when absent, an interactive picker. Without a usable terminal it falls
// back to the default input device.
func selectInputDevice(
	devices []*portaudio.DeviceInfo,
	defaultDeviceIndex int,
	opts runtimeOptions,
) (*portaudio.DeviceInfo, error) {
	if len(devices) == 0 {
		return nil, eris.New("no input devices available")
	}

	if opts.deviceIndex >= 0 {
		if opts.deviceIndex >= len(devices) {
			return nil, eris.Errorf("invalid device index %d", opts.deviceIndex)
		}
		return devices[opts.deviceIndex], nil
	}

	initial := effectiveInitialDeviceIndex(opts.deviceIndex, defaultDeviceIndex, len(devices))

	index, err := ui.SelectDevice(buildDeviceOptions(devices), initial)
	if err != nil {
		if eris.Is(err, ui.ErrNoInteractiveTTY) {
			return devices[initial], nil
		}
		return nil, err
	}

	return devices[index], nil
}

func buildDeviceOptions(devices []*portaudio.DeviceInfo) []ui.Option {
	options := make([]ui.Option, len(devices))
	for i, dev := range devices {
		options[i] = ui.Option{
			Label: fmt.Sprintf(
				"[%d] %s · %.0fHz · in:%d · latency:%.1fms",
				i,
				dev.Name,
				dev.DefaultSampleRate,
				dev.MaxInputChannels,
				dev.DefaultLowInputLatency.Seconds()*1000,
			),
		}
	}
	return options
}

func effectiveInitialDeviceIndex(requested, fallback, length int) int {
	if length == 0 {
		return 0
	}
	if requested >= 0 && requested < length {
		return requested
	}
	if fallback >= 0 && fallback < length {
		return fallback
	}
	return 0
}

func sanitizeChannelCount(requested, max int) int {
	if requested <= 0 {
		return 1
	}

	if max > 0 && requested > max {
		return max
	}

	return requested
}

func effectiveSampleRate(requested, deviceDefault float64) float64 {
	if requested > 0 {
		return requested
	}

	if deviceDefault > 0 {
		return deviceDefault
	}

	return 44100
}

func effectiveFrameSize(requested int) int {
	if requested > 0 {
		return requested
	}

	return 1024
}
