package capture

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"
)

// DeviceSource captures from the default input device via PortAudio.
type DeviceSource struct {
	cfg    Config
	stream *portaudio.Stream
	in     []float32
	out    []float32
	logger *log.Logger
}

// OpenDevice acquires the default input device with the configured
// preferences. Failure here is fatal to session start: the caller
// surfaces the error and does not retry.
func OpenDevice(cfg Config, logger *log.Logger) (*DeviceSource, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize audio host: %w", err)
	}

	in := make([]float32, cfg.BlockSize)
	stream, err := portaudio.OpenDefaultStream(
		cfg.Channels, 0, float64(cfg.SampleRate), len(in), in,
	)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open input device: %w", err)
	}

	logger.Info(
		"Acquired input device",
		"sampleRate", cfg.SampleRate,
		"channels", cfg.Channels,
		"blockSize", cfg.BlockSize,
		"echoCancellation", cfg.EchoCancellation,
		"noiseSuppression", cfg.NoiseSuppression,
	)

	return &DeviceSource{
		cfg:    cfg,
		stream: stream,
		in:     in,
		out:    make([]float32, cfg.BlockSize),
		logger: logger,
	}, nil
}

func (d *DeviceSource) Start() error {
	if err := d.stream.Start(); err != nil {
		return fmt.Errorf("start input stream: %w", err)
	}
	return nil
}

// Read blocks until one full block of samples is available. The returned
// slice is only valid until the next Read.
func (d *DeviceSource) Read() ([]float32, error) {
	if err := d.stream.Read(); err != nil {
		return nil, fmt.Errorf("read input stream: %w", err)
	}
	copy(d.out, d.in)
	return d.out, nil
}

// Stop closes the stream and tears down the audio host. Skipping either
// step leaks the device handle.
func (d *DeviceSource) Stop() error {
	stopErr := d.stream.Stop()
	closeErr := d.stream.Close()
	termErr := portaudio.Terminate()
	if stopErr != nil {
		return fmt.Errorf("stop input stream: %w", stopErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close input stream: %w", closeErr)
	}
	if termErr != nil {
		return fmt.Errorf("terminate audio host: %w", termErr)
	}
	d.logger.Info("Released input device")
	return nil
}
