// Package capture turns a live microphone stream into fixed-size signed
// 16-bit PCM frames at 16 kHz mono, with a smoothed loudness signal for
// display. Frames are emitted in capture order for as long as the
// pipeline runs.
package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

const (
	// SampleRate is the capture rate in Hz.
	SampleRate = 16000
	// Channels is the capture channel count.
	Channels = 1
	// BlockSize is the number of samples per processed block and per
	// emitted frame.
	BlockSize = 4096

	// silenceThreshold classifies a block as silent by mean absolute
	// amplitude. The run length is tracked for observability only and
	// never gates transmission.
	silenceThreshold = 0.01
	// levelReportBlocks is the fixed block cadence at which the averaged
	// level is reported.
	levelReportBlocks = 32
)

// Config carries the capability preferences requested from the input
// device. Echo cancellation and noise suppression are requests, not
// guarantees; a backend that cannot honor them captures anyway.
type Config struct {
	SampleRate       int
	Channels         int
	BlockSize        int
	EchoCancellation bool
	NoiseSuppression bool
}

// DefaultConfig is the preference set used for clinical dictation.
func DefaultConfig() Config {
	return Config{
		SampleRate:       SampleRate,
		Channels:         Channels,
		BlockSize:        BlockSize,
		EchoCancellation: true,
		NoiseSuppression: true,
	}
}

// Source yields fixed-size blocks of float samples in [-1, 1] from a
// granted input device. Stop must release the device before returning.
type Source interface {
	Start() error
	Read() ([]float32, error)
	Stop() error
}

// Pipeline reads blocks from a Source, meters them, converts them to
// int16 PCM, and hands each frame to send in capture order.
type Pipeline struct {
	src     Source
	send    func([]byte) error
	onLevel func(float64)
	logger  *log.Logger

	levelSum   float64
	blockCount int

	mu         sync.Mutex
	silenceRun int

	stopOnce sync.Once
	quit     chan struct{}
	done     chan struct{}
}

// NewPipeline wires a source to a frame sink. onLevel may be nil when the
// caller has no use for the loudness signal.
func NewPipeline(src Source, send func([]byte) error, onLevel func(float64), logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{
		src:     src,
		send:    send,
		onLevel: onLevel,
		logger:  logger,
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run starts the source and processes blocks until the context is
// canceled or Stop is called. The device is released before Run returns.
func (p *Pipeline) Run(ctx context.Context) error {
	defer close(p.done)

	if err := p.src.Start(); err != nil {
		return fmt.Errorf("start capture source: %w", err)
	}
	defer func() {
		if err := p.src.Stop(); err != nil {
			p.logger.Error("Failed to release capture device", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.quit:
			return nil
		default:
		}

		block, err := p.src.Read()
		if err != nil {
			return fmt.Errorf("read capture block: %w", err)
		}
		if err := p.processBlock(block); err != nil {
			return err
		}
	}
}

// Stop halts processing and blocks until the device has been released.
// Calling it again, or after Run has already returned, is a no-op.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() { close(p.quit) })
	<-p.done
}

// SilenceRun reports how many consecutive blocks have been classified as
// silent. Purely an observability signal.
func (p *Pipeline) SilenceRun() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.silenceRun
}

func (p *Pipeline) processBlock(block []float32) error {
	level := meanAbs(block)

	p.mu.Lock()
	if level < silenceThreshold {
		p.silenceRun++
	} else {
		p.silenceRun = 0
	}
	p.mu.Unlock()

	p.blockCount++
	p.levelSum += level
	if p.blockCount%levelReportBlocks == 0 {
		if p.onLevel != nil {
			p.onLevel(p.levelSum / levelReportBlocks)
		}
		p.levelSum = 0
	}

	if err := p.send(ConvertPCM(block)); err != nil {
		return fmt.Errorf("send audio frame: %w", err)
	}
	return nil
}

// ConvertPCM converts float samples in [-1, 1] to little-endian signed
// 16-bit PCM, scaling by 32768 and clamping to [-32768, 32767].
func ConvertPCM(block []float32) []byte {
	out := make([]byte, len(block)*2)
	for i, sample := range block {
		v := int32(sample * 32768)
		if v > 32767 {
			v = 32767
		}
		if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

func meanAbs(block []float32) float64 {
	if len(block) == 0 {
		return 0
	}
	var sum float64
	for _, sample := range block {
		if sample < 0 {
			sum -= float64(sample)
		} else {
			sum += float64(sample)
		}
	}
	return sum / float64(len(block))
}
