// ABOUTME: Playback engine implementing the sequencer Player contract
// ABOUTME: Decodes payloads off-thread and streams them to an audio output
package player

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harperreed/seqplay/pkg/audio"
	"github.com/harperreed/seqplay/pkg/audio/decode"
	"github.com/harperreed/seqplay/pkg/audio/output"
	"github.com/harperreed/seqplay/pkg/audio/resample"
	"github.com/harperreed/seqplay/pkg/sequencer"
)

// Config holds engine configuration
type Config struct {
	// Output receives converted samples. Required.
	Output output.Output

	// SampleRate and Channels of the output (default 48000 Hz stereo)
	SampleRate int
	Channels   int

	// RawFormat describes payloads without a container (default 16kHz mono 16-bit)
	RawFormat audio.Format

	// BlockSize is the write granularity (default 20ms)
	BlockSize time.Duration

	Logger *log.Logger
}

// Engine decodes and plays one unit at a time
type Engine struct {
	out       output.Output
	rate      int
	channels  int
	raw       audio.Format
	blockSize time.Duration
	logger    *log.Logger

	mu      sync.Mutex
	current *session

	// only one session writes to the output at a time
	writeMu sync.Mutex
}

type session struct {
	req    sequencer.Request
	report func(sequencer.Result)
	ctx    context.Context
	cancel context.CancelFunc

	clip    *audio.Clip
	started bool
	playing atomic.Bool
	frames  atomic.Int64
}

// New opens the output and creates an engine
func New(config Config) (*Engine, error) {
	if config.Output == nil {
		return nil, fmt.Errorf("output is required")
	}
	if config.SampleRate == 0 {
		config.SampleRate = 48000
	}
	if config.Channels == 0 {
		config.Channels = 2
	}
	if config.RawFormat.SampleRate == 0 {
		config.RawFormat = decode.DefaultRawFormat
	}
	if config.BlockSize <= 0 {
		config.BlockSize = 20 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = log.Default().WithPrefix("player")
	}

	if err := config.Output.Open(config.SampleRate, config.Channels); err != nil {
		return nil, fmt.Errorf("failed to open output: %w", err)
	}

	return &Engine{
		out:       config.Output,
		rate:      config.SampleRate,
		channels:  config.Channels,
		raw:       config.RawFormat,
		blockSize: config.BlockSize,
		logger:    config.Logger,
	}, nil
}

// Load replaces the current unit and decodes req.Payload in the background
func (e *Engine) Load(req sequencer.Request, report func(sequencer.Result)) error {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{req: req, report: report, ctx: ctx, cancel: cancel}

	e.mu.Lock()
	e.stopLocked()
	e.current = s
	e.mu.Unlock()

	go e.prepare(s)
	return nil
}

func (e *Engine) prepare(s *session) {
	started := time.Now()

	clip, err := decode.Clip(s.req.Payload, e.raw)
	if err != nil {
		if s.ctx.Err() == nil {
			s.report(sequencer.Result{
				Epoch: s.req.Epoch,
				Kind:  sequencer.ResultFailed,
				Err:   fmt.Errorf("%w: %v", sequencer.ErrDecodeFailure, err),
			})
		}
		return
	}

	converted := resample.Convert(clip, e.rate, e.channels)

	e.mu.Lock()
	if e.current != s || s.ctx.Err() != nil {
		e.mu.Unlock()
		return
	}
	s.clip = converted
	e.mu.Unlock()

	e.logger.Debug("unit prepared",
		"id", s.req.ID,
		"codec", clip.Format.Codec,
		"rate", clip.Format.SampleRate,
		"channels", clip.Format.Channels,
		"duration", converted.Duration(),
		"took", time.Since(started))

	s.report(sequencer.Result{Epoch: s.req.Epoch, Kind: sequencer.ResultPrepared})
}

// Start begins streaming the prepared unit
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.current
	if s == nil || s.clip == nil {
		return fmt.Errorf("no prepared unit")
	}
	if s.started {
		return nil
	}
	s.started = true
	s.playing.Store(true)

	go e.play(s)
	return nil
}

func (e *Engine) play(s *session) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	defer s.playing.Store(false)

	samples := s.clip.Samples
	block := int(int64(e.rate)*int64(e.blockSize)/int64(time.Second)) * e.channels
	if block <= 0 {
		block = e.channels
	}

	for off := 0; off < len(samples); off += block {
		if s.ctx.Err() != nil {
			return
		}

		end := min(off+block, len(samples))
		if err := e.out.Write(samples[off:end]); err != nil {
			if s.ctx.Err() == nil {
				s.report(sequencer.Result{
					Epoch: s.req.Epoch,
					Kind:  sequencer.ResultFailed,
					Err:   fmt.Errorf("%w: %v", sequencer.ErrPlaybackEngine, err),
				})
			}
			return
		}
		s.frames.Add(int64((end - off) / e.channels))
	}

	if s.ctx.Err() == nil {
		s.playing.Store(false)
		s.report(sequencer.Result{Epoch: s.req.Epoch, Kind: sequencer.ResultCompleted})
	}
}

// Stop cancels the current unit without waiting for its goroutines
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if e.current == nil {
		return
	}
	e.current.cancel()
	e.current.playing.Store(false)
	e.current = nil
}

// IsPlaying reports whether the current unit is streaming
func (e *Engine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil && e.current.playing.Load()
}

// Position returns how much of the current unit has been written
func (e *Engine) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return 0
	}
	return audio.FramesToDuration(int(e.current.frames.Load()), e.rate)
}

// Duration returns the length of the current unit, zero until prepared
func (e *Engine) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil || e.current.clip == nil {
		return 0
	}
	return e.current.clip.Duration()
}

// Close stops playback and releases the output
func (e *Engine) Close() error {
	e.Stop()
	return e.out.Close()
}
