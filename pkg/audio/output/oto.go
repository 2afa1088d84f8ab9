// ABOUTME: Oto-based audio output implementation
// ABOUTME: Streams PCM through a persistent oto player with software volume
package output

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
	"github.com/harperreed/seqplay/pkg/audio"
)

// Oto plays through the system sound device via oto
type Oto struct {
	mu         sync.Mutex
	otoCtx     *oto.Context
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	sampleRate int
	channels   int
	volume     int
	muted      bool
	ready      bool
	logger     *log.Logger
}

// NewOto creates a new Oto output
func NewOto(logger *log.Logger) *Oto {
	if logger == nil {
		logger = log.Default().WithPrefix("output")
	}
	return &Oto{
		volume: 100,
		logger: logger,
	}
}

// Open initializes the output device. oto allows one context per process,
// so the first format sticks; reopening after Close resumes that context.
func (o *Oto) Open(sampleRate, channels int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ready {
		return nil
	}

	if o.otoCtx == nil {
		ctx, readyChan, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			return fmt.Errorf("failed to create oto context: %w", err)
		}
		<-readyChan
		o.otoCtx = ctx
		o.sampleRate = sampleRate
		o.channels = channels
	} else {
		if o.sampleRate != sampleRate || o.channels != channels {
			o.logger.Warn("oto cannot change format, keeping existing context",
				"rate", o.sampleRate, "channels", o.channels,
				"requested_rate", sampleRate, "requested_channels", channels)
		}
		if err := o.otoCtx.Resume(); err != nil {
			return fmt.Errorf("failed to resume oto context: %w", err)
		}
	}

	// the player pulls from a pipe so Write blocks at device pace
	o.pipeReader, o.pipeWriter = io.Pipe()
	o.player = o.otoCtx.NewPlayer(o.pipeReader)
	o.player.Play()
	o.ready = true

	o.logger.Info("audio output opened", "rate", o.sampleRate, "channels", o.channels)
	return nil
}

// Write outputs audio samples (blocks until the device accepts them)
func (o *Oto) Write(samples []int32) error {
	o.mu.Lock()
	if !o.ready {
		o.mu.Unlock()
		return fmt.Errorf("output not initialized")
	}
	scaled := applyVolume(samples, o.volume, o.muted)
	writer := o.pipeWriter
	o.mu.Unlock()

	out := make([]byte, len(scaled)*2)
	for i, s := range scaled {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(audio.SampleToInt16(s)))
	}

	if _, err := writer.Write(out); err != nil {
		return fmt.Errorf("pipe write failed: %w", err)
	}
	return nil
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pipeWriter != nil {
		o.pipeWriter.Close()
		o.pipeWriter = nil
	}
	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	if o.pipeReader != nil {
		o.pipeReader.Close()
		o.pipeReader = nil
	}
	o.ready = false
	if o.otoCtx != nil {
		if err := o.otoCtx.Suspend(); err != nil {
			return fmt.Errorf("failed to suspend oto context: %w", err)
		}
	}
	return nil
}

// SetVolume sets the volume (0-100)
func (o *Oto) SetVolume(volume int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.volume = clampVolume(volume)
	o.logger.Info("volume set", "volume", o.volume)
}

// SetMuted sets mute state
func (o *Oto) SetMuted(muted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.muted = muted
	o.logger.Info("mute changed", "muted", muted)
}

// GetVolume returns current volume
func (o *Oto) GetVolume() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

// IsMuted returns mute state
func (o *Oto) IsMuted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.muted
}
