// ABOUTME: Device-less audio output
// ABOUTME: Counts written frames and optionally paces writes in real time
package output

import (
	"fmt"
	"sync"
	"time"

	"github.com/harperreed/seqplay/pkg/audio"
)

// Null discards samples. With Realtime set each Write sleeps for the
// duration of the samples written, like a device would block.
type Null struct {
	Realtime bool

	mu         sync.Mutex
	sampleRate int
	channels   int
	frames     int64
	volume     int
	muted      bool
	open       bool
}

// NewNull creates a discarding output
func NewNull(realtime bool) *Null {
	return &Null{Realtime: realtime, volume: 100}
}

// Open records the format
func (n *Null) Open(sampleRate, channels int) error {
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("invalid output format: %dHz %dch", sampleRate, channels)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sampleRate = sampleRate
	n.channels = channels
	n.open = true
	return nil
}

// Write accepts samples
func (n *Null) Write(samples []int32) error {
	n.mu.Lock()
	if !n.open {
		n.mu.Unlock()
		return fmt.Errorf("output not initialized")
	}
	frames := len(samples) / n.channels
	n.frames += int64(frames)
	rate := n.sampleRate
	n.mu.Unlock()

	if n.Realtime {
		time.Sleep(audio.FramesToDuration(frames, rate))
	}
	return nil
}

// Close marks the output closed
func (n *Null) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.open = false
	return nil
}

// Frames returns the number of frames written so far
func (n *Null) Frames() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.frames
}

// SetVolume sets the volume (0-100)
func (n *Null) SetVolume(volume int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.volume = clampVolume(volume)
}

// SetMuted sets mute state
func (n *Null) SetMuted(muted bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.muted = muted
}

// GetVolume returns current volume
func (n *Null) GetVolume() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.volume
}

// IsMuted returns mute state
func (n *Null) IsMuted() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.muted
}
