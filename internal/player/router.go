// ABOUTME: Output-mode router for desktop audio outputs
// ABOUTME: Records the selected mode and rejects modes the host cannot provide
package player

import (
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/harperreed/seqplay/pkg/sequencer"
)

// Router tracks the active output mode. A single system output has no
// separate earpiece, so only the modes listed as available are accepted.
type Router struct {
	mu        sync.Mutex
	mode      sequencer.OutputMode
	available []sequencer.OutputMode
	onChange  func(sequencer.OutputMode)
	logger    *log.Logger
}

// NewRouter creates a router. With no modes listed every mode is available.
func NewRouter(logger *log.Logger, available ...sequencer.OutputMode) *Router {
	if logger == nil {
		logger = log.Default().WithPrefix("router")
	}
	if len(available) == 0 {
		available = sequencer.OutputModes
	}
	return &Router{
		mode:      sequencer.OutputSpeaker,
		available: available,
		logger:    logger,
	}
}

// OnChange registers a callback for successful mode changes
func (r *Router) OnChange(fn func(sequencer.OutputMode)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Route switches to mode
func (r *Router) Route(mode sequencer.OutputMode) error {
	r.mu.Lock()
	if !slices.Contains(r.available, mode) {
		r.mu.Unlock()
		return fmt.Errorf("output mode %s not available on this host", mode)
	}
	r.mode = mode
	fn := r.onChange
	r.mu.Unlock()

	r.logger.Info("audio routed", "mode", mode)
	if fn != nil {
		fn(mode)
	}
	return nil
}

// Mode returns the active mode
func (r *Router) Mode() sequencer.OutputMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}
