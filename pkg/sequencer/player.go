// ABOUTME: Player and Router collaborator contracts
// ABOUTME: Player outcomes come back as epoch-tagged Results
package sequencer

import (
	"strings"
	"time"
)

// ResultKind identifies an asynchronous Player outcome
type ResultKind int

const (
	// ResultPrepared means the payload decoded and Start may be called
	ResultPrepared ResultKind = iota
	// ResultCompleted means playback ran to the end
	ResultCompleted
	// ResultFailed means load or playback failed; Err says why
	ResultFailed
)

func (k ResultKind) String() string {
	switch k {
	case ResultPrepared:
		return "prepared"
	case ResultCompleted:
		return "completed"
	case ResultFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Request asks a Player to load one unit
type Request struct {
	Epoch   uint64
	ID      int64
	Payload []byte
}

// Result is a Player outcome. Epoch must echo the Request it answers.
type Result struct {
	Epoch uint64
	Kind  ResultKind
	Err   error
}

// Player decodes and renders one unit at a time.
//
// Load starts an asynchronous prepare and reports exactly one of
// ResultPrepared or ResultFailed through report. After Start succeeds the
// Player reports ResultCompleted or ResultFailed. report must never be called
// synchronously from inside Load, Start or Stop.
//
// Stop is synchronous and idempotent. It must not wait for report calls that
// are still in flight; the scheduler discards them by epoch.
type Player interface {
	Load(req Request, report func(Result)) error
	Start() error
	Stop()
	IsPlaying() bool
	Position() time.Duration
	Duration() time.Duration
}

// OutputMode selects where audio is routed
type OutputMode string

const (
	OutputSpeaker   OutputMode = "speaker"
	OutputEarpiece  OutputMode = "earpiece"
	OutputBluetooth OutputMode = "bluetooth"
)

// OutputModes lists the supported modes in cycling order
var OutputModes = []OutputMode{OutputSpeaker, OutputEarpiece, OutputBluetooth}

// ParseOutputMode is case-insensitive; empty or unknown names select the speaker
func ParseOutputMode(name string) OutputMode {
	switch OutputMode(strings.ToLower(strings.TrimSpace(name))) {
	case OutputEarpiece:
		return OutputEarpiece
	case OutputBluetooth:
		return OutputBluetooth
	default:
		return OutputSpeaker
	}
}

// Next returns the mode after m in OutputModes
func (m OutputMode) Next() OutputMode {
	for i, mode := range OutputModes {
		if mode == m {
			return OutputModes[(i+1)%len(OutputModes)]
		}
	}
	return OutputSpeaker
}

// Router applies an output mode to the audio device
type Router interface {
	Route(mode OutputMode) error
}
