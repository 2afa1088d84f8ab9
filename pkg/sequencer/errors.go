// ABOUTME: Error kinds produced by the sequencing core
// ABOUTME: Sentinels matched with errors.Is by callers and by event consumers
package sequencer

import "errors"

var (
	// ErrInvalidID is returned when an id cannot be parsed as an integer.
	ErrInvalidID = errors.New("invalid id")

	// ErrEmptyPayload marks a unit that carried no bytes.
	ErrEmptyPayload = errors.New("empty payload")

	// ErrStaleID is returned when an id is below the configured start id.
	// Stale units are dropped without emitting any event.
	ErrStaleID = errors.New("stale id")

	// ErrDecodeFailure wraps Player failures while preparing a unit.
	ErrDecodeFailure = errors.New("decode failure")

	// ErrPlaybackEngine wraps Player failures while a unit is playing.
	ErrPlaybackEngine = errors.New("playback engine error")

	// ErrReleased is returned by every operation after Release.
	ErrReleased = errors.New("scheduler released")
)
