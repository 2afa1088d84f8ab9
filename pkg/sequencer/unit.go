// ABOUTME: Playable unit type and id parsing
// ABOUTME: Units are immutable once admitted to the buffer
package sequencer

import (
	"fmt"
	"strconv"
	"strings"
)

// Unit is one numbered chunk of encoded media
type Unit struct {
	ID      int64
	Payload []byte

	// Err poisons the unit: it keeps its place and fails with Err at its turn
	Err error
}

// Empty reports whether the unit carries no payload. Empty units are kept in
// sequence and fail when their turn comes.
func (u Unit) Empty() bool {
	return len(u.Payload) == 0
}

// ParseID converts a boundary id (decimal text, surrounding space allowed) to an int64
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, raw)
	}
	return id, nil
}
