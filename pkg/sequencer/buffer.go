// ABOUTME: Gap-waiting storage of units keyed by id
// ABOUTME: Map for O(1) lookup plus an id min-heap for ordered inspection
package sequencer

import (
	"container/heap"
	"fmt"
	"math"
	"slices"
)

// Buffer holds units that have arrived but not yet played.
// It is not safe for concurrent use; the Scheduler guards it with its own lock.
type Buffer struct {
	entries map[int64]*bufferEntry
	order   idHeap
	floor   int64
}

type bufferEntry struct {
	unit  Unit
	index int
}

// NewBuffer creates an empty buffer that accepts every id
func NewBuffer() *Buffer {
	b := &Buffer{
		entries: make(map[int64]*bufferEntry),
		floor:   math.MinInt64,
	}
	heap.Init(&b.order)
	return b
}

// SetFloor sets the lowest id Put will accept. Entries already stored are kept.
func (b *Buffer) SetFloor(id int64) {
	b.floor = id
}

// Floor returns the lowest admissible id
func (b *Buffer) Floor() int64 {
	return b.floor
}

// Put stores a unit. An id below the floor is rejected with ErrStaleID.
// Putting an id that is already pending replaces its payload.
func (b *Buffer) Put(u Unit) error {
	if u.ID < b.floor {
		return fmt.Errorf("%w: %d below %d", ErrStaleID, u.ID, b.floor)
	}

	if e, ok := b.entries[u.ID]; ok {
		e.unit = u
		return nil
	}

	e := &bufferEntry{unit: u}
	b.entries[u.ID] = e
	heap.Push(&b.order, e)
	return nil
}

// Contains reports whether id is pending
func (b *Buffer) Contains(id int64) bool {
	_, ok := b.entries[id]
	return ok
}

// Take removes and returns the unit for id
func (b *Buffer) Take(id int64) (Unit, bool) {
	e, ok := b.entries[id]
	if !ok {
		return Unit{}, false
	}
	delete(b.entries, id)
	heap.Remove(&b.order, e.index)
	return e.unit, true
}

// Size returns the number of pending units
func (b *Buffer) Size() int {
	return len(b.entries)
}

// Clear drops every pending unit. The floor is unchanged.
func (b *Buffer) Clear() {
	clear(b.entries)
	b.order = b.order[:0]
}

// Lowest returns the smallest pending id
func (b *Buffer) Lowest() (int64, bool) {
	if len(b.order) == 0 {
		return 0, false
	}
	return b.order[0].unit.ID, true
}

// IDs returns pending ids in ascending order
func (b *Buffer) IDs() []int64 {
	ids := make([]int64, len(b.order))
	for i, e := range b.order {
		ids[i] = e.unit.ID
	}
	// the heap array is only partially ordered
	slices.Sort(ids)
	return ids
}

// CountBelow returns how many pending ids are smaller than id
func (b *Buffer) CountBelow(id int64) int {
	low, ok := b.Lowest()
	if !ok || low >= id {
		return 0
	}
	n := 0
	for _, e := range b.order {
		if e.unit.ID < id {
			n++
		}
	}
	return n
}

// idHeap implements heap.Interface ordered by unit id
type idHeap []*bufferEntry

func (h idHeap) Len() int { return len(h) }

func (h idHeap) Less(i, j int) bool {
	return h[i].unit.ID < h[j].unit.ID
}

func (h idHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *idHeap) Push(x interface{}) {
	e := x.(*bufferEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *idHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
