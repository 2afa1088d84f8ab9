// ABOUTME: Sequenced playback state machine
// ABOUTME: Plays buffered units in strictly ascending id order, one at a time
package sequencer

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultProgressInterval is how often progress is polled while a unit plays
const DefaultProgressInterval = 300 * time.Millisecond

// Phase is the scheduler lifecycle state
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseWaiting
	PhasePlaying
	PhaseReleased
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseWaiting:
		return "waiting"
	case PhasePlaying:
		return "playing"
	case PhaseReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Config holds scheduler configuration
type Config struct {
	// Player renders units. Required.
	Player Player

	// Router applies output modes. Optional.
	Router Router

	// StartPlayID is the initial start id (default 0)
	StartPlayID int64

	// ProgressInterval defaults to DefaultProgressInterval
	ProgressInterval time.Duration

	// Logger defaults to log.Default() with a "sequencer" prefix
	Logger *log.Logger
}

// Stats counts what the scheduler has done
type Stats struct {
	Queued    int64
	Started   int64
	Completed int64
	Failed    int64
	Stale     int64
	Invalid   int64
	Discarded int64 // Player results dropped because their epoch was stale
}

// Status is a point-in-time snapshot of the scheduler
type Status struct {
	Phase          Phase
	StartPlayID    int64
	ExpectedNextID int64
	Epoch          uint64
	CurrentID      int64 // valid when Phase == PhasePlaying
	Buffered       []int64
	Stranded       int // buffered ids below ExpectedNextID; they can never play
	Mode           OutputMode
	Position       time.Duration
	Duration       time.Duration
}

// Scheduler owns the buffer and the playback state machine.
// All state is guarded by a single mutex; Player results re-enter through report.
type Scheduler struct {
	mu       sync.Mutex
	player   Player
	router   Router
	buffer   *Buffer
	interval time.Duration
	logger   *log.Logger

	startPlayID    int64
	expectedNextID int64
	phase          Phase
	manualClear    bool
	epoch          uint64
	current        int64
	started        bool
	mode           OutputMode

	observer Observer
	events   *dispatcher
	pollStop chan struct{}

	stats Stats
}

// NewScheduler creates an idle scheduler
func NewScheduler(config Config) *Scheduler {
	if config.ProgressInterval <= 0 {
		config.ProgressInterval = DefaultProgressInterval
	}
	if config.Logger == nil {
		config.Logger = log.Default().WithPrefix("sequencer")
	}

	buffer := NewBuffer()
	buffer.SetFloor(config.StartPlayID)

	return &Scheduler{
		player:         config.Player,
		router:         config.Router,
		buffer:         buffer,
		interval:       config.ProgressInterval,
		logger:         config.Logger,
		startPlayID:    config.StartPlayID,
		expectedNextID: config.StartPlayID,
		phase:          PhaseIdle,
		mode:           OutputSpeaker,
		events:         newDispatcher(config.Logger),
	}
}

// Subscribe registers the single observer, replacing any previous one.
// Nil unsubscribes. Past events are not replayed.
func (s *Scheduler) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseReleased {
		return
	}
	s.observer = o
}

// ConfigureStart sets the start id and resets the pointer to it.
// Units already buffered below the new start id are not purged.
func (s *Scheduler) ConfigureStart(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseReleased {
		return ErrReleased
	}
	if s.phase == PhasePlaying {
		s.logger.Warn("start id reconfigured during playback", "id", id, "playing", s.current)
	}

	s.startPlayID = id
	s.expectedNextID = id
	s.buffer.SetFloor(id)

	s.logger.Info("start id configured", "id", id, "buffered", s.buffer.Size())
	return nil
}

// EnqueueRaw admits a unit whose id is still in its boundary text form
func (s *Scheduler) EnqueueRaw(rawID string, payload []byte) error {
	id, err := ParseID(rawID)
	if err == nil {
		return s.Enqueue(id, payload)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseReleased {
		return ErrReleased
	}

	s.stats.Invalid++
	s.logger.Warn("rejecting unit", "id", rawID, "err", err)
	s.emit(Event{Type: EventError, RawID: rawID, Invalid: true, Message: ErrInvalidID.Error()})
	return err
}

// Enqueue admits a unit. Ids below the start id are dropped silently with ErrStaleID.
func (s *Scheduler) Enqueue(id int64, payload []byte) error {
	return s.put(Unit{ID: id, Payload: payload})
}

// EnqueueFailed admits a unit whose payload could not be recovered. It is
// queued like any other and reports cause as its error when its turn comes.
func (s *Scheduler) EnqueueFailed(id int64, cause error) error {
	if cause == nil {
		cause = ErrDecodeFailure
	}
	return s.put(Unit{ID: id, Err: cause})
}

func (s *Scheduler) put(u Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseReleased {
		return ErrReleased
	}

	if err := s.buffer.Put(u); err != nil {
		s.stats.Stale++
		s.logger.Debug("dropping stale unit", "id", u.ID, "start", s.startPlayID)
		return err
	}

	s.stats.Queued++
	s.emit(Event{Type: EventQueued, ID: u.ID, QueueSize: s.buffer.Size()})

	if s.phase != PhasePlaying && s.buffer.Contains(s.expectedNextID) {
		s.advance()
	}
	return nil
}

// Clear stops playback, empties the buffer and rewinds to the start id.
// It never produces queueEmpty.
func (s *Scheduler) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseReleased {
		return ErrReleased
	}

	s.manualClear = true
	s.epoch++
	s.stopProgress()
	s.player.Stop()
	s.buffer.Clear()
	s.expectedNextID = s.startPlayID
	s.phase = PhaseWaiting
	s.started = false
	s.manualClear = false

	s.logger.Info("queue cleared", "start", s.startPlayID)
	return nil
}

// Release stops everything permanently. No events follow it.
func (s *Scheduler) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseReleased {
		return ErrReleased
	}

	s.epoch++
	s.stopProgress()
	s.player.Stop()
	s.buffer.Clear()
	s.phase = PhaseReleased
	s.started = false
	s.observer = nil
	s.events.close()

	s.logger.Info("scheduler released")
	return nil
}

// Done is closed once the scheduler is released and every event queued
// before the release has been delivered
func (s *Scheduler) Done() <-chan struct{} {
	return s.events.done
}

// SetOutputMode routes audio to the named output. Empty or unknown names
// select the speaker. A routing failure is logged; the mode still changes.
func (s *Scheduler) SetOutputMode(name string) (OutputMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseReleased {
		return "", ErrReleased
	}

	mode := ParseOutputMode(name)
	if s.router != nil {
		if err := s.router.Route(mode); err != nil {
			s.logger.Error("output routing failed", "mode", mode, "err", err)
		}
	}
	s.mode = mode
	s.emit(Event{Type: EventModeChanged, Mode: mode})
	return mode, nil
}

// Status returns a snapshot of the scheduler state
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Phase:          s.phase,
		StartPlayID:    s.startPlayID,
		ExpectedNextID: s.expectedNextID,
		Epoch:          s.epoch,
		Buffered:       s.buffer.IDs(),
		Stranded:       s.buffer.CountBelow(s.expectedNextID),
		Mode:           s.mode,
	}
	if s.phase == PhasePlaying {
		st.CurrentID = s.current
		if s.started {
			st.Position = s.player.Position()
			st.Duration = s.player.Duration()
		}
	}
	return st
}

// Stats returns scheduler counters
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// report receives Player results. Results from an older epoch, or arriving
// when nothing is in flight, are discarded.
func (s *Scheduler) report(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhasePlaying || r.Epoch != s.epoch {
		s.stats.Discarded++
		s.logger.Debug("discarding stale player result", "kind", r.Kind, "epoch", r.Epoch, "current", s.epoch)
		return
	}

	switch r.Kind {
	case ResultPrepared:
		if s.started {
			return
		}
		s.started = true
		s.emit(Event{Type: EventStart, ID: s.current, QueueSize: s.buffer.Size()})

		if err := s.player.Start(); err != nil {
			s.fail(fmt.Errorf("%w: %v", ErrPlaybackEngine, err))
			return
		}
		s.stats.Started++
		s.startProgress(s.epoch)

	case ResultCompleted:
		s.stats.Completed++
		s.settle(Event{Type: EventComplete, ID: s.current})
		s.advance()

	case ResultFailed:
		err := r.Err
		if err == nil {
			err = ErrPlaybackEngine
		}
		s.fail(err)
	}
}

// fail finishes the in-flight unit with an error event and moves on
func (s *Scheduler) fail(err error) {
	s.stats.Failed++
	s.logger.Warn("unit failed", "id", s.current, "err", err)
	s.settle(Event{Type: EventError, ID: s.current, Message: err.Error()})
	s.advance()
}

// settle emits the terminal event for the in-flight unit and steps the pointer
func (s *Scheduler) settle(e Event) {
	s.stopProgress()
	if e.Type == EventComplete {
		e.QueueSize = s.buffer.Size()
	}
	s.emit(e)
	s.expectedNextID++
	s.phase = PhaseWaiting
	s.started = false
}

// advance starts the expected unit if it is buffered. Units that fail to
// load synchronously are settled in place and the next id is tried.
// Must be called with s.mu held and nothing in flight.
func (s *Scheduler) advance() {
	for {
		u, ok := s.buffer.Take(s.expectedNextID)
		if !ok {
			break
		}

		s.epoch++
		s.phase = PhasePlaying
		s.current = u.ID
		s.started = false

		err := s.load(u)
		if err == nil {
			return
		}

		s.stats.Failed++
		s.logger.Warn("unit failed to load", "id", u.ID, "err", err)
		s.settle(Event{Type: EventError, ID: u.ID, Message: err.Error()})
	}

	s.phase = PhaseWaiting
	if low, ok := s.buffer.Lowest(); ok {
		s.logger.Debug("waiting for gap", "expected", s.expectedNextID, "lowest", low, "buffered", s.buffer.Size())
		return
	}
	if !s.manualClear {
		s.emit(Event{Type: EventQueueEmpty})
	}
}

func (s *Scheduler) load(u Unit) error {
	if u.Err != nil {
		return u.Err
	}
	if u.Empty() {
		return ErrEmptyPayload
	}

	req := Request{Epoch: s.epoch, ID: u.ID, Payload: u.Payload}
	if err := s.player.Load(req, s.report); err != nil {
		return fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	return nil
}

func (s *Scheduler) emit(e Event) {
	if s.observer == nil {
		return
	}
	e.Time = time.Now()
	s.events.push(s.observer, e)
}

func (s *Scheduler) startProgress(epoch uint64) {
	s.stopProgress()
	stop := make(chan struct{})
	s.pollStop = stop
	go s.pollProgress(epoch, stop)
}

func (s *Scheduler) stopProgress() {
	if s.pollStop != nil {
		close(s.pollStop)
		s.pollStop = nil
	}
}

func (s *Scheduler) pollProgress(epoch uint64, stop <-chan struct{}) {
	if !s.tickProgress(epoch) {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !s.tickProgress(epoch) {
				return
			}
		}
	}
}

// tickProgress emits one progress event; false ends the poll
func (s *Scheduler) tickProgress(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhasePlaying || s.epoch != epoch || !s.player.IsPlaying() {
		return false
	}

	pos := s.player.Position()
	dur := s.player.Duration()
	ratio := 0.0
	if dur > 0 {
		ratio = float64(pos) / float64(dur)
		if ratio > 1 {
			ratio = 1
		}
	}

	s.emit(Event{
		Type:     EventProgress,
		ID:       s.current,
		Position: pos,
		Duration: dur,
		Progress: ratio,
	})
	return true
}
