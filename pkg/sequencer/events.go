// ABOUTME: Lifecycle events and their ordered delivery to one observer
// ABOUTME: A single dispatcher goroutine delivers events outside the scheduler lock
package sequencer

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// EventType names a lifecycle notification
type EventType string

const (
	EventQueued      EventType = "queued"
	EventStart       EventType = "start"
	EventProgress    EventType = "progress"
	EventComplete    EventType = "complete"
	EventError       EventType = "error"
	EventQueueEmpty  EventType = "queueEmpty"
	EventModeChanged EventType = "modeChanged"
)

// Event is one notification. Fields not used by a type are zero.
type Event struct {
	Type      EventType
	ID        int64
	RawID     string // boundary text of an id that could not be parsed
	Invalid   bool   // the error refers to RawID rather than ID
	QueueSize int
	Position  time.Duration
	Duration  time.Duration
	Progress  float64
	Message   string
	Mode      OutputMode
	Time      time.Time
}

// Data returns the event payload in its wire shape
func (e Event) Data() map[string]interface{} {
	switch e.Type {
	case EventQueued, EventStart, EventComplete:
		return map[string]interface{}{"id": e.ID, "queueSize": e.QueueSize}
	case EventProgress:
		return map[string]interface{}{
			"id":         e.ID,
			"positionMs": e.Position.Milliseconds(),
			"durationMs": e.Duration.Milliseconds(),
			"progress":   e.Progress,
		}
	case EventError:
		if e.Invalid {
			return map[string]interface{}{"id": e.RawID, "message": e.Message}
		}
		return map[string]interface{}{"id": e.ID, "message": e.Message}
	case EventModeChanged:
		return map[string]interface{}{"mode": string(e.Mode)}
	default:
		return map[string]interface{}{}
	}
}

// Observer receives events. It may call back into the Scheduler.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

// OnEvent calls f(e)
func (f ObserverFunc) OnEvent(e Event) { f(e) }

// Tee fans one event stream out to several observers in order. Nil entries are skipped.
func Tee(observers ...Observer) Observer {
	var list []Observer
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return ObserverFunc(func(e Event) {
		for _, o := range list {
			o.OnEvent(e)
		}
	})
}

type delivery struct {
	observer Observer
	event    Event
}

// dispatcher delivers queued events in emission order on its own goroutine
type dispatcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []delivery
	closed bool
	done   chan struct{}
	logger *log.Logger
}

func newDispatcher(logger *log.Logger) *dispatcher {
	d := &dispatcher{
		done:   make(chan struct{}),
		logger: logger,
	}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *dispatcher) push(o Observer, e Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, delivery{observer: o, event: e})
	d.cond.Signal()
}

// close stops accepting events; already queued events are still delivered
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
}

func (d *dispatcher) run() {
	defer close(d.done)

	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 && d.closed {
			d.mu.Unlock()
			return
		}
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()

		for _, item := range batch {
			d.deliver(item)
		}
	}
}

func (d *dispatcher) deliver(item delivery) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("observer panicked", "event", item.event.Type, "panic", r)
		}
	}()
	item.observer.OnEvent(item.event)
}
