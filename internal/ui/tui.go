// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and feeds it scheduler events
package ui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/harperreed/seqplay/pkg/sequencer"
)

// Action is a request from the keyboard to the host
type Action int

const (
	ActionClear Action = iota
	ActionCycleMode
	ActionQuit
)

// Controls carries keyboard actions out of the TUI
type Controls struct {
	Actions chan Action
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{Actions: make(chan Action, 10)}
}

func (c *Controls) send(a Action) {
	if c == nil {
		return
	}
	select {
	case c.Actions <- a:
	default:
	}
}

// NewModel creates a new TUI model
func NewModel(hostName, addr string, controls *Controls) Model {
	return Model{
		hostName: hostName,
		addr:     addr,
		controls: controls,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

// Run creates the TUI program; the caller runs it
func Run(model Model) *tea.Program {
	return tea.NewProgram(model, tea.WithAltScreen())
}

// Feed is a sequencer.Observer that hands events to a running program
// without blocking the scheduler's dispatcher
type Feed struct {
	events chan sequencer.Event
}

// NewFeed creates a feed with room for size pending events
func NewFeed(size int) *Feed {
	return &Feed{events: make(chan sequencer.Event, size)}
}

// OnEvent queues e, dropping it when the TUI has fallen behind
func (f *Feed) OnEvent(e sequencer.Event) {
	select {
	case f.events <- e:
	default:
	}
}

// Snapshot reports the state shown in the status panel
type Snapshot func() StatusMsg

// Pump forwards events and periodic snapshots to p until ctx is done
func (f *Feed) Pump(ctx context.Context, p *tea.Program, snapshot Snapshot, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	p.Send(snapshot())
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-f.events:
			p.Send(EventMsg(e))
		case <-ticker.C:
			p.Send(snapshot())
		}
	}
}
