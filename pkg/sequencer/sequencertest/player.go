// ABOUTME: Test doubles for the sequencing core
// ABOUTME: Scriptable Player and an event-recording Observer
// Package sequencertest provides a scriptable Player and a recording
// Observer for exercising sequencer.Scheduler without audio hardware.
package sequencertest

import (
	"errors"
	"sync"
	"time"

	"github.com/harperreed/seqplay/pkg/sequencer"
)

// Player is a fake sequencer.Player.
//
// In manual mode (NewPlayer) the test drives every outcome with Prepare,
// Complete and Fail. In auto mode (NewAutoPlayer) each load prepares and
// completes on its own goroutines, failing ids listed in FailIDs.
type Player struct {
	mu       sync.Mutex
	auto     bool
	current  *load
	loads    []sequencer.Request
	playing  bool
	stops    int
	position time.Duration
	duration time.Duration

	// LoadErr is returned synchronously by the next Load, then cleared
	LoadErr error
	// StartErr is returned by every Start while set
	StartErr error
	// FailIDs makes auto mode fail these ids during prepare
	FailIDs map[int64]error
}

type load struct {
	req    sequencer.Request
	report func(sequencer.Result)
}

// NewPlayer creates a manually driven fake
func NewPlayer() *Player {
	return &Player{duration: time.Second}
}

// NewAutoPlayer creates a fake that prepares and completes by itself
func NewAutoPlayer() *Player {
	return &Player{auto: true, duration: time.Second, FailIDs: map[int64]error{}}
}

// Load records the request
func (p *Player) Load(req sequencer.Request, report func(sequencer.Result)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.LoadErr != nil {
		err := p.LoadErr
		p.LoadErr = nil
		return err
	}

	p.current = &load{req: req, report: report}
	p.loads = append(p.loads, req)
	p.playing = false
	p.position = 0

	if p.auto {
		failErr := p.FailIDs[req.ID]
		go func() {
			if failErr != nil {
				report(sequencer.Result{Epoch: req.Epoch, Kind: sequencer.ResultFailed, Err: failErr})
				return
			}
			report(sequencer.Result{Epoch: req.Epoch, Kind: sequencer.ResultPrepared})
		}()
	}
	return nil
}

// Start marks the current load as playing
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.StartErr != nil {
		return p.StartErr
	}
	if p.current == nil {
		return errors.New("nothing loaded")
	}
	p.playing = true

	if p.auto {
		l := p.current
		go l.report(sequencer.Result{Epoch: l.req.Epoch, Kind: sequencer.ResultCompleted})
	}
	return nil
}

// Stop halts playback. The last load is kept so tests can deliver late results.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	p.stops++
}

// IsPlaying reports whether Start was called since the last Load or Stop
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Position returns the scripted position
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// Duration returns the scripted duration
func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

// SetPosition scripts what Position and Duration return
func (p *Player) SetPosition(pos, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = pos
	p.duration = dur
}

// Prepare reports ResultPrepared for the most recent load
func (p *Player) Prepare() {
	p.deliver(sequencer.ResultPrepared, nil)
}

// Complete reports ResultCompleted for the most recent load
func (p *Player) Complete() {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
	p.deliver(sequencer.ResultCompleted, nil)
}

// Fail reports ResultFailed for the most recent load
func (p *Player) Fail(err error) {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
	p.deliver(sequencer.ResultFailed, err)
}

// ReportEpoch delivers an arbitrary result through the most recent report
// callback, for simulating late results from an older session
func (p *Player) ReportEpoch(epoch uint64, kind sequencer.ResultKind) {
	p.mu.Lock()
	l := p.current
	p.mu.Unlock()
	if l == nil {
		return
	}
	l.report(sequencer.Result{Epoch: epoch, Kind: kind})
}

func (p *Player) deliver(kind sequencer.ResultKind, err error) {
	p.mu.Lock()
	l := p.current
	p.mu.Unlock()
	if l == nil {
		return
	}
	l.report(sequencer.Result{Epoch: l.req.Epoch, Kind: kind, Err: err})
}

// Loads returns every request seen so far
func (p *Player) Loads() []sequencer.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]sequencer.Request, len(p.loads))
	copy(out, p.loads)
	return out
}

// LoadedIDs returns the ids of every request seen so far, in order
func (p *Player) LoadedIDs() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]int64, 0, len(p.loads))
	for _, req := range p.loads {
		ids = append(ids, req.ID)
	}
	return ids
}

// Current returns the most recent request
func (p *Player) Current() (sequencer.Request, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return sequencer.Request{}, false
	}
	return p.current.req, true
}

// Stops returns how many times Stop was called
func (p *Player) Stops() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}
