// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests status updates, event handling and key actions
package ui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/harperreed/seqplay/pkg/sequencer"
)

func sized(m Model) Model {
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return updated.(Model)
}

func key(m Model, k string) (Model, tea.Cmd) {
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
	return updated.(Model), cmd
}

func TestNewModel(t *testing.T) {
	model := NewModel("host", ":8928", nil)

	if model.playing {
		t.Error("expected nothing playing initially")
	}
	if model.showDebug {
		t.Error("expected showDebug to be false initially")
	}
	if model.View() != "Loading..." {
		t.Errorf("expected loading view before size, got %q", model.View())
	}
}

func TestStatusMsg(t *testing.T) {
	model := NewModel("host", "", nil)

	model.applyStatus(StatusMsg{
		Status: sequencer.Status{
			Phase:          sequencer.PhaseWaiting,
			StartPlayID:    3,
			ExpectedNextID: 5,
			Buffered:       []int64{6, 7},
			Mode:           sequencer.OutputBluetooth,
		},
		Stats:   sequencer.Stats{Queued: 1200, Completed: 2},
		Clients: []string{"feed"},
	})

	if model.status.ExpectedNextID != 5 {
		t.Errorf("expected next id 5, got %d", model.status.ExpectedNextID)
	}
	if len(model.clients) != 1 {
		t.Errorf("expected 1 client, got %d", len(model.clients))
	}

	view := sized(model).View()
	for _, want := range []string{"waiting", "bluetooth", "[5?]", "1,200"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestStatusShowsStranded(t *testing.T) {
	model := NewModel("host", "", nil)

	model.applyStatus(StatusMsg{Status: sequencer.Status{
		Phase:          sequencer.PhaseWaiting,
		ExpectedNextID: 4,
		Buffered:       []int64{1, 2, 6},
		Stranded:       2,
	}})

	view := sized(model).View()
	if !strings.Contains(view, "2 stranded below 4") {
		t.Errorf("view missing stranded count:\n%s", view)
	}

	model.applyStatus(StatusMsg{Status: sequencer.Status{Phase: sequencer.PhaseIdle, Buffered: []int64{3}}})
	if strings.Contains(sized(model).View(), "stranded") {
		t.Error("stranded note shown with nothing stranded")
	}
}

func TestEventsTrackNowPlaying(t *testing.T) {
	model := NewModel("host", "", nil)

	model.applyEvent(sequencer.Event{Type: sequencer.EventStart, ID: 4, Time: time.Now()})
	if !model.playing || model.current != 4 {
		t.Fatalf("expected #4 playing, got playing=%v current=%d", model.playing, model.current)
	}

	model.applyEvent(sequencer.Event{
		Type: sequencer.EventProgress, ID: 4,
		Position: 500 * time.Millisecond, Duration: time.Second, Progress: 0.5,
	})
	if model.ratio != 0.5 {
		t.Errorf("expected ratio 0.5, got %v", model.ratio)
	}
	if len(model.recent) != 1 {
		t.Errorf("progress should not enter recent list, got %d entries", len(model.recent))
	}

	// progress for another id is ignored
	model.applyEvent(sequencer.Event{Type: sequencer.EventProgress, ID: 9, Progress: 0.9})
	if model.ratio != 0.5 {
		t.Errorf("foreign progress changed ratio to %v", model.ratio)
	}

	model.applyEvent(sequencer.Event{Type: sequencer.EventComplete, ID: 4})
	if model.playing {
		t.Error("expected playback to stop after complete")
	}
}

func TestRecentEventsBounded(t *testing.T) {
	model := NewModel("host", "", nil)
	for i := 0; i < maxRecent+5; i++ {
		model.applyEvent(sequencer.Event{Type: sequencer.EventQueued, ID: int64(i)})
	}
	if len(model.recent) != maxRecent {
		t.Fatalf("expected %d recent events, got %d", maxRecent, len(model.recent))
	}
	if model.recent[0].ID != 5 {
		t.Errorf("expected oldest kept id 5, got %d", model.recent[0].ID)
	}
}

func TestModeChangeEvent(t *testing.T) {
	model := NewModel("host", "", nil)
	model.applyEvent(sequencer.Event{Type: sequencer.EventModeChanged, Mode: sequencer.OutputEarpiece})
	if model.status.Mode != sequencer.OutputEarpiece {
		t.Errorf("expected earpiece, got %s", model.status.Mode)
	}
}

func TestKeysSendActions(t *testing.T) {
	controls := NewControls()
	model := NewModel("host", "", controls)

	model, _ = key(model, "c")
	model, _ = key(model, "o")
	model, _ = key(model, "d")
	if !model.showDebug {
		t.Error("expected debug toggled on")
	}

	_, cmd := key(model, "q")
	if cmd == nil {
		t.Error("expected quit command")
	}

	want := []Action{ActionClear, ActionCycleMode, ActionQuit}
	for _, w := range want {
		select {
		case got := <-controls.Actions:
			if got != w {
				t.Errorf("expected action %d, got %d", w, got)
			}
		default:
			t.Fatalf("missing action %d", w)
		}
	}
}

func TestKeysWithoutControls(t *testing.T) {
	model := NewModel("host", "", nil)
	// must not panic
	key(model, "c")
	key(model, "q")
}

func TestRenderBuffered(t *testing.T) {
	tests := []struct {
		name     string
		expected int64
		ids      []int64
		contains []string
		absent   []string
	}{
		{"empty", 0, nil, []string{"empty"}, nil},
		{"contiguous", 1, []int64{1, 2}, []string{"1", "2"}, []string{"?"}},
		{"gap", 1, []int64{3, 4}, []string{"[1?]", "3"}, nil},
		{"truncated", 0, []int64{0, 1, 2, 3, 4}, []string{"+2"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderBuffered(tt.expected, tt.ids, 3)
			for _, c := range tt.contains {
				if !strings.Contains(got, c) {
					t.Errorf("expected %q in %q", c, got)
				}
			}
			for _, a := range tt.absent {
				if strings.Contains(got, a) {
					t.Errorf("unexpected %q in %q", a, got)
				}
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "--:--"},
		{1500 * time.Millisecond, "00:02"},
		{75 * time.Second, "01:15"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFeedDropsWhenFull(t *testing.T) {
	feed := NewFeed(1)
	feed.OnEvent(sequencer.Event{Type: sequencer.EventQueued, ID: 1})
	feed.OnEvent(sequencer.Event{Type: sequencer.EventQueued, ID: 2})

	if len(feed.events) != 1 {
		t.Fatalf("expected 1 pending event, got %d", len(feed.events))
	}
	if e := <-feed.events; e.ID != 1 {
		t.Errorf("expected first event kept, got %d", e.ID)
	}
}
