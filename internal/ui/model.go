// ABOUTME: Bubbletea model for the host TUI
// ABOUTME: Shows sequencing state, now playing, counters and recent events
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/harperreed/seqplay/pkg/sequencer"
)

const maxRecent = 8

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	gapStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
)

// Model represents the TUI state
type Model struct {
	hostName string
	addr     string

	status  sequencer.Status
	stats   sequencer.Stats
	clients []string

	// now playing, from events
	playing  bool
	current  int64
	position time.Duration
	duration time.Duration
	ratio    float64

	recent    []sequencer.Event
	showDebug bool
	quitting  bool

	bar      progress.Model
	controls *Controls

	width  int
	height int
}

// StatusMsg carries a periodic scheduler snapshot
type StatusMsg struct {
	Status  sequencer.Status
	Stats   sequencer.Stats
	Clients []string
}

// EventMsg carries one scheduler event
type EventMsg sequencer.Event

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = min(max(msg.Width-20, 10), 60)
	case StatusMsg:
		m.applyStatus(msg)
	case EventMsg:
		m.applyEvent(sequencer.Event(msg))
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderSequence())
	b.WriteString(m.renderNowPlaying())
	b.WriteString(m.renderStats())
	b.WriteString(m.renderRecent())
	if m.showDebug {
		b.WriteString(m.renderDebug())
	}
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("seqplay")
	if m.hostName != "" {
		title += dimStyle.Render("  " + m.hostName)
	}
	if m.addr != "" {
		title += dimStyle.Render(" @ " + m.addr)
	}
	return title + "\n\n"
}

func (m Model) renderSequence() string {
	var b strings.Builder
	field(&b, "Phase", m.status.Phase.String())
	field(&b, "Start", fmt.Sprintf("%d", m.status.StartPlayID))
	field(&b, "Next", fmt.Sprintf("%d", m.status.ExpectedNextID))
	field(&b, "Output", string(m.status.Mode))
	field(&b, "Producers", fmt.Sprintf("%d", len(m.clients)))

	b.WriteString(labelStyle.Render("Buffered: "))
	b.WriteString(renderBuffered(m.status.ExpectedNextID, m.status.Buffered, 12))
	if m.status.Stranded > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  (%d stranded below %d)", m.status.Stranded, m.status.ExpectedNextID)))
	}
	b.WriteString("\n\n")
	return b.String()
}

func (m Model) renderNowPlaying() string {
	if !m.playing {
		return headerStyle.Render("Now Playing") + "\n" + dimStyle.Render("  nothing") + "\n\n"
	}

	s := headerStyle.Render(fmt.Sprintf("Now Playing: #%d", m.current)) + "\n"
	s += "  " + m.bar.ViewAs(m.ratio) + "\n"
	s += "  " + valueStyle.Render(fmt.Sprintf("%s / %s", formatDuration(m.position), formatDuration(m.duration))) + "\n\n"
	return s
}

func (m Model) renderStats() string {
	return headerStyle.Render("Stats") + "\n" + valueStyle.Render(fmt.Sprintf(
		"  queued %s  played %s  failed %s  stale %s  invalid %s",
		humanize.Comma(m.stats.Queued),
		humanize.Comma(m.stats.Completed),
		humanize.Comma(m.stats.Failed),
		humanize.Comma(m.stats.Stale),
		humanize.Comma(m.stats.Invalid),
	)) + "\n\n"
}

func (m Model) renderRecent() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Recent Events"))
	b.WriteString("\n")
	if len(m.recent) == 0 {
		b.WriteString(dimStyle.Render("  none yet"))
		b.WriteString("\n")
	}
	for i := len(m.recent) - 1; i >= 0; i-- {
		b.WriteString("  ")
		b.WriteString(describe(m.recent[i]))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderDebug() string {
	return dimStyle.Render(fmt.Sprintf(
		"DEBUG epoch=%d discarded=%d started=%d buffered=%v\n\n",
		m.status.Epoch, m.stats.Discarded, m.stats.Started, m.status.Buffered,
	))
}

func (m Model) renderHelp() string {
	return dimStyle.Render("c:Clear  o:Output mode  d:Debug  q:Quit")
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		m.controls.send(ActionQuit)
		return m, tea.Quit
	case "c":
		m.controls.send(ActionClear)
	case "o":
		m.controls.send(ActionCycleMode)
	case "d":
		m.showDebug = !m.showDebug
	}
	return m, nil
}

func (m *Model) applyStatus(msg StatusMsg) {
	m.status = msg.Status
	m.stats = msg.Stats
	m.clients = msg.Clients

	if msg.Status.Phase != sequencer.PhasePlaying {
		m.playing = false
	}
}

func (m *Model) applyEvent(e sequencer.Event) {
	switch e.Type {
	case sequencer.EventStart:
		m.playing = true
		m.current = e.ID
		m.position, m.duration, m.ratio = 0, 0, 0
	case sequencer.EventProgress:
		if e.ID == m.current {
			m.position = e.Position
			m.duration = e.Duration
			m.ratio = e.Progress
		}
		// too frequent for the recent list
		return
	case sequencer.EventComplete, sequencer.EventError:
		if e.ID == m.current {
			m.playing = false
		}
	case sequencer.EventQueueEmpty:
		m.playing = false
	case sequencer.EventModeChanged:
		m.status.Mode = e.Mode
	}

	m.recent = append(m.recent, e)
	if len(m.recent) > maxRecent {
		m.recent = m.recent[len(m.recent)-maxRecent:]
	}
}

func field(b *strings.Builder, label, value string) {
	b.WriteString(labelStyle.Render(label + ": "))
	b.WriteString(valueStyle.Render(value))
	b.WriteString("\n")
}

// renderBuffered lists up to limit pending ids and marks a missing expected id
func renderBuffered(expected int64, ids []int64, limit int) string {
	if len(ids) == 0 {
		return dimStyle.Render("empty")
	}

	parts := make([]string, 0, limit+2)
	if ids[0] != expected {
		parts = append(parts, gapStyle.Render(fmt.Sprintf("[%d?]", expected)))
	}
	for i, id := range ids {
		if i == limit {
			parts = append(parts, dimStyle.Render(fmt.Sprintf("+%d", len(ids)-limit)))
			break
		}
		parts = append(parts, valueStyle.Render(fmt.Sprintf("%d", id)))
	}
	return strings.Join(parts, " ")
}

func describe(e sequencer.Event) string {
	when := dimStyle.Render(humanize.Time(e.Time))
	switch e.Type {
	case sequencer.EventError:
		id := fmt.Sprintf("%d", e.ID)
		if e.Invalid {
			id = fmt.Sprintf("%q", e.RawID)
		}
		return errorStyle.Render(fmt.Sprintf("error %s: %s", id, e.Message)) + " " + when
	case sequencer.EventQueueEmpty:
		return valueStyle.Render("queue empty") + " " + when
	case sequencer.EventModeChanged:
		return valueStyle.Render("output "+string(e.Mode)) + " " + when
	default:
		return valueStyle.Render(fmt.Sprintf("%s #%d (queue %d)", e.Type, e.ID, e.QueueSize)) + " " + when
	}
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "--:--"
	}
	d = d.Round(time.Second)
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
