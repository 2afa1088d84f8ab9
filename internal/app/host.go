// ABOUTME: Host application orchestration
// ABOUTME: Wires output, engine, scheduler, bridge, metrics, journal and TUI
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/harperreed/seqplay/internal/config"
	"github.com/harperreed/seqplay/internal/journal"
	"github.com/harperreed/seqplay/internal/metrics"
	"github.com/harperreed/seqplay/internal/player"
	"github.com/harperreed/seqplay/internal/server"
	"github.com/harperreed/seqplay/internal/ui"
	"github.com/harperreed/seqplay/pkg/audio"
	"github.com/harperreed/seqplay/pkg/audio/output"
	"github.com/harperreed/seqplay/pkg/sequencer"
)

const statusInterval = 250 * time.Millisecond

// Config holds host wiring options
type Config struct {
	Settings *config.Config

	// Output overrides the device named in Settings
	Output output.Output

	Logger *log.Logger
}

// Host owns every long-lived component of a running player
type Host struct {
	settings *config.Config
	logger   *log.Logger

	out     output.Output
	engine  *player.Engine
	router  *player.Router
	sched   *sequencer.Scheduler
	metrics *metrics.Metrics
	journal *journal.Journal
	server  *server.Server

	feed     *ui.Feed
	controls *ui.Controls
}

// New builds the host. Nothing runs until Run.
func New(cfg Config) (*Host, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	h := &Host{settings: settings, logger: logger}

	out := cfg.Output
	if out == nil {
		out = newOutput(settings.Output.Device, logger)
	}
	if vc, ok := out.(output.VolumeControl); ok {
		vc.SetVolume(settings.Output.Volume)
	}
	h.out = out

	engine, err := player.New(player.Config{
		Output:     out,
		SampleRate: settings.Output.SampleRate,
		Channels:   settings.Output.Channels,
		RawFormat: audio.Format{
			Codec:      audio.CodecPCM,
			SampleRate: settings.Raw.SampleRate,
			Channels:   settings.Raw.Channels,
			BitDepth:   settings.Raw.BitDepth,
		},
		Logger: logger.WithPrefix("player"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	h.engine = engine

	// a desktop host has one physical output
	h.router = player.NewRouter(logger.WithPrefix("router"))

	h.sched = sequencer.NewScheduler(sequencer.Config{
		Player:           engine,
		Router:           h.router,
		StartPlayID:      settings.StartPlayID,
		ProgressInterval: settings.ProgressInterval(),
		Logger:           logger.WithPrefix("sequencer"),
	})

	handlers := map[string]http.Handler{}

	if settings.Metrics.Enabled {
		h.metrics = metrics.New()
		handlers["/metrics"] = h.metrics.Handler()
	}

	if settings.Journal.Enabled {
		path, err := settings.JournalPath()
		if err != nil {
			h.closeResources()
			return nil, fmt.Errorf("journal path: %w", err)
		}
		j, err := journal.Open(path, journal.Options{
			Progress: settings.Journal.Progress,
			Logger:   logger.WithPrefix("journal"),
		})
		if err != nil {
			h.closeResources()
			return nil, err
		}
		h.journal = j
		handlers["/history"] = j.Handler()
	}

	h.server = server.New(server.Config{
		Port:       settings.Port,
		Name:       settings.Name,
		EnableMDNS: settings.MDNS,
		Scheduler:  h.sched,
		Handlers:   handlers,
		Logger:     logger.WithPrefix("server"),
	})

	if settings.TUI {
		h.feed = ui.NewFeed(256)
		h.controls = ui.NewControls()
	}

	h.sched.Subscribe(sequencer.Tee(h.observers()...))

	if _, err := h.sched.SetOutputMode(settings.Output.Mode); err != nil {
		h.closeResources()
		return nil, err
	}

	return h, nil
}

func newOutput(device string, logger *log.Logger) output.Output {
	if device == "null" {
		return output.NewNull(true)
	}
	return output.NewOto(logger.WithPrefix("output"))
}

// observers lists the local taps followed by the remote subscriber
func (h *Host) observers() []sequencer.Observer {
	var list []sequencer.Observer
	if h.metrics != nil {
		list = append(list, h.metrics)
	}
	if h.journal != nil {
		list = append(list, h.journal)
	}
	if h.feed != nil {
		list = append(list, h.feed)
	}
	return append(list, h.server)
}

// Scheduler returns the host's scheduler
func (h *Host) Scheduler() *sequencer.Scheduler {
	return h.sched
}

// Server returns the WebSocket bridge
func (h *Host) Server() *server.Server {
	return h.server
}

// Run serves until ctx is cancelled, the TUI quits, the server fails, or
// (with exit_on_release) the scheduler is released
func (h *Host) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- h.server.Start()
	}()

	select {
	case <-h.server.Ready():
	case err := <-serverErr:
		h.shutdown()
		return err
	}
	h.logger.Info("Host ready", "name", h.settings.Name, "addr", h.server.Addr().String(), "start", h.settings.StartPlayID)

	if h.metrics != nil {
		go h.metrics.Poll(h.sched, time.Second, ctx.Done())
	}

	var tuiDone <-chan struct{}
	if h.feed != nil {
		tuiDone = h.runTUI(ctx)
	}

	var released <-chan struct{}
	if h.settings.ExitOnRelease {
		released = h.server.Released()
	}

	var err error
	select {
	case <-ctx.Done():
		h.logger.Info("Shutdown requested")
	case <-tuiDone:
		h.logger.Info("TUI quit requested")
	case <-released:
		h.logger.Info("Scheduler released, exiting")
	case err = <-serverErr:
		h.logger.Error("Server stopped", "err", err)
	}

	cancel()
	h.server.Stop()
	if err == nil {
		err = <-serverErr
	}
	h.shutdown()
	return err
}

// runTUI starts the program and its action loop; the channel closes on quit
func (h *Host) runTUI(ctx context.Context) <-chan struct{} {
	prog := ui.Run(ui.NewModel(h.settings.Name, h.server.Addr().String(), h.controls))
	done := make(chan struct{})

	go func() {
		defer close(done)
		if _, err := prog.Run(); err != nil {
			h.logger.Error("TUI error", "err", err)
		}
	}()

	go h.feed.Pump(ctx, prog, h.snapshot, statusInterval)
	go h.handleActions(ctx, prog)

	return done
}

func (h *Host) snapshot() ui.StatusMsg {
	return ui.StatusMsg{
		Status:  h.sched.Status(),
		Stats:   h.sched.Stats(),
		Clients: h.server.Clients(),
	}
}

func (h *Host) handleActions(ctx context.Context, prog *tea.Program) {
	for {
		select {
		case <-ctx.Done():
			prog.Quit()
			return
		case a := <-h.controls.Actions:
			switch a {
			case ui.ActionClear:
				if err := h.sched.Clear(); err != nil {
					h.logger.Warn("Clear failed", "err", err)
				}
			case ui.ActionCycleMode:
				next := h.sched.Status().Mode.Next()
				if _, err := h.sched.SetOutputMode(string(next)); err != nil {
					h.logger.Warn("Output mode change failed", "err", err)
				}
			case ui.ActionQuit:
				return
			}
		}
	}
}

func (h *Host) shutdown() {
	if err := h.sched.Release(); err != nil && !errors.Is(err, sequencer.ErrReleased) {
		h.logger.Warn("Release failed", "err", err)
	}

	select {
	case <-h.sched.Done():
	case <-time.After(2 * time.Second):
		h.logger.Warn("Timed out waiting for event delivery")
	}

	h.closeResources()
	h.logger.Info("Host stopped")
}

// closeResources releases what New opened
func (h *Host) closeResources() {
	if h.journal != nil {
		if err := h.journal.Close(); err != nil {
			h.logger.Warn("Journal close failed", "err", err)
		}
	}
	if h.engine != nil {
		if err := h.engine.Close(); err != nil {
			h.logger.Warn("Engine close failed", "err", err)
		}
	} else if h.out != nil {
		h.out.Close()
	}
}
