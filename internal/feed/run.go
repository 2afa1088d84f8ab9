// ABOUTME: Producer session against a seqplay host
// ABOUTME: Submits units over the protocol client and prints the host's events
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/harperreed/seqplay/internal/discovery"
	"github.com/harperreed/seqplay/pkg/payload"
	"github.com/harperreed/seqplay/pkg/protocol"
	"github.com/harperreed/seqplay/pkg/sequencer"
)

// ReleaseTimeout bounds the wait for the host's released event
const ReleaseTimeout = 5 * time.Second

// Options configures one producer session
type Options struct {
	// Addr is host:port; empty means discover a host over mDNS
	Addr          string
	LookupTimeout time.Duration
	ClientID      string
	Name          string

	Units []Unit
	// Watcher supplies more units until it closes; the session does not
	// finish on queueEmpty while it is open
	Watcher *Watcher

	// Configure sends the start id before any unit
	Configure bool
	Start     int64
	Binary    bool
	Window    int
	Seed      int64
	Interval  time.Duration
	Release   bool
	Progress  bool

	Out    io.Writer
	Logger *log.Logger
}

// session tracks which submitted ids have not reached a terminal event
type session struct {
	mu      sync.Mutex
	pending map[int64]bool
	empty   bool
}

func (s *session) sent(id int64) {
	s.mu.Lock()
	s.pending[id] = true
	s.empty = false
	s.mu.Unlock()
}

func (s *session) observe(ev protocol.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch sequencer.EventType(ev.Type) {
	case sequencer.EventQueued:
		s.empty = false
	case sequencer.EventStart:
		s.empty = false
		// anything below a started id can never play
		if id, ok := EventID(ev); ok {
			for p := range s.pending {
				if p < id {
					delete(s.pending, p)
				}
			}
		}
	case sequencer.EventComplete, sequencer.EventError:
		if id, ok := EventID(ev); ok {
			delete(s.pending, id)
		}
	case sequencer.EventQueueEmpty:
		s.empty = true
	}
}

func (s *session) idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.empty && len(s.pending) == 0
}

// Run connects to a host, submits every unit and prints events until the
// host reports an empty queue with nothing outstanding
func Run(ctx context.Context, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("feed")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	addr := opts.Addr
	if addr == "" {
		timeout := opts.LookupTimeout
		if timeout <= 0 {
			timeout = discovery.DefaultBrowseTimeout
		}
		logger.Info("Looking for a host", "timeout", timeout)
		host, err := discovery.NewManager(discovery.Config{Logger: logger}).Lookup(timeout)
		if err != nil {
			return err
		}
		addr = host.Addr()
		logger.Info("Found host", "name", host.Name, "addr", addr)
	}

	client := protocol.NewClient(protocol.Config{
		ServerAddr: addr,
		ClientID:   opts.ClientID,
		Name:       opts.Name,
		Logger:     logger,
	})
	if err := client.ConnectContext(ctx); err != nil {
		return err
	}
	defer client.Close()

	if err := client.Subscribe(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	floor := client.ServerHello().ExpectedNextID
	if opts.Configure {
		if err := client.Configure(opts.Start); err != nil {
			return fmt.Errorf("configure: %w", err)
		}
		floor = opts.Start
	}

	units := make([]Unit, 0, len(opts.Units))
	for _, u := range opts.Units {
		if u.ID < floor {
			logger.Warn("Skipping unit below the host's next id", "id", u.ID, "next", floor)
			continue
		}
		units = append(units, u)
	}
	if gaps := Gaps(units, floor); len(gaps) > 0 {
		logger.Warn("Ids missing from the sequence; playback stops at the first", "missing", gaps)
	}
	units = Shuffle(units, opts.Window, rand.New(rand.NewSource(opts.Seed)))

	s := &session{pending: make(map[int64]bool)}
	sendErr := make(chan error, 1)
	go func() {
		sendErr <- send(ctx, client, s, units, opts, logger)
	}()

	sendDone := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-client.Done():
			return errors.New("connection to host closed")

		case err := <-sendErr:
			if err != nil {
				return err
			}
			sendDone = true
			sendErr = nil
			logger.Info("All units sent")
			if len(units) == 0 && opts.Watcher == nil {
				return finish(client, opts, out, logger)
			}
			if s.idle() {
				return finish(client, opts, out, logger)
			}

		case se := <-client.Errors:
			fmt.Fprintf(out, "server/error %s: %s\n", se.Error, se.Message)

		case ev := <-client.Events:
			s.observe(ev)
			if ev.Type != string(sequencer.EventProgress) || opts.Progress {
				fmt.Fprintln(out, FormatEvent(ev))
			}
			if sendDone && s.idle() {
				return finish(client, opts, out, logger)
			}
		}
	}
}

func send(ctx context.Context, client *protocol.Client, s *session, units []Unit, opts Options, logger *log.Logger) error {
	submit := func(u Unit) error {
		s.sent(u.ID)
		var err error
		if opts.Binary {
			err = client.EnqueueBinary(u.ID, u.Data)
		} else {
			err = client.Enqueue(protocol.NumericID(u.ID), payload.Encode(u.Data, u.Mime))
		}
		if err != nil {
			return fmt.Errorf("send unit %d: %w", u.ID, err)
		}
		logger.Debug("Sent unit", "id", u.ID, "name", u.Name, "size", humanize.Bytes(uint64(len(u.Data))))
		return nil
	}

	for i, u := range units {
		if i > 0 && opts.Interval > 0 {
			select {
			case <-time.After(opts.Interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := submit(u); err != nil {
			return err
		}
	}

	if opts.Watcher == nil {
		return nil
	}
	for {
		select {
		case u, ok := <-opts.Watcher.Units():
			if !ok {
				return nil
			}
			if err := submit(u); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func finish(client *protocol.Client, opts Options, out io.Writer, logger *log.Logger) error {
	if !opts.Release {
		return nil
	}
	if err := client.Release(); err != nil {
		return fmt.Errorf("release: %w", err)
	}

	timeout := time.After(ReleaseTimeout)
	for {
		select {
		case ev := <-client.Events:
			if ev.Type != string(sequencer.EventProgress) || opts.Progress {
				fmt.Fprintln(out, FormatEvent(ev))
			}
			if ev.Type == protocol.EventReleased {
				return nil
			}
		case se := <-client.Errors:
			fmt.Fprintf(out, "server/error %s: %s\n", se.Error, se.Message)
		case <-client.Done():
			return nil
		case <-timeout:
			logger.Warn("Host did not confirm release", "timeout", ReleaseTimeout)
			return nil
		}
	}
}

// EventID reads the numeric id of an event, if it has one
func EventID(ev protocol.Event) (int64, bool) {
	switch v := ev.Data["id"].(type) {
	case float64:
		return int64(v), true
	case json.Number:
		id, err := v.Int64()
		return id, err == nil
	case int64:
		return v, true
	default:
		return 0, false
	}
}

// FormatEvent renders an event as "type key=value ..." with sorted keys
func FormatEvent(ev protocol.Event) string {
	keys := make([]string, 0, len(ev.Data))
	for k := range ev.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(ev.Type)
	for _, k := range keys {
		v := ev.Data[k]
		if f, ok := v.(float64); ok && f == float64(int64(f)) {
			v = int64(f)
		}
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	return b.String()
}
