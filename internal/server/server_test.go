// ABOUTME: Integration tests for the WebSocket bridge
// ABOUTME: Drives a scheduler through the producer client over httptest
package server

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/seqplay/pkg/protocol"
	"github.com/harperreed/seqplay/pkg/sequencer"
	"github.com/harperreed/seqplay/pkg/sequencer/sequencertest"
)

const waitFor = 3 * time.Second

type bridge struct {
	sched  *sequencer.Scheduler
	player *sequencertest.Player
	server *Server
	http   *httptest.Server
}

func newBridge(t *testing.T, handlers map[string]http.Handler) *bridge {
	t.Helper()

	player := sequencertest.NewAutoPlayer()
	sched := sequencer.NewScheduler(sequencer.Config{Player: player})
	srv := New(Config{Name: "test-host", Scheduler: sched, Handlers: handlers})
	sched.Subscribe(srv)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		sched.Release()
		ts.Close()
	})

	return &bridge{sched: sched, player: player, server: srv, http: ts}
}

func (b *bridge) connect(t *testing.T, id string) *protocol.Client {
	t.Helper()
	c := protocol.NewClient(protocol.Config{
		ServerAddr: strings.TrimPrefix(b.http.URL, "http://"),
		ClientID:   id,
		Name:       id,
	})
	require.NoError(t, c.Connect())
	t.Cleanup(func() { c.Close() })
	return c
}

// collect reads events until one of type last arrives, skipping progress
func collect(t *testing.T, c *protocol.Client, last string) []protocol.Event {
	t.Helper()
	var events []protocol.Event
	timeout := time.After(waitFor)
	for {
		select {
		case ev := <-c.Events:
			if ev.Type == string(sequencer.EventProgress) {
				continue
			}
			events = append(events, ev)
			if ev.Type == last {
				return events
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s; got %v", last, types(events))
			return nil
		}
	}
}

func types(events []protocol.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestHandshakeReportsSchedulerState(t *testing.T) {
	b := newBridge(t, nil)
	require.NoError(t, b.sched.ConfigureStart(5))

	c := b.connect(t, "producer")
	hello := c.ServerHello()

	assert.Equal(t, b.server.ID(), hello.ServerID)
	assert.Equal(t, "test-host", hello.Name)
	assert.Equal(t, protocol.Version, hello.Version)
	assert.Equal(t, int64(5), hello.StartPlayID)
	assert.Equal(t, int64(5), hello.ExpectedNextID)
	assert.Equal(t, "speaker", hello.OutputMode)
}

func TestSubscribeAndPlayInOrder(t *testing.T) {
	b := newBridge(t, nil)
	c := b.connect(t, "producer")

	require.NoError(t, c.Subscribe())
	events := collect(t, c, protocol.EventReady)
	require.Equal(t, []string{protocol.EventReady}, types(events))

	require.NoError(t, c.Configure(0))
	require.NoError(t, c.EnqueueBinary(1, []byte{1, 2}))
	require.NoError(t, c.Enqueue(protocol.NumericID(0), base64.StdEncoding.EncodeToString([]byte{3, 4})))

	events = collect(t, c, string(sequencer.EventQueueEmpty))
	assert.Equal(t, []string{"queued", "queued", "start", "complete", "start", "complete", "queueEmpty"}, types(events))
	assert.EqualValues(t, 1, events[0].Data["id"])
	assert.EqualValues(t, 0, events[2].Data["id"])
	assert.EqualValues(t, 1, events[4].Data["id"])

	assert.Equal(t, []int64{0, 1}, b.player.LoadedIDs())
}

func TestInvalidIDProducesErrorEvent(t *testing.T) {
	b := newBridge(t, nil)
	c := b.connect(t, "producer")
	require.NoError(t, c.Subscribe())
	collect(t, c, protocol.EventReady)

	require.NoError(t, c.Enqueue("abc", "AAAA"))

	events := collect(t, c, string(sequencer.EventError))
	assert.Equal(t, "abc", events[0].Data["id"])

	select {
	case se := <-c.Errors:
		assert.Equal(t, "invalid_id", se.Error)
	case <-time.After(waitFor):
		t.Fatal("expected server/error")
	}
}

func TestUndecodablePayloadKeepsSequence(t *testing.T) {
	b := newBridge(t, nil)
	c := b.connect(t, "producer")
	require.NoError(t, c.Subscribe())
	collect(t, c, protocol.EventReady)

	require.NoError(t, c.EnqueueBinary(1, []byte{9}))
	require.NoError(t, c.Enqueue("0", "!!! not base64 !!!"))

	events := collect(t, c, string(sequencer.EventQueueEmpty))
	assert.Equal(t, []string{"queued", "queued", "error", "start", "complete", "queueEmpty"}, types(events))
	assert.EqualValues(t, 0, events[2].Data["id"])
	assert.Contains(t, events[2].Data["message"], "decode failure")
	assert.EqualValues(t, 1, events[3].Data["id"])

	select {
	case se := <-c.Errors:
		assert.Equal(t, "decode_failure", se.Error)
	case <-time.After(waitFor):
		t.Fatal("expected server/error")
	}
}

func TestStaleIDIsSilent(t *testing.T) {
	b := newBridge(t, nil)
	c := b.connect(t, "producer")
	require.NoError(t, c.Subscribe())
	collect(t, c, protocol.EventReady)

	require.NoError(t, c.Configure(10))
	require.NoError(t, c.EnqueueBinary(3, []byte{1}))
	require.NoError(t, c.SetOutputMode("EARPIECE"))

	events := collect(t, c, string(sequencer.EventModeChanged))
	assert.Equal(t, []string{"modeChanged"}, types(events))
	assert.Equal(t, "earpiece", events[0].Data["mode"])
	assert.Empty(t, c.Errors)
	assert.EqualValues(t, 1, b.sched.Stats().Stale)
}

func TestReleaseSendsReleasedLast(t *testing.T) {
	b := newBridge(t, nil)
	c := b.connect(t, "producer")
	require.NoError(t, c.Subscribe())
	collect(t, c, protocol.EventReady)

	require.NoError(t, c.EnqueueBinary(0, []byte{1}))
	collect(t, c, string(sequencer.EventQueueEmpty))

	require.NoError(t, c.Release())
	events := collect(t, c, protocol.EventReleased)
	assert.Equal(t, protocol.EventReleased, events[len(events)-1].Type)

	require.NoError(t, c.Clear())
	select {
	case se := <-c.Errors:
		assert.Equal(t, "released", se.Error)
	case <-time.After(waitFor):
		t.Fatal("expected released error")
	}
}

func TestLatestSubscriberWins(t *testing.T) {
	b := newBridge(t, nil)
	first := b.connect(t, "first")
	second := b.connect(t, "second")

	require.NoError(t, first.Subscribe())
	collect(t, first, protocol.EventReady)
	require.NoError(t, second.Subscribe())
	collect(t, second, protocol.EventReady)

	require.NoError(t, first.EnqueueBinary(0, []byte{1}))
	collect(t, second, string(sequencer.EventQueueEmpty))

	assert.Empty(t, first.Events)
}

func TestDuplicateClientIDRejected(t *testing.T) {
	b := newBridge(t, nil)
	b.connect(t, "same")

	dup := protocol.NewClient(protocol.Config{
		ServerAddr: strings.TrimPrefix(b.http.URL, "http://"),
		ClientID:   "same",
		Name:       "dup",
	})
	err := dup.Connect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server/error")
}

func TestProtocolErrors(t *testing.T) {
	b := newBridge(t, nil)
	c := b.connect(t, "producer")

	require.NoError(t, c.Enqueue("1", ""))
	require.NoError(t, c.SetOutputMode("speaker"))
	require.NoError(t, c.EnqueueBinary(2, nil))

	// empty payloads are queued, not rejected
	require.Eventually(t, func() bool {
		return b.sched.Stats().Queued == 2
	}, waitFor, 10*time.Millisecond)
	assert.Empty(t, c.Errors)
}

func TestExtraHandlersMounted(t *testing.T) {
	b := newBridge(t, map[string]http.Handler{
		"/ping": http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("pong"))
		}),
	})

	resp, err := http.Get(b.http.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
