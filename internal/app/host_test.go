// ABOUTME: Tests for host orchestration
// ABOUTME: Runs a full host on a null output and drives it over the bridge
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/seqplay/internal/config"
	"github.com/harperreed/seqplay/pkg/audio"
	"github.com/harperreed/seqplay/pkg/audio/encode"
	"github.com/harperreed/seqplay/pkg/audio/output"
	"github.com/harperreed/seqplay/pkg/protocol"
)

func testSettings() *config.Config {
	cfg := config.Default()
	cfg.Port = 0
	cfg.MDNS = false
	cfg.TUI = false
	cfg.ExitOnRelease = true
	cfg.Output.Device = "null"
	cfg.Journal.Path = ":memory:"
	return cfg
}

func startHost(t *testing.T, settings *config.Config) (*Host, string, <-chan error) {
	t.Helper()

	h, err := New(Config{Settings: settings, Output: output.NewNull(false)})
	require.NoError(t, err)

	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { done <- h.Run(ctx) }()

	select {
	case <-h.Server().Ready():
	case <-time.After(3 * time.Second):
		t.Fatal("host did not become ready")
	}

	port := h.Server().Addr().(*net.TCPAddr).Port
	return h, fmt.Sprintf("127.0.0.1:%d", port), done
}

func toneWAV(t *testing.T) []byte {
	t.Helper()
	clip := encode.Tone(440, 100*time.Millisecond, audio.Format{Codec: audio.CodecPCM, SampleRate: 16000, Channels: 1, BitDepth: 16})
	data, err := encode.EncodeWAV(clip)
	require.NoError(t, err)
	return data
}

func waitEvent(t *testing.T, c *protocol.Client, eventType string) []string {
	t.Helper()
	var seen []string
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-c.Events:
			if ev.Type == "progress" {
				continue
			}
			seen = append(seen, ev.Type)
			if ev.Type == eventType {
				return seen
			}
		case <-timeout:
			t.Fatalf("no %s event; saw %v", eventType, seen)
		}
	}
}

func TestNewRejectsInvalidSettings(t *testing.T) {
	settings := testSettings()
	settings.Output.Volume = 300

	_, err := New(Config{Settings: settings, Output: output.NewNull(false)})
	assert.Error(t, err)
}

func TestHostPlaysAndExitsOnRelease(t *testing.T) {
	h, addr, done := startHost(t, testSettings())

	c := protocol.NewClient(protocol.Config{ServerAddr: addr, ClientID: "feed", Name: "feed"})
	require.NoError(t, c.Connect())
	defer c.Close()

	require.NoError(t, c.Subscribe())
	waitEvent(t, c, protocol.EventReady)

	wav := toneWAV(t)
	require.NoError(t, c.EnqueueBinary(1, wav))
	require.NoError(t, c.EnqueueBinary(0, wav))

	seen := waitEvent(t, c, "queueEmpty")
	assert.Equal(t, []string{"queued", "queued", "start", "complete", "start", "complete", "queueEmpty"}, seen)
	assert.EqualValues(t, 2, h.Scheduler().Stats().Completed)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `seqplay_events_total{type="complete"} 2`)

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/history?limit=100")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var entries []map[string]interface{}
		if json.NewDecoder(resp.Body).Decode(&entries) != nil {
			return false
		}
		return len(entries) >= 7
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, c.Release())
	waitEvent(t, c, protocol.EventReleased)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("host did not exit after release")
	}
}

func TestHostStopsOnContextCancel(t *testing.T) {
	settings := testSettings()
	settings.ExitOnRelease = false
	settings.Journal.Enabled = false
	settings.Metrics.Enabled = false

	h, err := New(Config{Settings: settings, Output: output.NewNull(false)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	<-h.Server().Ready()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("host did not stop")
	}

	_, err = h.Scheduler().SetOutputMode("speaker")
	assert.Error(t, err, "scheduler released on shutdown")
}

func TestInitialOutputMode(t *testing.T) {
	settings := testSettings()
	settings.Output.Mode = "Bluetooth"

	h, err := New(Config{Settings: settings, Output: output.NewNull(false)})
	require.NoError(t, err)
	defer h.shutdown()

	assert.Equal(t, "bluetooth", string(h.Scheduler().Status().Mode))
}
