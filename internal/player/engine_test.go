// ABOUTME: Tests for the playback engine
// ABOUTME: Runs real decoding against a null output under the scheduler
package player

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/seqplay/pkg/audio"
	"github.com/harperreed/seqplay/pkg/audio/encode"
	"github.com/harperreed/seqplay/pkg/audio/output"
	"github.com/harperreed/seqplay/pkg/sequencer"
	"github.com/harperreed/seqplay/pkg/sequencer/sequencertest"
)

func wavTone(t *testing.T, freq float64) []byte {
	t.Helper()
	clip := encode.Tone(freq, 100*time.Millisecond, audio.Format{SampleRate: 16000, Channels: 1, BitDepth: 16})
	data, err := encode.EncodeWAV(clip)
	require.NoError(t, err)
	return data
}

func newEngine(t *testing.T, out output.Output) *Engine {
	t.Helper()
	e, err := New(Config{Output: out})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

type resultLog struct {
	mu      sync.Mutex
	results []sequencer.Result
}

func (l *resultLog) report(r sequencer.Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, r)
}

func (l *resultLog) kinds() []sequencer.ResultKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	var kinds []sequencer.ResultKind
	for _, r := range l.results {
		kinds = append(kinds, r.Kind)
	}
	return kinds
}

func (l *resultLog) last() sequencer.Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.results[len(l.results)-1]
}

func TestEngineRequiresOutput(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestEnginePlaysUnit(t *testing.T) {
	out := output.NewNull(false)
	e := newEngine(t, out)
	log := &resultLog{}

	require.NoError(t, e.Load(sequencer.Request{Epoch: 7, ID: 1, Payload: wavTone(t, 440)}, log.report))
	require.Eventually(t, func() bool { return len(log.kinds()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, sequencer.ResultPrepared, log.last().Kind)
	assert.Equal(t, uint64(7), log.last().Epoch)
	assert.InDelta(t, 100*time.Millisecond, e.Duration(), float64(time.Millisecond))

	require.NoError(t, e.Start())
	require.Eventually(t, func() bool { return len(log.kinds()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, sequencer.ResultCompleted, log.last().Kind)
	assert.Equal(t, e.Duration(), e.Position())
	assert.False(t, e.IsPlaying())
	// 100ms at the 48kHz output rate
	assert.InDelta(t, 4800, out.Frames(), 5)
}

func TestEngineDecodeFailure(t *testing.T) {
	e := newEngine(t, output.NewNull(false))
	log := &resultLog{}

	require.NoError(t, e.Load(sequencer.Request{Epoch: 1, ID: 1, Payload: []byte("RIFF\x00\x00\x00\x00WAVE")}, log.report))
	require.Eventually(t, func() bool { return len(log.kinds()) == 1 }, time.Second, 5*time.Millisecond)

	r := log.last()
	assert.Equal(t, sequencer.ResultFailed, r.Kind)
	assert.True(t, errors.Is(r.Err, sequencer.ErrDecodeFailure))
	assert.Error(t, e.Start(), "start without a prepared unit")
}

func TestEngineStopSilencesSession(t *testing.T) {
	out := output.NewNull(true)
	e := newEngine(t, out)
	log := &resultLog{}

	require.NoError(t, e.Load(sequencer.Request{Epoch: 1, ID: 1, Payload: wavTone(t, 440)}, log.report))
	require.Eventually(t, func() bool { return len(log.kinds()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, e.Start())
	require.Eventually(t, e.IsPlaying, time.Second, time.Millisecond)

	e.Stop()
	e.Stop()
	assert.False(t, e.IsPlaying())
	assert.Zero(t, e.Duration())

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []sequencer.ResultKind{sequencer.ResultPrepared}, log.kinds())
}

type failingOutput struct{ output.Null }

func (f *failingOutput) Write([]int32) error { return errors.New("device unplugged") }

func TestEngineWriteFailure(t *testing.T) {
	e := newEngine(t, &failingOutput{})
	log := &resultLog{}

	require.NoError(t, e.Load(sequencer.Request{Epoch: 1, ID: 1, Payload: wavTone(t, 440)}, log.report))
	require.Eventually(t, func() bool { return len(log.kinds()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, e.Start())
	require.Eventually(t, func() bool { return len(log.kinds()) == 2 }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, log.last().Err, sequencer.ErrPlaybackEngine)
}

func TestEngineUnderScheduler(t *testing.T) {
	e := newEngine(t, output.NewNull(false))
	rec := &sequencertest.Recorder{}
	s := sequencer.NewScheduler(sequencer.Config{Player: e})
	t.Cleanup(func() { s.Release() })
	s.Subscribe(rec)

	require.NoError(t, s.ConfigureStart(1))
	require.NoError(t, s.Enqueue(3, wavTone(t, 660)))
	require.NoError(t, s.Enqueue(2, []byte("RIFF\x00\x00\x00\x00WAVE")))
	require.NoError(t, s.Enqueue(1, wavTone(t, 440)))

	require.Eventually(t, func() bool {
		return rec.Count(sequencer.EventQueueEmpty) == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []int64{1, 3}, rec.IDs(sequencer.EventStart))
	assert.Equal(t, []int64{1, 3}, rec.IDs(sequencer.EventComplete))
	assert.Equal(t, []int64{2}, rec.IDs(sequencer.EventError))
}

func TestRouter(t *testing.T) {
	r := NewRouter(nil, sequencer.OutputSpeaker, sequencer.OutputBluetooth)

	var changed []sequencer.OutputMode
	r.OnChange(func(m sequencer.OutputMode) { changed = append(changed, m) })

	require.NoError(t, r.Route(sequencer.OutputBluetooth))
	assert.Error(t, r.Route(sequencer.OutputEarpiece))
	assert.Equal(t, sequencer.OutputBluetooth, r.Mode())
	assert.Equal(t, []sequencer.OutputMode{sequencer.OutputBluetooth}, changed)

	all := NewRouter(nil)
	assert.NoError(t, all.Route(sequencer.OutputEarpiece))
}
