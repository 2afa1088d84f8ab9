// ABOUTME: Prometheus instrumentation for the scheduler
// ABOUTME: Counts events as they are observed and samples scheduler state
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harperreed/seqplay/pkg/sequencer"
)

// Metrics contains the scheduler's Prometheus metrics. It is a
// sequencer.Observer.
type Metrics struct {
	registry *prometheus.Registry

	Events       *prometheus.CounterVec
	Buffered     prometheus.Gauge
	Stranded     prometheus.Gauge
	ExpectedNext prometheus.Gauge
	Phase        prometheus.Gauge
	Stale        prometheus.Counter
	Invalid      prometheus.Counter
	UnitDuration prometheus.Histogram

	// duration of the playing unit, touched only by OnEvent
	playing time.Duration

	lastStale   int64
	lastInvalid int64
}

// New creates metrics on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seqplay_events_total",
			Help: "Scheduler events emitted, by type",
		}, []string{"type"}),
		Buffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "seqplay_buffered_units",
			Help: "Units waiting in the sequence buffer",
		}),
		Stranded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "seqplay_stranded_units",
			Help: "Buffered units below the expected id that can no longer play",
		}),
		ExpectedNext: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "seqplay_expected_next_id",
			Help: "Id the scheduler will play next",
		}),
		Phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "seqplay_phase",
			Help: "Scheduler phase (0 idle, 1 waiting, 2 playing, 3 released)",
		}),
		Stale: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seqplay_stale_units_total",
			Help: "Units dropped because their id was below the start id",
		}),
		Invalid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seqplay_invalid_ids_total",
			Help: "Units rejected because their id did not parse",
		}),
		UnitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "seqplay_unit_duration_seconds",
			Help:    "Playing time of completed units",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
	}

	m.registry.MustRegister(m.Events, m.Buffered, m.Stranded, m.ExpectedNext, m.Phase, m.Stale, m.Invalid, m.UnitDuration)
	return m
}

// Registry returns the registry backing Handler
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// OnEvent counts an event. Runs on the scheduler's dispatcher goroutine.
func (m *Metrics) OnEvent(e sequencer.Event) {
	m.Events.WithLabelValues(string(e.Type)).Inc()

	switch e.Type {
	case sequencer.EventQueued, sequencer.EventStart:
		m.Buffered.Set(float64(e.QueueSize))
		if e.Type == sequencer.EventStart {
			m.playing = 0
		}
	case sequencer.EventProgress:
		m.playing = e.Duration
	case sequencer.EventComplete:
		m.Buffered.Set(float64(e.QueueSize))
		if m.playing > 0 {
			m.UnitDuration.Observe(m.playing.Seconds())
		}
		m.playing = 0
	}
}

// Sample copies a scheduler snapshot into the gauges and advances the
// drop counters by the growth in stats since the last sample
func (m *Metrics) Sample(st sequencer.Status, stats sequencer.Stats) {
	m.Buffered.Set(float64(len(st.Buffered)))
	m.Stranded.Set(float64(st.Stranded))
	m.ExpectedNext.Set(float64(st.ExpectedNextID))
	m.Phase.Set(float64(st.Phase))

	if d := stats.Stale - m.lastStale; d > 0 {
		m.Stale.Add(float64(d))
		m.lastStale = stats.Stale
	}
	if d := stats.Invalid - m.lastInvalid; d > 0 {
		m.Invalid.Add(float64(d))
		m.lastInvalid = stats.Invalid
	}
}

// Source supplies snapshots for Poll
type Source interface {
	Status() sequencer.Status
	Stats() sequencer.Stats
}

// Poll samples src every interval until stop is closed. Only one Poll may
// run at a time.
func (m *Metrics) Poll(src Source, every time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		m.Sample(src.Status(), src.Stats())
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}
