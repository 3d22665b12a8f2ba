package sweep

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roman-kulish/spectrum-streamer/internal/sdr"
)

const (
	exitRequested = "requested"
	exitClean     = "clean"
	exitCrash     = "crash"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	samples      prometheus.Counter
	parseErrors  prometheus.Counter
	emptyDwells  prometheus.Counter
	restarts     prometheus.Counter
	exits        *prometheus.CounterVec
	bandSwitches prometheus.Counter
	failures     prometheus.Counter
	rss          prometheus.Gauge
	state        prometheus.Gauge
	dropped      prometheus.Gauge
	peakPower    *prometheus.GaugeVec
}

// NewMetrics creates and registers the engine collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		samples: factory.NewCounter(prometheus.CounterOpts{
			Name: "sweep_samples_total",
			Help: "Total number of valid spectrum samples parsed",
		}),
		parseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "sweep_parse_errors_total",
			Help: "Total number of malformed output lines discarded",
		}),
		emptyDwells: factory.NewCounter(prometheus.CounterOpts{
			Name: "sweep_empty_dwells_total",
			Help: "Total number of dwells that ended without a valid sample",
		}),
		restarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "sweep_restarts_total",
			Help: "Total number of automatic restarts scheduled after a failure",
		}),
		exits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sweep_process_exits_total",
			Help: "Total number of sweep utility exits by class",
		}, []string{"class"}),
		bandSwitches: factory.NewCounter(prometheus.CounterOpts{
			Name: "sweep_band_switches_total",
			Help: "Total number of band switches",
		}),
		failures: factory.NewCounter(prometheus.CounterOpts{
			Name: "sweep_terminal_failures_total",
			Help: "Total number of cycles stopped by a terminal failure",
		}),
		rss: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sweep_process_resident_memory_bytes",
			Help: "Resident memory of the sweep utility at the last health check",
		}),
		state: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sweep_state",
			Help: "Engine state: 0 idle, 1 starting, 2 running, 3 switching, 4 stopped, 5 failed",
		}),
		dropped: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sweep_subscriber_dropped_events",
			Help: "Events dropped across current subscribers because their queue was full",
		}),
		peakPower: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sweep_peak_power_db",
			Help: "Peak power of the last sample per band",
		}, []string{"band"}),
	}
}

func (m *Metrics) observeSample(band sdr.Band, s *sdr.Sample) {
	if m == nil {
		return
	}

	m.samples.Inc()
	if peak, i := s.Peak(); i >= 0 {
		m.peakPower.WithLabelValues(band.String()).Set(peak)
	}
}

func (m *Metrics) observeParseError() {
	if m != nil {
		m.parseErrors.Inc()
	}
}

func (m *Metrics) observeNoData() {
	if m != nil {
		m.emptyDwells.Inc()
	}
}

func (m *Metrics) observeRestart() {
	if m != nil {
		m.restarts.Inc()
	}
}

func (m *Metrics) observeExit(exit Exit) {
	if m == nil {
		return
	}

	class := exitCrash
	switch {
	case exit.Requested:
		class = exitRequested
	case exit.Code == 0 && exit.Signal == "" && exit.Err == nil:
		class = exitClean
	}
	m.exits.WithLabelValues(class).Inc()
}

func (m *Metrics) observeSwitch() {
	if m != nil {
		m.bandSwitches.Inc()
	}
}

func (m *Metrics) observeFailure() {
	if m != nil {
		m.failures.Inc()
	}
}

func (m *Metrics) observeRSS(rss uint64) {
	if m != nil {
		m.rss.Set(float64(rss))
	}
}

func (m *Metrics) observeState(state sdr.State) {
	if m != nil {
		m.state.Set(float64(state))
	}
}

func (m *Metrics) observeDropped(n uint64) {
	if m != nil {
		m.dropped.Set(float64(n))
	}
}
