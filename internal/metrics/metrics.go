// Package metrics exposes the connection core's state and lifecycle
// counters as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jcrd/bedjetd/internal/bedjet"
)

// Collector reads the state model at scrape time and counts lifecycle
// events via the bedjet.Observer interface.
type Collector struct {
	state      *bedjet.StateModel
	staleAfter time.Duration

	connected     *prometheus.Desc
	stale         *prometheus.Desc
	version       *prometheus.Desc
	lastUpdate    *prometheus.Desc
	currentTemp   *prometheus.Desc
	targetTemp    *prometheus.Desc
	ambientTemp   *prometheus.Desc
	fanPercent    *prometheus.Desc
	timeRemaining *prometheus.Desc
	mode          *prometheus.Desc

	sessionsStarted prometheus.Counter
	sessionsReady   prometheus.Counter
	sessionsFailed  prometheus.Counter
	notifications   prometheus.Counter
	decodeErrors    prometheus.Counter
	commands        *prometheus.CounterVec
}

// NewCollector returns a collector for the given state model. staleAfter
// bounds how long the device may stay silent before the stale gauge
// flips.
func NewCollector(state *bedjet.StateModel, staleAfter time.Duration) *Collector {
	return &Collector{
		state:      state,
		staleAfter: staleAfter,

		connected: prometheus.NewDesc("bedjet_connected",
			"Whether a session is delivering notifications (1=connected)", nil, nil),
		stale: prometheus.NewDesc("bedjet_stale",
			"Whether the link is up but silent past the stale threshold", nil, nil),
		version: prometheus.NewDesc("bedjet_state_version",
			"Monotonic count of accepted status frames", nil, nil),
		lastUpdate: prometheus.NewDesc("bedjet_last_update_timestamp_seconds",
			"When the current status was decoded (epoch seconds)", nil, nil),
		currentTemp: prometheus.NewDesc("bedjet_current_temperature_celsius",
			"Air temperature at the outlet", nil, nil),
		targetTemp: prometheus.NewDesc("bedjet_target_temperature_celsius",
			"Target temperature", nil, nil),
		ambientTemp: prometheus.NewDesc("bedjet_ambient_temperature_celsius",
			"Room temperature at the unit", nil, nil),
		fanPercent: prometheus.NewDesc("bedjet_fan_percent",
			"Fan speed percentage", nil, nil),
		timeRemaining: prometheus.NewDesc("bedjet_time_remaining_seconds",
			"Seconds until automatic shutdown (0 while idle or unlimited)", nil, nil),
		mode: prometheus.NewDesc("bedjet_mode",
			"Active operating mode (1 for the reported mode)", []string{"mode"}, nil),

		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bedjet_sessions_started_total",
			Help: "Connection attempts",
		}),
		sessionsReady: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bedjet_sessions_ready_total",
			Help: "Sessions that finished subscribing",
		}),
		sessionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bedjet_sessions_failed_total",
			Help: "Sessions that ended with an error",
		}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bedjet_notifications_decoded_total",
			Help: "Accepted status frames",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bedjet_decode_errors_total",
			Help: "Dropped notification frames",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bedjet_commands_total",
			Help: "Drained commands by outcome",
		}, []string{"outcome"}),
	}
}

// Observer implementation; called from the session and supervisor.

func (c *Collector) SessionStarted()      { c.sessionsStarted.Inc() }
func (c *Collector) SessionReady()        { c.sessionsReady.Inc() }
func (c *Collector) SessionFailed(error)  { c.sessionsFailed.Inc() }
func (c *Collector) NotificationDecoded() { c.notifications.Inc() }
func (c *Collector) DecodeError(error)    { c.decodeErrors.Inc() }

func (c *Collector) CommandCompleted(o bedjet.Outcome) {
	c.commands.WithLabelValues(o.String()).Inc()
}

var _ bedjet.Observer = (*Collector)(nil)
var _ prometheus.Collector = (*Collector)(nil)

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connected
	ch <- c.stale
	ch <- c.version
	ch <- c.lastUpdate
	ch <- c.currentTemp
	ch <- c.targetTemp
	ch <- c.ambientTemp
	ch <- c.fanPercent
	ch <- c.timeRemaining
	ch <- c.mode
	c.sessionsStarted.Describe(ch)
	c.sessionsReady.Describe(ch)
	c.sessionsFailed.Describe(ch)
	c.notifications.Describe(ch)
	c.decodeErrors.Describe(ch)
	c.commands.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.state.Current()

	ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, boolToFloat(s.Connected))
	ch <- prometheus.MustNewConstMetric(c.stale, prometheus.GaugeValue, boolToFloat(c.state.Stale(c.staleAfter)))
	ch <- prometheus.MustNewConstMetric(c.version, prometheus.CounterValue, float64(s.Version))
	if !s.LastUpdate.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.lastUpdate, prometheus.GaugeValue, float64(s.LastUpdate.Unix()))
	}

	// Readings only make sense once a notification arrived.
	if s.Version > 0 {
		ch <- prometheus.MustNewConstMetric(c.currentTemp, prometheus.GaugeValue, s.Status.CurrentTemp)
		ch <- prometheus.MustNewConstMetric(c.targetTemp, prometheus.GaugeValue, s.Status.TargetTemp)
		ch <- prometheus.MustNewConstMetric(c.ambientTemp, prometheus.GaugeValue, s.Status.AmbientTemp)
		ch <- prometheus.MustNewConstMetric(c.fanPercent, prometheus.GaugeValue, float64(s.Status.FanPercent))
		ch <- prometheus.MustNewConstMetric(c.timeRemaining, prometheus.GaugeValue, s.Status.TimeRemaining.Seconds())
		ch <- prometheus.MustNewConstMetric(c.mode, prometheus.GaugeValue, 1, s.Status.Mode.String())
	}

	c.sessionsStarted.Collect(ch)
	c.sessionsReady.Collect(ch)
	c.sessionsFailed.Collect(ch)
	c.notifications.Collect(ch)
	c.decodeErrors.Collect(ch)
	c.commands.Collect(ch)
}

// Handler returns an HTTP handler serving /metrics for a registry
// holding this collector, plus a trivial /health endpoint.
func Handler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
