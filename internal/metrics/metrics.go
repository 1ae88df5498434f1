// internal/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sua-org/safetynet/internal/core"
)

// Metrics reúne os coletores Prometheus do núcleo.
type Metrics struct {
	Messages       *prometheus.CounterVec
	DroppedFrames  *prometheus.CounterVec
	LogEntries     *prometheus.CounterVec
	Escalations    *prometheus.CounterVec
	ProbeTimeouts  *prometheus.CounterVec
	CommandAcks    *prometheus.CounterVec
	HistoryFetches *prometheus.CounterVec
	Notifications  *prometheus.CounterVec
	Archives       *prometheus.CounterVec
	Sessions       *prometheus.GaugeVec
	Cameras        prometheus.Gauge
	StoredLogs     prometheus.Gauge

	registry *prometheus.Registry
}

// New cria as métricas num registry próprio.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	m.Messages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safetynet_messages_total",
		Help: "Inbound camera messages by type",
	}, []string{"type"})

	m.DroppedFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safetynet_dropped_frames_total",
		Help: "Inbound frames dropped before classification",
	}, []string{"reason"})

	m.LogEntries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safetynet_log_entries_total",
		Help: "Log entries appended by function",
	}, []string{"function"})

	m.Escalations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safetynet_escalations_total",
		Help: "PPE violation streak escalations",
	}, []string{"camera"})

	m.ProbeTimeouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safetynet_probe_timeouts_total",
		Help: "Health probes without response",
	}, []string{"camera"})

	m.CommandAcks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safetynet_command_acks_total",
		Help: "Mode change acknowledgements by status",
	}, []string{"status"})

	m.HistoryFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safetynet_history_fetches_total",
		Help: "Historical log fetches by category and result",
	}, []string{"category", "result"})

	m.Notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safetynet_notifications_total",
		Help: "Notifications delivered or dropped per kind",
	}, []string{"kind", "result"})

	m.Archives = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safetynet_snapshot_archives_total",
		Help: "Snapshot archive attempts by result",
	}, []string{"result"})

	m.Sessions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "safetynet_sessions",
		Help: "Camera sessions by connection state",
	}, []string{"state"})

	m.Cameras = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "safetynet_cameras",
		Help: "Registered cameras",
	})

	m.StoredLogs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "safetynet_stored_logs",
		Help: "Entries currently held by the log store",
	})

	m.registry.MustRegister(
		m.Messages,
		m.DroppedFrames,
		m.LogEntries,
		m.Escalations,
		m.ProbeTimeouts,
		m.CommandAcks,
		m.HistoryFetches,
		m.Notifications,
		m.Archives,
		m.Sessions,
		m.Cameras,
		m.StoredLogs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// SetSessionStates substitui o gauge de sessões por estado.
func (m *Metrics) SetSessionStates(counts map[core.ConnectionState]int) {
	for _, st := range []core.ConnectionState{core.StateDisconnected, core.StateConnecting, core.StateConnected, core.StateFailed} {
		m.Sessions.WithLabelValues(string(st)).Set(float64(counts[st]))
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
