package hub

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Routing outcomes recorded on sommelier_bus_messages_routed_total.
const (
	outcomeOK        = "ok"
	outcomeFailed    = "failed"
	outcomeNoHandler = "no_handler"
	outcomeDropped   = "dropped"
)

type MetricsSnapshot struct {
	LocalAgents     int64
	MessagesRouted  int64
	HandlerFailures int64
	Timeouts        int64
	Pending         int64
}

// Metrics holds cheap in-process counters. The same figures are exported to
// Prometheus through the collectors registered by New.
type Metrics struct {
	localAgents     atomic.Int64
	messagesRouted  atomic.Int64
	handlerFailures atomic.Int64
	timeouts        atomic.Int64
	pending         atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordLocalAgent(delta int) {
	m.localAgents.Add(int64(delta))
}

func (m *Metrics) RecordRouted() {
	m.messagesRouted.Add(1)
}

func (m *Metrics) RecordHandlerFailure() {
	m.handlerFailures.Add(1)
}

func (m *Metrics) RecordTimeout() {
	m.timeouts.Add(1)
}

func (m *Metrics) RecordPending(delta int) {
	m.pending.Add(int64(delta))
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		LocalAgents:     m.localAgents.Load(),
		MessagesRouted:  m.messagesRouted.Load(),
		HandlerFailures: m.handlerFailures.Load(),
		Timeouts:        m.timeouts.Load(),
		Pending:         m.pending.Load(),
	}
}

type collectors struct {
	routed   *prometheus.CounterVec
	pending  prometheus.Gauge
	timeouts prometheus.Counter
}

func newCollectors(reg prometheus.Registerer) *collectors {
	factory := promauto.With(reg)

	return &collectors{
		routed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sommelier_bus_messages_routed_total",
			Help: "Messages routed to a handler, by message type and outcome.",
		}, []string{"message_type", "outcome"}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sommelier_bus_pending_requests",
			Help: "Requests waiting for a correlated response.",
		}),
		timeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "sommelier_bus_request_timeouts_total",
			Help: "Requests resolved by their timeout.",
		}),
	}
}
