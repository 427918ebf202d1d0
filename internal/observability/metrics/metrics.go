package metrics

import "github.com/prometheus/client_golang/prometheus"

// ChatMetrics exposes counters/histograms for the dialogue flows.
type ChatMetrics struct {
	turnsTotal        *prometheus.CounterVec
	completionLatency prometheus.Histogram
	bookingsTotal     *prometheus.CounterVec
	syncsTotal        prometheus.Counter
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pura",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Total chat turns by outcome",
		}, []string{"kind", "status"}),
		completionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pura",
			Subsystem: "chat",
			Name:      "completion_latency_seconds",
			Help:      "Latency of streaming completion turns",
			Buckets:   prometheus.DefBuckets,
		}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pura",
			Subsystem: "booking",
			Name:      "bookings_total",
			Help:      "Total booking attempts by outcome",
		}, []string{"status"}),
		syncsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pura",
			Subsystem: "leadsync",
			Name:      "dispatched_total",
			Help:      "Total lead sync jobs dispatched",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.completionLatency, m.bookingsTotal, m.syncsTotal)
	return m
}

// ObserveTurn records a chat turn. kind is "scripted" or "completion",
// status is "ok" or "error".
func (m *ChatMetrics) ObserveTurn(kind, status string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(kind, status).Inc()
}

func (m *ChatMetrics) ObserveCompletionLatency(seconds float64) {
	if m == nil {
		return
	}
	m.completionLatency.Observe(seconds)
}

// ObserveBooking records a booking attempt. status is "booked" or "degraded".
func (m *ChatMetrics) ObserveBooking(status string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(status).Inc()
}

func (m *ChatMetrics) ObserveSyncDispatched() {
	if m == nil {
		return
	}
	m.syncsTotal.Inc()
}
