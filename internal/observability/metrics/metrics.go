package metrics

import "github.com/prometheus/client_golang/prometheus"

// QueueMetrics exposes counters/histograms for the notification queue
// worker. Safe to call on a nil receiver so wiring stays optional.
type QueueMetrics struct {
	deliveriesTotal *prometheus.CounterVec
	claimsSkipped   prometheus.Counter
	ticksTotal      *prometheus.CounterVec
	deliveryLatency prometheus.Histogram
}

func NewQueueMetrics(reg prometheus.Registerer) *QueueMetrics {
	m := &QueueMetrics{
		deliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "torim",
			Subsystem: "queue",
			Name:      "deliveries_total",
			Help:      "Delivery attempts by outcome",
		}, []string{"outcome"}),
		claimsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "torim",
			Subsystem: "queue",
			Name:      "claims_skipped_total",
			Help:      "Lease claims lost to another worker",
		}),
		ticksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "torim",
			Subsystem: "queue",
			Name:      "ticks_total",
			Help:      "Worker ticks by status",
		}, []string{"status"}),
		deliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "torim",
			Subsystem: "queue",
			Name:      "delivery_latency_seconds",
			Help:      "Latency of one WhatsApp send",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.deliveriesTotal, m.claimsSkipped, m.ticksTotal, m.deliveryLatency)
	return m
}

func (m *QueueMetrics) ObserveDelivery(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(outcome).Inc()
	m.deliveryLatency.Observe(seconds)
}

func (m *QueueMetrics) ObserveClaimSkipped() {
	if m == nil {
		return
	}
	m.claimsSkipped.Inc()
}

func (m *QueueMetrics) ObserveTick(status string) {
	if m == nil {
		return
	}
	m.ticksTotal.WithLabelValues(status).Inc()
}
