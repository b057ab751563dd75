package application

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "otk"

// Metrics are the device counters exported to Prometheus.
type Metrics struct {
	Boots        prometheus.Counter
	Requests     *prometheus.CounterVec
	AuthFailures prometheus.Counter
	Signatures   prometheus.Counter
	Halts        *prometheus.CounterVec
	QueueDepth   prometheus.Gauge
}

// NewMetrics creates the device counters and registers them with reg, if
// not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Boots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "boots_total",
			Help:      "Number of device boots.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Number of processed requests by command and outcome.",
		}, []string{"command", "state"}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "auth_failures_total",
			Help:      "Number of failed authentications.",
		}),
		Signatures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "signatures_total",
			Help:      "Number of produced signatures.",
		}),
		Halts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "halts_total",
			Help:      "Number of device halts by error code.",
		}, []string{"code", "reboot"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "task_queue_depth",
			Help:      "Number of tasks waiting in the device queue.",
		}),
	}
	if reg == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{
		m.Boots, m.Requests, m.AuthFailures, m.Signatures, m.Halts, m.QueueDepth,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
