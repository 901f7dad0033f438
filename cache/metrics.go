package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts gateway outcomes.
type Metrics struct {
	Requests *prometheus.CounterVec
	Writes   *prometheus.CounterVec
}

// Label values for Metrics.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
	ResultOK    = "ok"
)

// NewMetrics builds the gateway counters under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by result (hit, miss, error).",
		}, []string{"result"}),
		Writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_writes_total",
			Help:      "Cache writes by result (ok, error).",
		}, []string{"result"}),
	}
}

// Register registers the counters on reg (or the default registerer if nil).
// Counters already registered are adopted, so several gateways built for the
// same registry share one set of series.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []**prometheus.CounterVec{&m.Requests, &m.Writes} {
		if err := reg.Register(*c); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return err
			}
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				*c = existing
			}
		}
	}
	return nil
}

func (m *Metrics) request(result string) {
	if m != nil {
		m.Requests.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) write(result string) {
	if m != nil {
		m.Writes.WithLabelValues(result).Inc()
	}
}
