package embedcache

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors shared by every Manager that is
// given the same instance. Series are labelled by namespace.
type Metrics struct {
	hits         *prometheus.CounterVec
	misses       *prometheus.CounterVec
	embedded     *prometheus.CounterVec
	stored       *prometheus.CounterVec
	embedSeconds *prometheus.HistogramVec
}

// NewMetrics creates the cache collectors and registers them with reg.
// Collectors already registered on reg are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ra",
			Subsystem: "embedcache",
			Name:      "hits_total",
			Help:      "Documents found in the cache by FilterNew",
		}, []string{"namespace"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ra",
			Subsystem: "embedcache",
			Name:      "misses_total",
			Help:      "Documents not yet cached when filtered",
		}, []string{"namespace"}),
		embedded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ra",
			Subsystem: "embedcache",
			Name:      "embedded_total",
			Help:      "Documents embedded by the provider",
		}, []string{"namespace"}),
		stored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ra",
			Subsystem: "embedcache",
			Name:      "stored_total",
			Help:      "Cache entries written to the store",
		}, []string{"namespace"}),
		embedSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ra",
			Subsystem: "embedcache",
			Name:      "embed_seconds",
			Help:      "Latency of provider embedding calls",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"namespace"}),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	if m.hits, err = register(reg, m.hits); err != nil {
		return nil, err
	}
	if m.misses, err = register(reg, m.misses); err != nil {
		return nil, err
	}
	if m.embedded, err = register(reg, m.embedded); err != nil {
		return nil, err
	}
	if m.stored, err = register(reg, m.stored); err != nil {
		return nil, err
	}
	if m.embedSeconds, err = register(reg, m.embedSeconds); err != nil {
		return nil, err
	}
	return m, nil
}

// register registers c, returning the existing collector when an identical
// one is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, fmt.Errorf("registering embedcache metrics: %w", err)
}

func (m *Metrics) recordFilter(namespace string, hits, misses int) {
	if m == nil {
		return
	}
	m.hits.WithLabelValues(namespace).Add(float64(hits))
	m.misses.WithLabelValues(namespace).Add(float64(misses))
}

func (m *Metrics) recordEmbed(namespace string, n int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.embedded.WithLabelValues(namespace).Add(float64(n))
	m.embedSeconds.WithLabelValues(namespace).Observe(elapsed.Seconds())
}

func (m *Metrics) recordStored(namespace string) {
	if m == nil {
		return
	}
	m.stored.WithLabelValues(namespace).Inc()
}
