// Package metrics exposes relay counters and histograms through a
// prometheus registry.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/watchrelay/watchrelay/core"
)

const defaultNamespace = "watchrelay"

// PrometheusRecorder lazily registers one collector per metric name and
// label set. Metric names arrive dot separated and are normalized to the
// prometheus charset.
type PrometheusRecorder struct {
	registry   *prometheus.Registry
	namespace  string
	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

type Option func(*PrometheusRecorder)

func WithRegistry(registry *prometheus.Registry) Option {
	return func(r *PrometheusRecorder) {
		if registry != nil {
			r.registry = registry
		}
	}
}

func WithNamespace(namespace string) Option {
	return func(r *PrometheusRecorder) {
		if trimmed := strings.TrimSpace(namespace); trimmed != "" {
			r.namespace = trimmed
		}
	}
}

func NewPrometheusRecorder(options ...Option) *PrometheusRecorder {
	recorder := &PrometheusRecorder{
		registry:   prometheus.NewRegistry(),
		namespace:  defaultNamespace,
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
	}
	for _, option := range options {
		if option != nil {
			option(recorder)
		}
	}
	return recorder
}

func (r *PrometheusRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value <= 0 {
		return
	}
	labels := labelKeys(tags)
	vec := r.counterVec(name, labels)
	if vec == nil {
		return
	}
	vec.With(labelValues(labels, tags)).Add(float64(value))
}

func (r *PrometheusRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	labels := labelKeys(tags)
	vec := r.histogramVec(name, labels)
	if vec == nil {
		return
	}
	vec.With(labelValues(labels, tags)).Observe(value)
}

// Handler serves the registry for scraping.
func (r *PrometheusRecorder) Handler() http.Handler {
	if r == nil || r.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *PrometheusRecorder) counterVec(name string, labels []string) *prometheus.CounterVec {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := collectorKey(name, labels)
	if vec, ok := r.counters[key]; ok {
		return vec
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      normalizeMetricName(name),
		Help:      name,
	}, labels)
	if err := r.registry.Register(vec); err != nil {
		already := prometheus.AlreadyRegisteredError{}
		if !errors.As(err, &already) {
			return nil
		}
		if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
			vec = existing
		}
	}
	r.counters[key] = vec
	return vec
}

func (r *PrometheusRecorder) histogramVec(name string, labels []string) *prometheus.HistogramVec {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := collectorKey(name, labels)
	if vec, ok := r.histograms[key]; ok {
		return vec
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Name:      normalizeMetricName(name),
		Help:      name,
		Buckets:   prometheus.DefBuckets,
	}, labels)
	if err := r.registry.Register(vec); err != nil {
		already := prometheus.AlreadyRegisteredError{}
		if !errors.As(err, &already) {
			return nil
		}
		if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
			vec = existing
		}
	}
	r.histograms[key] = vec
	return vec
}

func labelKeys(tags map[string]string) []string {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func labelValues(labels []string, tags map[string]string) prometheus.Labels {
	values := make(prometheus.Labels, len(labels))
	for _, label := range labels {
		values[label] = tags[label]
	}
	return values
}

func collectorKey(name string, labels []string) string {
	return name + "|" + strings.Join(labels, ",")
}

func normalizeMetricName(name string) string {
	var builder strings.Builder
	builder.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ':':
			builder.WriteRune(r)
		default:
			builder.WriteRune('_')
		}
	}
	return builder.String()
}

var _ core.MetricsRecorder = (*PrometheusRecorder)(nil)
