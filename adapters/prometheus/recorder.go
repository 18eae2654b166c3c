// Package prometheus exposes core metrics through prometheus client_golang.
// Counters and histograms are registered lazily the first time a metric name
// is recorded.
package prometheus

import (
	"context"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/goliatone/go-tendlc/core"
)

// DefaultLabels is the fixed label set every vector carries. Tags outside it
// are dropped and missing ones are recorded as empty.
var DefaultLabels = []string{"operation", "status", "source", "event", "outcome"}

// DefaultBuckets covers 5ms to roughly 10s.
var DefaultBuckets = prometheus.ExponentialBuckets(5, 2, 12)

type Option func(*Recorder)

func WithLabels(labels ...string) Option {
	return func(r *Recorder) {
		cleaned := make([]string, 0, len(labels))
		for _, label := range labels {
			if label = sanitize(label); label != "" {
				cleaned = append(cleaned, label)
			}
		}
		if len(cleaned) > 0 {
			r.labels = cleaned
		}
	}
}

func WithBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

type Recorder struct {
	registerer prometheus.Registerer
	labels     []string
	buckets    []float64
	logger     core.Logger

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// NewRecorder registers collectors on registerer, or on the default
// registry when nil.
func NewRecorder(registerer prometheus.Registerer, opts ...Option) *Recorder {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		registerer: registerer,
		labels:     append([]string(nil), DefaultLabels...),
		buckets:    DefaultBuckets,
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	vec := r.counter(sanitize(name))
	if vec == nil {
		return
	}
	vec.WithLabelValues(r.values(tags)...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	vec := r.histogram(sanitize(name))
	if vec == nil {
		return
	}
	vec.WithLabelValues(r.values(tags)...).Observe(value)
}

func (r *Recorder) counter(name string) *prometheus.CounterVec {
	if name == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.counters[name]; ok {
		return vec
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: "Count of " + strings.ReplaceAll(name, "_", " ") + ".",
	}, r.labels)
	registered, ok := r.register(name, vec).(*prometheus.CounterVec)
	if !ok {
		return nil
	}
	r.counters[name] = registered
	return registered
}

func (r *Recorder) histogram(name string) *prometheus.HistogramVec {
	if name == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.histograms[name]; ok {
		return vec
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    "Distribution of " + strings.ReplaceAll(name, "_", " ") + ".",
		Buckets: r.buckets,
	}, r.labels)
	registered, ok := r.register(name, vec).(*prometheus.HistogramVec)
	if !ok {
		return nil
	}
	r.histograms[name] = registered
	return registered
}

// register reuses a collector another recorder already put on the same
// registry and returns nil when registration fails for any other reason.
func (r *Recorder) register(name string, collector prometheus.Collector) prometheus.Collector {
	err := r.registerer.Register(collector)
	if err == nil {
		return collector
	}
	if existing, ok := err.(prometheus.AlreadyRegisteredError); ok {
		return existing.ExistingCollector
	}
	if r.logger != nil {
		r.logger.Error("metric registration failed", "metric", name, "error", err.Error())
	}
	return nil
}

func (r *Recorder) values(tags map[string]string) []string {
	values := make([]string, len(r.labels))
	for i, label := range r.labels {
		values[i] = strings.TrimSpace(tags[label])
	}
	return values
}

// sanitize maps dotted metric names onto the prometheus name charset.
func sanitize(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	b.Grow(len(name))
	for i, ch := range name {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch == '_', ch == ':':
			b.WriteRune(ch)
		case ch >= '0' && ch <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(ch)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
