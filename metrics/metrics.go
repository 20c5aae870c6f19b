// Package metrics exports kvcache events as Prometheus metrics.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/kvcache"
	"github.com/unkn0wn-root/kvcache/backend"
)

// Result label values.
const (
	ResultOK    = "ok"
	ResultMiss  = "miss"
	ResultError = "error"
)

type Hooks struct {
	ops            *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	swept          *prometheus.CounterVec
	patternDeleted prometheus.Counter
	releaseFailed  *prometheus.CounterVec
}

var _ kvcache.Hooks = (*Hooks)(nil)

// New registers the collectors on reg under namespace (default "kvcache").
func New(reg prometheus.Registerer, namespace string) (*Hooks, error) {
	if namespace == "" {
		namespace = "kvcache"
	}
	h := &Hooks{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Session operations by op and result.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Session operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
		}, []string{"op"}),
		swept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_swept_total",
			Help:      "Expired entries reclaimed by background sweeps.",
		}, []string{"backend"}),
		patternDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pattern_deleted_keys_total",
			Help:      "Keys removed by DeleteKeys.",
		}),
		releaseFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "release_failures_total",
			Help:      "Failed connection releases.",
		}, []string{"backend"}),
	}
	for _, c := range []prometheus.Collector{h.ops, h.duration, h.swept, h.patternDeleted, h.releaseFailed} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, kvcache.ErrKeyNotFound):
		return ResultMiss
	default:
		return ResultError
	}
}

func (h *Hooks) OpCompleted(op string, took time.Duration, err error) {
	h.ops.WithLabelValues(op, result(err)).Inc()
	h.duration.WithLabelValues(op).Observe(took.Seconds())
}

func (h *Hooks) ExpiredSwept(kind backend.Kind, removed int) {
	h.swept.WithLabelValues(kind.String()).Add(float64(removed))
}

func (h *Hooks) PatternDeleted(_ string, deleted int64) {
	h.patternDeleted.Add(float64(deleted))
}

func (h *Hooks) ReleaseFailed(kind backend.Kind, _ error) {
	h.releaseFailed.WithLabelValues(kind.String()).Inc()
}
