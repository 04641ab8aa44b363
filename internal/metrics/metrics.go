// Package metrics exports kit analyze and apply telemetry to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every kitplacer metric.
const Namespace = "kitplacer"

// Operation labels.
const (
	OpAnalyze = "analyze"
	OpApply   = "apply"
	OpPlan    = "plan"
)

// Observer captures telemetry for kit operations.
type Observer interface {
	RecordAnalyze(duration time.Duration, err error)
	RecordApply(duration time.Duration, err error)
	RecordPlan(duration time.Duration, err error)
	RecordAssignment(wells int)
}

// PrometheusObserver exports kit metrics to Prometheus.
type PrometheusObserver struct {
	duration      *prometheus.HistogramVec
	errors        *prometheus.CounterVec
	assignedWells prometheus.Counter
}

// NewPrometheusObserver registers the kit metrics on reg, the default
// registerer when nil. Registering twice reuses the existing collectors.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &PrometheusObserver{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of kit analyze, plan and apply operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operation_errors_total",
			Help:      "Count of failed kit operations.",
		}, []string{"operation"}),
		assignedWells: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "assigned_wells_total",
			Help:      "Plate wells filled by applied kits.",
		}),
	}

	var err error
	if o.duration, err = register(reg, o.duration); err != nil {
		return nil, err
	}
	if o.errors, err = register(reg, o.errors); err != nil {
		return nil, err
	}
	if o.assignedWells, err = register(reg, o.assignedWells); err != nil {
		return nil, err
	}
	return o, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register kit metric: %w", err)
	}
	return c, nil
}

// RecordAnalyze tracks a kit workbook analysis.
func (o *PrometheusObserver) RecordAnalyze(duration time.Duration, err error) {
	o.record(OpAnalyze, duration, err)
}

// RecordApply tracks a kit apply.
func (o *PrometheusObserver) RecordApply(duration time.Duration, err error) {
	o.record(OpApply, duration, err)
}

// RecordPlan tracks a strategy resolution request.
func (o *PrometheusObserver) RecordPlan(duration time.Duration, err error) {
	o.record(OpPlan, duration, err)
}

// RecordAssignment counts the wells an apply filled.
func (o *PrometheusObserver) RecordAssignment(wells int) {
	if o == nil || wells <= 0 {
		return
	}
	o.assignedWells.Add(float64(wells))
}

func (o *PrometheusObserver) record(op string, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		o.errors.WithLabelValues(op).Inc()
	}
}

// Nop returns an Observer that discards everything.
func Nop() Observer {
	return nopObserver{}
}

type nopObserver struct{}

func (nopObserver) RecordAnalyze(time.Duration, error) {}

func (nopObserver) RecordApply(time.Duration, error) {}

func (nopObserver) RecordPlan(time.Duration, error) {}

func (nopObserver) RecordAssignment(int) {}
