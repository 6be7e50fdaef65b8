// Package metrics exposes engine activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/openmined/s3ops/internal/engine"
	"github.com/openmined/s3ops/internal/gateway"
	"github.com/openmined/s3ops/internal/operation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "s3ops"

// Prometheus is the Prometheus implementation of engine.Metrics.
type Prometheus struct {
	reg *prometheus.Registry

	operationsStarted  *prometheus.CounterVec
	operationsFinished *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	gatewayCalls       *prometheus.CounterVec
	gatewayDuration    *prometheus.HistogramVec
	queueDepth         prometheus.Gauge
}

var _ engine.Metrics = (*Prometheus)(nil)

// New registers the engine metrics on a fresh registry.
func New() *Prometheus {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Prometheus{
		reg: reg,
		operationsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_started_total",
				Help:      "Operations accepted by the engine, by kind",
			},
			[]string{"kind"},
		),
		operationsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_finished_total",
				Help:      "Operations that reached a terminal state, by kind and state",
			},
			[]string{"kind", "state"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Running time of finished operations",
				Buckets:   []float64{0.05, 0.25, 1, 5, 30, 120, 600},
			},
			[]string{"kind"},
		),
		gatewayCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_calls_total",
				Help:      "Storage calls by call and error kind",
			},
			[]string{"call", "result"},
		),
		gatewayDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_call_duration_seconds",
				Help:      "Latency of storage calls",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"call"},
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Tasks waiting for a worker",
			},
		),
	}
}

func (p *Prometheus) OperationStarted(kind operation.Kind) {
	p.operationsStarted.WithLabelValues(string(kind)).Inc()
}

func (p *Prometheus) OperationFinished(kind operation.Kind, state operation.State, elapsed time.Duration) {
	p.operationsFinished.WithLabelValues(string(kind), string(state)).Inc()
	p.operationDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// GatewayCall counts a storage call; result is "ok" or the error kind.
func (p *Prometheus) GatewayCall(call string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = string(gateway.KindOf(err))
	}
	p.gatewayCalls.WithLabelValues(call, result).Inc()
	p.gatewayDuration.WithLabelValues(call).Observe(elapsed.Seconds())
}

func (p *Prometheus) QueueDepth(n int) {
	p.queueDepth.Set(float64(n))
}

// Registry returns the registry holding the engine metrics.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{Registry: p.reg})
}
