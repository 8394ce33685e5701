// Package metrics はルーターのPrometheusメトリクスを提供する。
// メトリクスはインスタンスごとのレジストリに登録するため、テストやアプリケーションを
// 複数生成してもグローバルな登録と衝突しない。
package metrics

import (
	"net/http"
	"time"

	"github.com/nao1215/llmrouter/internal/engine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics はルーターのメトリクス一式。
type Metrics struct {
	registry *prometheus.Registry

	decisions        *prometheus.CounterVec
	fallbacks        prometheus.Counter
	estimatedCost    *prometheus.CounterVec
	decisionDuration prometheus.Histogram
	providerCalls    *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	requests         *prometheus.CounterVec
}

// New はメトリクスを生成し、専用のレジストリに登録する。
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmrouter_decisions_total",
				Help: "Total number of routing decisions",
			},
			[]string{"route", "category"},
		),
		fallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "llmrouter_guardrail_fallbacks_total",
				Help: "Total number of decisions downgraded by the cost guardrail",
			},
		),
		estimatedCost: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmrouter_estimated_cost_usd_total",
				Help: "Sum of estimated cost of routing decisions in USD",
			},
			[]string{"route"},
		),
		decisionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "llmrouter_decision_duration_seconds",
				Help:    "Time taken by the rules engine to decide a route",
				Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025},
			},
		),
		providerCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmrouter_provider_calls_total",
				Help: "Total number of LLM provider calls",
			},
			[]string{"provider", "outcome"},
		),
		providerLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llmrouter_provider_latency_seconds",
				Help:    "Latency of LLM provider calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmrouter_http_requests_total",
				Help: "Total number of HTTP requests handled by the application",
			},
			[]string{"path", "status"},
		),
	}
}

// ObserveDecision はルーティング判定を記録する。
func (m *Metrics) ObserveDecision(d engine.Decision) {
	m.decisions.WithLabelValues(string(d.RouteSelected), string(d.Category)).Inc()
	m.estimatedCost.WithLabelValues(string(d.RouteSelected)).Add(d.EstimatedCost)
	m.decisionDuration.Observe(d.ProcessingTimeMS / 1000)
	if d.FallbackUsed {
		m.fallbacks.Inc()
	}
}

// ObserveProvider はプロバイダ呼び出しを記録する。gateway.Observerとして渡せる。
func (m *Metrics) ObserveProvider(provider string, elapsed time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.providerCalls.WithLabelValues(provider, outcome).Inc()
	m.providerLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveRequest はHTTPリクエストを記録する。pathにはルート定義のパスを渡す。
func (m *Metrics) ObserveRequest(path, status string) {
	m.requests.WithLabelValues(path, status).Inc()
}

// Registry はメトリクスを登録したレジストリを返す。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler はPrometheus形式でメトリクスを出力するハンドラを返す。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
