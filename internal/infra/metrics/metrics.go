// File: internal/infra/metrics/metrics.go
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliveries_total",
			Help: "Outbound message deliveries by queue and terminal status.",
		},
		[]string{"queue", "status"},
	)

	dispatchBatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_batch_size",
			Help:    "Rows claimed per dispatcher tick.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		},
		[]string{"queue"},
	)

	aiTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_in",
			Help: "Sum of prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_out",
			Help: "Sum of completion (output) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "AI call latency distribution in milliseconds.",
			Buckets: []float64{50, 100, 200, 400, 800, 1600, 3000, 5000, 10000, 30000},
		},
		[]string{"provider", "model", "success"},
	)

	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Verified payments by kind (subscription/tokens).",
		},
		[]string{"kind"},
	)

	botsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bots_running",
			Help: "Number of user bot runtimes currently polling.",
		},
	)
)

// MustRegister registers collectors with the default registry (idempotent).
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(
			deliveriesTotal, dispatchBatchSize,
			aiTokensIn, aiTokensOut, aiCallsLatencyMs,
			paymentsTotal, botsRunning,
		)
	})
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// -------- Dispatch helpers --------

func IncDelivery(queue, status string) {
	deliveriesTotal.WithLabelValues(norm(queue), norm(status)).Inc()
}

func ObserveBatch(queue string, size int) {
	dispatchBatchSize.WithLabelValues(norm(queue)).Observe(float64(size))
}

// -------- AI helpers --------

func ObserveAIUsage(provider, model string, tokensIn, tokensOut int64, latencyMs int64, success bool) {
	lbl := []string{norm(provider), norm(model)}
	aiTokensIn.WithLabelValues(lbl...).Add(float64(tokensIn))
	aiTokensOut.WithLabelValues(lbl...).Add(float64(tokensOut))
	okLbl := "false"
	if success {
		okLbl = "true"
	}
	aiCallsLatencyMs.WithLabelValues(norm(provider), norm(model), okLbl).Observe(float64(latencyMs))
}

// -------- Payment helpers --------

func IncPayment(kind string) {
	paymentsTotal.WithLabelValues(norm(kind)).Inc()
}

// -------- Fleet helpers --------

func SetBotsRunning(n int) {
	botsRunning.Set(float64(n))
}
