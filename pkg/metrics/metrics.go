package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP/gRPC 请求指标
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Total number of requests",
		},
		[]string{"service", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method"},
	)

	// 消息队列指标
	KafkaMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_total",
			Help: "Total number of Kafka messages",
		},
		[]string{"service", "topic", "status"},
	)

	// 业务指标
	PairsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pairs_processed_total",
			Help: "Total number of photo/inspiration pairs processed",
		},
		[]string{"strategy", "status"},
	)

	ProviderCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_call_duration_seconds",
			Help:    "Latency of calls to the image provider in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 90, 120},
		},
		[]string{"call", "status"},
	)

	FallbackAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_attempts_total",
			Help: "Image synthesis fallback attempts by outcome",
		},
		[]string{"outcome"},
	)

	RunsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "runs_in_flight",
			Help: "Number of runs queued or being processed",
		},
	)
)

func init() {
	// 注册所有指标
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		KafkaMessagesTotal,
		PairsProcessed,
		ProviderCallDuration,
		FallbackAttempts,
		RunsInFlight,
	)
}

// StartMetricsServer 启动独立的 metrics HTTP 服务器
func StartMetricsServer(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(":"+port, mux); err != nil {
			panic("failed to start metrics server: " + err.Error())
		}
	}()
}

// RecordRequest 记录请求指标的助手函数
func RecordRequest(service, method, status string, duration time.Duration) {
	RequestsTotal.WithLabelValues(service, method, status).Inc()
	RequestDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}

// RecordProviderCall records one round trip to the image provider.
func RecordProviderCall(call string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ProviderCallDuration.WithLabelValues(call, status).Observe(duration.Seconds())
}
