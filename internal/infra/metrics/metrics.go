package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "listener_messages_received_total",
		Help: "Сообщения, принятые из активных каналов",
	})
	MessagesForwarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forward_messages_total",
		Help: "Сообщения, доставленные в каналы-назначения",
	}, []string{"media_kind"})
	ForwardErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forward_errors_total",
		Help: "Ошибки доставки сообщений",
	})
	DedupSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forward_dedup_skipped_total",
		Help: "Сообщения, пропущенные как дубликаты",
	})
	AlbumsFlushed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "listener_albums_flushed_total",
		Help: "Собранные и отправленные в очередь альбомы",
	})
	JobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_jobs_total",
		Help: "Обработанные задачи очередей по исходу",
	}, []string{"queue", "outcome"})
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "queue_depth",
		Help: "Текущая глубина очередей",
	}, []string{"queue"})
	RateLimiterWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rate_limiter_wait_seconds",
		Help:    "Время ожидания в лимитере перед отправкой",
		Buckets: prometheus.DefBuckets,
	})
	CleanupChannels = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cleanup_channels_total",
		Help: "Результаты очистки осиротевших каналов",
	}, []string{"outcome"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		MessagesReceived,
		MessagesForwarded,
		ForwardErrors,
		DedupSkipped,
		AlbumsFlushed,
		JobsProcessed,
		QueueDepth,
		RateLimiterWait,
		CleanupChannels,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}
