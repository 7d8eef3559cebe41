package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// UpdatesTotal — общее число снапшотов, полученных из фида.
	UpdatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "feed",
		Subsystem: "ws",
		Name:      "updates_total",
		Help:      "Total number of snapshots received from the feed",
	})

	// DecodeErrors — число кадров, не прошедших декодирование.
	DecodeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "feed",
		Subsystem: "ws",
		Name:      "decode_errors_total",
		Help:      "Total number of frames that failed to decode",
	})

	// PublishErrors — число ошибок при публикации тиков в Kafka.
	PublishErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "feed",
		Subsystem: "kafka",
		Name:      "publish_errors_total",
		Help:      "Total number of errors when publishing ticks to Kafka",
	})

	// PublishLatency — гистограмма задержек от снапшота до публикации в Kafka.
	PublishLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "feed",
		Subsystem: "pipeline",
		Name:      "publish_latency_seconds",
		Help:      "Latency from receiving a snapshot to publishing to Kafka (seconds)",
		Buckets:   prometheus.DefBuckets,
	})
)

// Register регистрирует все метрики в заданном реестре.
// Можно вызвать без аргументов, чтобы зарегистрировать в DefaultRegisterer.
func Register(registerers ...prometheus.Registerer) {
	once.Do(func() {
		var reg prometheus.Registerer
		if len(registerers) > 0 && registerers[0] != nil {
			reg = registerers[0]
		} else {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(
			UpdatesTotal,
			DecodeErrors,
			PublishErrors,
			PublishLatency,
		)
	})
}
