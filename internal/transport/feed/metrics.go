// internal/transport/feed/metrics.go
package feed

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once       sync.Once
	wsStates   *prometheus.CounterVec
	wsErrors   *prometheus.CounterVec
	wsUpdates  *prometheus.CounterVec
	wsAttempts prometheus.Gauge
)

func RegisterMetrics(r prometheus.Registerer) {
	once.Do(func() {
		wsStates = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feed", Subsystem: "transport", Name: "state_transitions_total",
			Help: "Feed state transitions by resulting state",
		}, []string{"state"})

		wsErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feed", Subsystem: "transport", Name: "errors_total",
			Help: "Total categorized feed errors",
		}, []string{"type"})

		wsUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feed", Subsystem: "transport", Name: "updates_total",
			Help: "Snapshots forwarded downstream",
		}, []string{"kind"})

		wsAttempts = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "feed", Subsystem: "transport", Name: "reconnect_attempts",
			Help: "Consecutive reconnect attempts since last successful open",
		})

		collectors := []prometheus.Collector{wsStates, wsErrors, wsUpdates, wsAttempts}
		for _, c := range collectors {
			_ = r.Register(c)
		}
	})
}

func IncState(state string)    { wsStates.WithLabelValues(state).Inc() }
func IncError(errType string)  { wsErrors.WithLabelValues(errType).Inc() }
func IncUpdate(kind string)    { wsUpdates.WithLabelValues(kind).Inc() }
func SetAttempts(attempts int) { wsAttempts.Set(float64(attempts)) }
