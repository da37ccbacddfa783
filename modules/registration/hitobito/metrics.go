package hitobito

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	throttledTotal *prometheus.CounterVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		requestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hitobito",
			Name:      "request_total",
			Help:      "Requests sent to the membership registry.",
		}, []string{"interface", "method", "status"}),
		requestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hitobito",
			Name:      "request_latency_seconds",
			Help:      "Latency of registry requests.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		}, []string{"interface", "method"}),
		throttledTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hitobito",
			Name:      "throttled_total",
			Help:      "Requests delayed by the outbound rate limiter.",
		}, []string{"interface"}),
	}
})
