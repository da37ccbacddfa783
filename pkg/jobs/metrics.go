package jobs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	enqueueTotal  *prometheus.CounterVec
	dispatchTotal *prometheus.CounterVec
	failedTotal   *prometheus.CounterVec
	scheduleTotal *prometheus.CounterVec

	dispatchLatency *prometheus.HistogramVec

	queued       *prometheus.GaugeVec
	processing   *prometheus.GaugeVec
	runnerLeader *prometheus.GaugeVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		enqueueTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobs",
			Name:      "enqueue_total",
			Help:      "Total number of enqueued jobs.",
		}, []string{"queue", "task"}),
		dispatchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobs",
			Name:      "dispatch_total",
			Help:      "Total number of handler invocations by outcome.",
		}, []string{"queue", "task", "result"}),
		failedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobs",
			Name:      "failed_total",
			Help:      "Total number of jobs that ended in failed state.",
		}, []string{"queue", "task"}),
		scheduleTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobs",
			Name:      "schedule_total",
			Help:      "Scheduled task firings by decision.",
		}, []string{"task", "decision"}),
		dispatchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jobs",
			Name:      "dispatch_latency_seconds",
			Help:      "Latency distribution for job handlers.",
			Buckets: []float64{
				0.01, 0.05, 0.1, 0.5,
				1, 2, 5, 10, 30, 60, 120,
			},
		}, []string{"queue", "task", "result"}),
		queued: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "jobs",
			Name:      "queued",
			Help:      "Current number of queued jobs.",
		}, []string{"queue"}),
		processing: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "jobs",
			Name:      "processing",
			Help:      "Current number of jobs being processed.",
		}, []string{"queue"}),
		runnerLeader: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "jobs",
			Name:      "runner_leader",
			Help:      "Whether current instance holds the runner lock for a queue set (1/0).",
		}, []string{"queues"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
