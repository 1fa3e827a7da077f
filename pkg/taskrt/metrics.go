package taskrt

import "github.com/prometheus/client_golang/prometheus"

const namespace = "queryrt_taskrt"

var (
	metricTasksActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_active",
			Help:      "number of tasks registered with the manager and not yet reaped",
		},
	)

	metricTasksCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_created_total",
			Help:      "total tasks ever registered with the manager",
		},
	)

	metricTasksFinished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "total tasks whose output buffer reached FINISHED and was reaped",
		},
	)

	metricReapCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reap_cycles_total",
			Help:      "total reaper ticks, partitioned by whether any task was reaped",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		metricTasksActive,
		metricTasksCreated,
		metricTasksFinished,
		metricReapCycles,
	)
}
