package outputbuffer

import "github.com/prometheus/client_golang/prometheus"

const namespace = "queryrt_output_buffer"

var (
	metricBufferedBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffered_bytes",
			Help:      "current bytes held in the master queue and overflow queue",
		},
		[]string{"queue"},
	)

	metricPagesAdded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_added_total",
			Help:      "total pages admitted into the buffer across its lifetime",
		},
	)

	metricPagesOverflowed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_overflowed_total",
			Help:      "total pages whose admission pushed the buffer over budget, deferring the producer's signal on the backpressure queue",
		},
	)

	metricPendingReads = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_reads",
			Help:      "current number of parked Get calls awaiting data or closure",
		},
	)

	metricAborts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consumer_aborts_total",
			Help:      "total consumer aborts, partitioned by whether the consumer had registered yet",
		},
		[]string{"registered"},
	)

	metricStateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "total lifecycle transitions, partitioned by resulting state",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(
		metricBufferedBytes,
		metricPagesAdded,
		metricPagesOverflowed,
		metricPendingReads,
		metricAborts,
		metricStateTransitions,
	)
}
