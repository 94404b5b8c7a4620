package admin

import "github.com/prometheus/client_golang/prometheus"

// Metrics collects the ambient counters/gauges surfaced at /metrics (spec
// §6's operator surface), sourced from the storage-plane components
// rather than re-deriving them from logs.
type Metrics struct {
	BlocksWritten     prometheus.Counter
	BlocksRead        prometheus.Counter
	BlocksDeleted     prometheus.Counter
	ActiveConnections prometheus.Gauge
	ReplicationQueue  prometheus.Gauge
	ReplicationDone   prometheus.Counter
	ReplicationFailed prometheus.Counter
	DiskIOPending     prometheus.Gauge
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		BlocksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "distfs_blocks_written_total",
			Help: "Total blocks successfully written to local storage.",
		}),
		BlocksRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "distfs_blocks_read_total",
			Help: "Total blocks successfully read from local storage.",
		}),
		BlocksDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "distfs_blocks_deleted_total",
			Help: "Total blocks deleted from local storage.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "distfs_active_connections",
			Help: "Currently open reactor connections.",
		}),
		ReplicationQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "distfs_replication_queue_depth",
			Help: "Replication tasks currently waiting in the queue (tasks being executed are not counted).",
		}),
		ReplicationDone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "distfs_replication_completed_total",
			Help: "Replication tasks that completed with at least one successful target.",
		}),
		ReplicationFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "distfs_replication_failed_total",
			Help: "Replication tasks that exhausted retries with zero successful targets.",
		}),
		DiskIOPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "distfs_diskio_pending",
			Help: "Disk I/O requests submitted but not yet completed.",
		}),
	}
	registry.MustRegister(
		m.BlocksWritten, m.BlocksRead, m.BlocksDeleted,
		m.ActiveConnections, m.ReplicationQueue,
		m.ReplicationDone, m.ReplicationFailed, m.DiskIOPending,
	)
	return m
}
