package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProcessStarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meerkat_process_starts_total",
			Help: "Total number of supervised process spawns",
		},
		[]string{"slot"},
	)

	SpawnFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meerkat_spawn_failures_total",
			Help: "Total number of failed process spawns",
		},
		[]string{"slot"},
	)

	ProcessExits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meerkat_process_exits_total",
			Help: "Total number of supervised process exits",
		},
		[]string{"slot", "reason"},
	)

	SweptProcesses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meerkat_swept_processes_total",
			Help: "Total number of untracked processes killed by name",
		},
		[]string{"binary"},
	)

	OutputLines = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meerkat_output_lines_total",
			Help: "Total number of process output lines forwarded",
		},
		[]string{"slot", "type"},
	)

	OverlongLines = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meerkat_output_overlong_lines_total",
			Help: "Total number of process output lines dropped for exceeding the line limit",
		},
		[]string{"slot"},
	)

	TailRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meerkat_tail_records_total",
			Help: "Total number of tailed records forwarded",
		},
	)

	TailDecodeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meerkat_tail_decode_errors_total",
			Help: "Total number of tailed lines dropped as malformed",
		},
	)

	TailBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meerkat_tail_bytes_total",
			Help: "Total number of bytes consumed from the tailed file",
		},
	)

	SinkDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meerkat_sink_drops_total",
			Help: "Total number of events a sink failed to accept",
		},
		[]string{"topic"},
	)

	RunningSlots = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meerkat_slot_running",
			Help: "Whether a slot currently has a tracked process (1) or not (0)",
		},
		[]string{"slot"},
	)
)
