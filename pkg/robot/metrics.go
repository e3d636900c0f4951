package robot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rovelink_robot_commands_received_total",
		Help: "Commands decoded from the control channel",
	}, []string{"schema"})
	commandsStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rovelink_robot_commands_stale_total",
		Help: "Commands ignored because a newer one was applied",
	})
	commandErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rovelink_robot_command_decode_errors_total",
		Help: "Control channel messages that failed to decode",
	})
	telemetrySent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rovelink_robot_telemetry_sent_total",
		Help: "Telemetry messages written to the control channel",
	})
	queueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rovelink_robot_telemetry_queue_dropped_total",
		Help: "Telemetry dropped because the queue was full",
	})
	peersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rovelink_robot_peers_active",
		Help: "Connected operator peers",
	})
)
