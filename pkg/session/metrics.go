package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rovelink_commands_sent_total",
		Help: "Commands written to the control channel",
	}, []string{"schema"})
	commandsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rovelink_commands_dropped_total",
		Help: "Commands dropped before sending",
	}, []string{"reason"})
	telemetryReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rovelink_telemetry_received_total",
		Help: "Decoded telemetry messages",
	}, []string{"kind"})
	decodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rovelink_telemetry_decode_errors_total",
		Help: "Control channel messages that failed to decode",
	})
	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rovelink_session_transitions_total",
		Help: "Session state transitions",
	}, []string{"state"})
)

const (
	dropNotConnected = "not_connected"
	dropChannel      = "channel_not_open"
	dropSend         = "send_error"
)
