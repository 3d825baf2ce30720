package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ProtocolRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_protocol_runs_total",
			Help: "Edit, regenerate and stop-and-save runs by the stage they ended in.",
		},
		[]string{"protocol", "stage", "result"},
	)
	Streams = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_streams_total",
			Help: "Response streams by how they ended.",
		},
		[]string{"kind", "result"},
	)
	SendingBlocked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_sending_blocked",
			Help: "1 while new user messages are rejected.",
		},
	)
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_notifications_total",
			Help: "Notifications delivered to the sink.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(ProtocolRuns)
	prometheus.MustRegister(Streams)
	prometheus.MustRegister(SendingBlocked)
	prometheus.MustRegister(Notifications)
}

// Stream results.
const (
	StreamDone    = "done"
	StreamStopped = "stopped"
	StreamFailed  = "failed"
)
