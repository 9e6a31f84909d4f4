package telemetry

import "github.com/prometheus/client_golang/prometheus"

const lecturecastNamespace string = "lecturecast"

var (
	promBroadcastViewers *prometheus.GaugeVec
	SignalingOperations  *prometheus.CounterVec
)

func init() {
	promBroadcastViewers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: lecturecastNamespace,
		Subsystem: "broadcast",
		Name:      "viewers",
	}, []string{"session_id"})

	SignalingOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: lecturecastNamespace,
			Subsystem: "node",
			Name:      "signaling_operation",
		},
		[]string{"type", "status", "error_type"},
	)

	prometheus.MustRegister(promBroadcastViewers)
	prometheus.MustRegister(SignalingOperations)
}

func ViewerConnected(sessionID string) {
	promBroadcastViewers.WithLabelValues(sessionID).Inc()
}

func ViewerGone(sessionID string) {
	promBroadcastViewers.WithLabelValues(sessionID).Dec()
}

func BroadcastStopped(sessionID string) {
	promBroadcastViewers.DeleteLabelValues(sessionID)
}
