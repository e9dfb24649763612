package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(pushConnections, pushEventsTotal, pushHandshakesTotal) }

var (
	pushConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "push_connections",
			Help: "Currently authenticated push connections.",
		},
	)

	pushEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_events_total",
			Help: "Outbound push events by type and result.",
		},
		[]string{"type", "result"}, // result: 'delivered', 'offline', 'dropped'
	)

	pushHandshakesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_handshakes_total",
			Help: "Push handshakes by result.",
		},
		[]string{"result"}, // 'ok', 'auth_error', 'timeout'
	)
)

func PushConnected()    { pushConnections.Inc() }
func PushDisconnected() { pushConnections.Dec() }

func IncPushEvent(eventType, result string) {
	pushEventsTotal.WithLabelValues(norm(eventType), norm(result)).Inc()
}

func IncPushHandshake(result string) {
	pushHandshakesTotal.WithLabelValues(norm(result)).Inc()
}
