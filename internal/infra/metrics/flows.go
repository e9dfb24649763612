package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(flowTransitionsTotal, domainActionsTotal, claimsTotal) }

var (
	flowTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_transitions_total",
			Help: "Conversation session transitions by flow and resulting step.",
		},
		[]string{"flow", "step"}, // step 'cleared' marks a terminal transition
	)

	domainActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domain_actions_total",
			Help: "Payout and promotion actions by outcome.",
		},
		[]string{"action", "outcome"}, // outcome: 'success', 'rejected', 'error'
	)

	claimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promotion_claims_total",
			Help: "Deferred claim verifications by stage.",
		},
		[]string{"stage"}, // 'scheduled', 'credited', 'skipped', 'cancelled'
	)
)

func IncFlowTransition(flow, step string) {
	flowTransitionsTotal.WithLabelValues(norm(flow), norm(step)).Inc()
}

func IncDomainAction(action, outcome string) {
	domainActionsTotal.WithLabelValues(norm(action), norm(outcome)).Inc()
}

func AddClaims(stage string, n int) {
	claimsTotal.WithLabelValues(norm(stage)).Add(float64(n))
}
