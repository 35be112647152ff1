package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthzDecisions counts policy decisions by action and outcome. The
	// outcome label is "allow" or the stable denial reason.
	AuthzDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_authz_decisions_total",
		Help: "Total authorization decisions by action and outcome",
	}, []string{"action", "outcome"})

	// ResolverOutcomes counts direct-conversation resolutions by outcome:
	// found, created, retried, invariant_violation.
	ResolverOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_direct_resolver_outcomes_total",
		Help: "Total direct-conversation resolver outcomes",
	}, []string{"outcome"})

	// ActivitySyncEvents counts activity-sync callbacks by result:
	// applied, ignored, not_found.
	ActivitySyncEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_activity_sync_events_total",
		Help: "Total activity-sync callbacks by result",
	}, []string{"result"})

	// MembershipMutations counts membership lifecycle changes by kind:
	// join, leave, remove, role_change.
	MembershipMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_membership_mutations_total",
		Help: "Total membership mutations by kind",
	}, []string{"kind"})

	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})
)
