package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansTotal counts processed scans by outcome action (entry, exit,
	// already_completed, rejected).
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusops_scans_total",
		Help: "Identity scans processed, by resulting action.",
	}, []string{"action"})

	// SessionConflictsTotal counts session writes rejected by the conflict
	// detector.
	SessionConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campusops_session_conflicts_total",
		Help: "Session create/update requests rejected due to schedule conflicts.",
	})

	// SessionsAdvancedTotal counts sessions auto-promoted to COMPLETED.
	SessionsAdvancedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campusops_sessions_auto_advanced_total",
		Help: "Sessions promoted from SCHEDULED to COMPLETED by the auto-advancer.",
	})
)
