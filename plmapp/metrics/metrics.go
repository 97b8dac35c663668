// Package metrics exposes counters for the lifecycle engine. The /metrics
// endpoint is served by promhttp in the server entrypoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ObjectsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plm_objects_created_total", Help: "Objects created, by type.",
	}, []string{"type"})

	Promotions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plm_promotions_total", Help: "Successful state promotions.",
	})

	Demotions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plm_demotions_total", Help: "Successful state demotions.",
	})

	Cancellations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plm_cancellations_total", Help: "Objects moved to the cancelled lifecycle.",
	})

	Revisions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plm_revisions_total", Help: "New revisions created.",
	})

	PromotionApprovals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plm_promotion_approvals_total", Help: "Recorded promotion approvals.",
	})
)
