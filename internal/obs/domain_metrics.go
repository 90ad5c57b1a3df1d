package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var domainOnce sync.Once

// Collectors for the allocation core. They are usable before registration so
// unit tests never need a registry.
var (
	// AllocationsTotal counts commit outcomes by result.
	AllocationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "promo_allocations_total",
		Help: "Count of allocation commit outcomes.",
	}, []string{"result"})
	// AllocationConflictsTotal counts conditional writes lost to a concurrent commit.
	AllocationConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "promo_allocation_conflicts_total",
		Help: "Number of conditional writes that lost a version race.",
	})
	// AllocationUnitsTotal counts promotional units durably allocated.
	AllocationUnitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "promo_allocation_units_total",
		Help: "Total promotional units allocated across all commits.",
	})
	// TierSoldOutTotal counts tier sold-out transitions.
	TierSoldOutTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "promo_tier_sold_out_total",
		Help: "Number of tiers that transitioned to sold out.",
	})
)

// MustRegisterDomainMetrics registers the allocation collectors exactly once.
func MustRegisterDomainMetrics(reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		AllocationsTotal = registerCounterVec(reg, AllocationsTotal)
		AllocationConflictsTotal = registerCounter(reg, AllocationConflictsTotal)
		AllocationUnitsTotal = registerCounter(reg, AllocationUnitsTotal)
		TierSoldOutTotal = registerCounter(reg, TierSoldOutTotal)
	})
}
