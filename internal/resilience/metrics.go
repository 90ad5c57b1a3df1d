package resilience

import "github.com/prometheus/client_golang/prometheus"

var (
	// BreakerState tracks the current state per target (0 closed, 1 open,
	// 2 half-open).
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "promo_breaker_state",
		Help: "Current circuit breaker state per target.",
	}, []string{"target"})

	// BreakerTransitions counts state changes per target.
	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "promo_breaker_transitions_total",
		Help: "Circuit breaker state transitions.",
	}, []string{"target", "from", "to"})
)

// MustRegister attaches the breaker collectors to reg, defaulting to the
// global registerer.
func MustRegister(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{BreakerState, BreakerTransitions} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			panic(err)
		}
	}
}
