package events

// Topic constants for domain events emitted by the allocation core.
const (
	// TopicAllocated fires on every successful commit.
	TopicAllocated = "promo.allocated"
	// TopicTierSoldOut fires once per tier, on the commit that fills it.
	TopicTierSoldOut = "promo.tier_sold_out"
	// TopicExhausted fires on the commit that consumes the last promotional unit.
	TopicExhausted = "promo.exhausted"
	// TopicConfigUpdated records every admin change to a tier schedule.
	TopicConfigUpdated = "promo.config_updated"
)
