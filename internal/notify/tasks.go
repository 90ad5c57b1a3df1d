// Package notify turns domain events into admin notifications. The API
// process enqueues asynq tasks; the worker process renders and sends email.
package notify

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task type names registered on the asynq mux.
const (
	TaskTierSoldOut = "promo:tier_sold_out"
	TaskExhausted   = "promo:exhausted"
)

// TierSoldOutPayload describes a tier that just filled up.
type TierSoldOutPayload struct {
	ProductID       string  `json:"productId"`
	ProductName     string  `json:"productName"`
	TierIndex       int     `json:"tierIndex"`
	DiscountPercent float64 `json:"discountPercent"`
	Capacity        int     `json:"capacity"`
}

// ExhaustedPayload describes a promotion whose budget is fully consumed.
type ExhaustedPayload struct {
	ProductID     string `json:"productId"`
	ProductName   string `json:"productName"`
	TotalQuantity int    `json:"totalQuantity"`
}

// NewTierSoldOutTask builds the queue task for a filled tier.
func NewTierSoldOutTask(p TierSoldOutPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("notify: encode tier sold out payload: %w", err)
	}
	return asynq.NewTask(TaskTierSoldOut, data), nil
}

// NewExhaustedTask builds the queue task for an exhausted promotion.
func NewExhaustedTask(p ExhaustedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("notify: encode exhausted payload: %w", err)
	}
	return asynq.NewTask(TaskExhausted, data), nil
}
