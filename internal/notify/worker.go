package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/promo-api/internal/common"
)

// EmailWorker renders and delivers admin notification emails. It runs inside
// the worker process behind the asynq mux.
type EmailWorker struct {
	Mail       common.EmailSender
	AdminEmail string
	Logger     zerolog.Logger
}

// Register attaches the worker's handlers to mux.
func (w *EmailWorker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTierSoldOut, w.HandleTierSoldOut)
	mux.HandleFunc(TaskExhausted, w.HandleExhausted)
}

// HandleTierSoldOut emails the admin that a discount tier has filled.
func (w *EmailWorker) HandleTierSoldOut(_ context.Context, task *asynq.Task) error {
	var p TierSoldOutPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("notify: decode %s: %w", task.Type(), err)
	}
	if w.Mail == nil || w.AdminEmail == "" {
		w.Logger.Warn().Str("product_id", p.ProductID).Msg("tier sold out notification dropped, email not configured")
		return nil
	}
	subject := fmt.Sprintf("Discount tier sold out: %s", displayName(p.ProductName, p.ProductID))
	body := fmt.Sprintf(
		"<p>Tier %d (%.2f%% off, %d units) for <strong>%s</strong> has sold out.</p>"+
			"<p>Orders now draw from the next available tier.</p>",
		p.TierIndex+1, p.DiscountPercent, p.Capacity, displayName(p.ProductName, p.ProductID),
	)
	if err := w.Mail.Send(w.AdminEmail, subject, body); err != nil {
		return fmt.Errorf("notify: send tier sold out email: %w", err)
	}
	w.Logger.Info().
		Str("product_id", p.ProductID).
		Int("tier", p.TierIndex).
		Msg("tier sold out email sent")
	return nil
}

// HandleExhausted emails the admin that the promotional budget is gone.
func (w *EmailWorker) HandleExhausted(_ context.Context, task *asynq.Task) error {
	var p ExhaustedPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("notify: decode %s: %w", task.Type(), err)
	}
	if w.Mail == nil || w.AdminEmail == "" {
		w.Logger.Warn().Str("product_id", p.ProductID).Msg("exhausted notification dropped, email not configured")
		return nil
	}
	subject := fmt.Sprintf("Promotion exhausted: %s", displayName(p.ProductName, p.ProductID))
	body := fmt.Sprintf(
		"<p>All %d promotional units of <strong>%s</strong> have been sold.</p>"+
			"<p>New orders are charged the regular price.</p>",
		p.TotalQuantity, displayName(p.ProductName, p.ProductID),
	)
	if err := w.Mail.Send(w.AdminEmail, subject, body); err != nil {
		return fmt.Errorf("notify: send exhausted email: %w", err)
	}
	w.Logger.Info().Str("product_id", p.ProductID).Msg("promotion exhausted email sent")
	return nil
}

func displayName(name, id string) string {
	if name != "" {
		return name
	}
	return id
}
