package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/promo-api/internal/events"
)

// PGJournal appends domain events to the promo_events table.
type PGJournal struct {
	Pool *pgxpool.Pool
}

const insertEventSQL = `
INSERT INTO promo_events (id, topic, product_id, payload, occurred_at)
VALUES ($1, $2, $3, $4, $5)`

// Append implements events.Journal.
func (j PGJournal) Append(ctx context.Context, event events.Event) error {
	if j.Pool == nil {
		return errors.New("repo: journal pool not configured")
	}
	payload := event.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if _, err := j.Pool.Exec(ctx, insertEventSQL,
		event.ID, event.Topic, event.ProductID, payload, event.OccurredAt); err != nil {
		return fmt.Errorf("repo: append event: %w", err)
	}
	return nil
}
