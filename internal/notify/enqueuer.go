package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/promo-api/internal/events"
	"github.com/noah-isme/promo-api/internal/resilience"
)

// TaskEnqueuer forwards sold-out and exhausted events to the task queue so
// email delivery happens off the request path. Other topics are ignored.
// When a Breaker is set, enqueue attempts are shed while the queue backend
// is down instead of paying a timeout per commit.
type TaskEnqueuer struct {
	Client  *asynq.Client
	Breaker *resilience.Breaker
}

// Notify implements events.Notifier.
func (e TaskEnqueuer) Notify(ctx context.Context, event events.Event) error {
	if e.Client == nil {
		return nil
	}
	var task *asynq.Task
	var err error
	switch event.Topic {
	case events.TopicTierSoldOut:
		var p TierSoldOutPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return fmt.Errorf("notify: decode %s payload: %w", event.Topic, err)
		}
		task, err = NewTierSoldOutTask(p)
	case events.TopicExhausted:
		var p ExhaustedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return fmt.Errorf("notify: decode %s payload: %w", event.Topic, err)
		}
		task, err = NewExhaustedTask(p)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	enqueue := func() error {
		_, err := e.Client.EnqueueContext(ctx, task, asynq.MaxRetry(5))
		return err
	}
	if e.Breaker != nil {
		err = e.Breaker.Do(enqueue)
	} else {
		err = enqueue()
	}
	if err != nil {
		return fmt.Errorf("notify: enqueue %s: %w", task.Type(), err)
	}
	return nil
}
