package scheduler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/marketgps/internal/database"
	"github.com/aristath/marketgps/internal/domain"
)

// Handler executes one claimed queue item. Implemented by the core so
// the worker stays ignorant of job internals.
type Handler interface {
	HandleQueueItem(ctx context.Context, item domain.QueueItem) error
}

// Worker drains the persistent job queue: each tick claims up to
// MaxJobs PENDING items atomically and dispatches them.
type Worker struct {
	store   *database.Store
	handler Handler
	scope   *domain.MarketScope // nil = any scope
	maxJobs int
	log     zerolog.Logger
}

// NewWorker builds a queue worker. scope narrows the claim to one
// market scope; maxJobs bounds the items processed per tick.
func NewWorker(store *database.Store, handler Handler, scope *domain.MarketScope, maxJobs int, log zerolog.Logger) *Worker {
	if maxJobs <= 0 {
		maxJobs = 5
	}
	return &Worker{
		store:   store,
		handler: handler,
		scope:   scope,
		maxJobs: maxJobs,
		log:     log.With().Str("component", "queue_worker").Logger(),
	}
}

// Tick claims and processes up to maxJobs queue items. Returns how
// many items it handled.
func (w *Worker) Tick(ctx context.Context) (int, error) {
	handled := 0
	for handled < w.maxJobs {
		if err := ctx.Err(); err != nil {
			return handled, err
		}

		item, err := w.store.FetchNextJobAtomic(ctx, w.scope)
		if err != nil {
			return handled, fmt.Errorf("worker: claim: %w", err)
		}
		if item == nil {
			return handled, nil
		}

		w.log.Info().
			Str("id", item.ID).
			Str("job_type", string(item.JobType)).
			Str("scope", string(item.MarketScope)).
			Msg("processing queue item")

		if err := w.handler.HandleQueueItem(ctx, *item); err != nil {
			w.log.Error().Err(err).Str("id", item.ID).Msg("queue item failed")
			if markErr := w.store.MarkJobFailed(ctx, item.ID, err); markErr != nil {
				return handled, markErr
			}
		} else if err := w.store.MarkJobDone(ctx, item.ID); err != nil {
			return handled, err
		}
		handled++
	}
	return handled, nil
}
