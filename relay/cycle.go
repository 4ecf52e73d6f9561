package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/watchrelay/watchrelay/core"
)

// CycleResult summarizes one poll cycle. Purged records report through
// PurgeLedger's own return value.
type CycleResult struct {
	Fetched   int
	Skipped   int
	Delivered int
	Failed    int
}

// RunCycle executes one fetch/dedup/notify pass. Cycle-level failures
// (credential resolution, fetch after the reactive retry) abort with no
// state mutated; per-item failures are isolated and surface only in the
// result counts.
func (r *Relay) RunCycle(ctx context.Context) (CycleResult, error) {
	if r == nil {
		return CycleResult{}, fmt.Errorf("relay: relay is nil")
	}
	startedAt := r.now()

	result, err := r.runCycle(ctx)
	if err != nil && r.errorMapper != nil {
		if mapped := r.errorMapper(err); mapped != nil {
			err = mapped
		}
	}
	r.observeOperation(ctx, startedAt, "cycle", err, map[string]any{
		"fetched":   result.Fetched,
		"skipped":   result.Skipped,
		"delivered": result.Delivered,
		"failed":    result.Failed,
	})
	return result, err
}

func (r *Relay) runCycle(ctx context.Context) (CycleResult, error) {
	var result CycleResult

	credential, err := r.lifecycle.EnsureValid(ctx)
	if err != nil {
		return result, err
	}

	since := r.now().UTC().Add(-r.lookback)
	events, err := r.fetchWithAuthRetry(ctx, since, credential)
	if err != nil {
		return result, err
	}
	result.Fetched = len(events)
	if len(events) == 0 {
		return result, nil
	}

	// Oldest first, so notifications land in watch order.
	events = core.SortEventsOldestFirst(events)

	posted := false
	for _, event := range events {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		delivered, lookupErr := r.ledger.IsDelivered(ctx, event.ID)
		if lookupErr != nil {
			// Treat an unreadable ledger as "not delivered": a duplicate
			// post beats silently dropping the event.
			r.logger.Warn("ledger lookup failed, delivering anyway",
				"event_id", event.ID,
				"error", lookupErr.Error(),
			)
			delivered = false
		}
		if delivered {
			result.Skipped++
			continue
		}

		if posted && r.itemDelay > 0 {
			if waitErr := waitWithContext(ctx, r.itemDelay); waitErr != nil {
				return result, waitErr
			}
		}

		if itemErr := r.deliverEvent(ctx, event); itemErr != nil {
			result.Failed++
			r.logger.Error("event delivery failed",
				"event_id", event.ID,
				"title", event.Title(),
				"error", itemErr.Error(),
			)
			continue
		}
		posted = true
		result.Delivered++
		r.logger.Info("event delivered",
			"event_id", event.ID,
			"title", event.Title(),
			"kind", string(event.Kind),
		)
	}
	return result, nil
}

// fetchWithAuthRetry fetches history, refreshing the credential and retrying
// exactly once when the source rejects it mid-window.
func (r *Relay) fetchWithAuthRetry(ctx context.Context, since time.Time, credential core.Credential) ([]core.Event, error) {
	events, err := r.source.Fetch(ctx, since, r.historyLimit, credential.AccessToken)
	if err == nil {
		return events, nil
	}
	if !core.IsAuthError(err) {
		return nil, err
	}

	r.logger.Warn("source rejected credential, refreshing and retrying once",
		"error", err.Error(),
	)
	refreshed, refreshErr := r.lifecycle.Refresh(ctx)
	if refreshErr != nil {
		return nil, refreshErr
	}
	return r.source.Fetch(ctx, since, r.historyLimit, refreshed.AccessToken)
}

func (r *Relay) deliverEvent(ctx context.Context, event core.Event) error {
	var metadata *core.Metadata
	if r.enricher != nil {
		metadata = r.enricher.Lookup(ctx, event)
	}

	payload, err := r.composer.Compose(event, metadata)
	if err != nil {
		return err
	}
	if err := r.sink.Send(ctx, payload); err != nil {
		return err
	}

	// The send already happened. Surfacing a mark failure means the event
	// counts as failed and is retried next cycle, at the cost of a
	// duplicate post.
	if err := r.ledger.MarkDelivered(ctx, event.ID); err != nil {
		return core.WrapStoreError(err, "record delivery")
	}
	return nil
}

// PurgeLedger trims delivery records older than the horizon. A zero or
// negative horizon falls back to the configured retention.
func (r *Relay) PurgeLedger(ctx context.Context, horizon time.Duration) (int, error) {
	if r == nil {
		return 0, fmt.Errorf("relay: relay is nil")
	}
	if horizon <= 0 {
		horizon = r.retention
	}
	startedAt := r.now()
	purged, err := r.ledger.PurgeOlderThan(ctx, horizon)
	r.observeOperation(ctx, startedAt, "purge", err, map[string]any{
		"purged": purged,
	})
	return purged, err
}

// Run executes cycles on the poll interval until the context is canceled.
// The first cycle runs immediately. A failed cycle is logged and the loop
// keeps going; only context cancellation stops it.
func (r *Relay) Run(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("relay: relay is nil")
	}

	r.runCycleGuarded(ctx)
	r.logger.Info("next check scheduled", "in", r.pollInterval.String())

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.runCycleGuarded(ctx)
			r.logger.Info("next check scheduled", "in", r.pollInterval.String())
		}
	}
}

func (r *Relay) runCycleGuarded(ctx context.Context) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("cycle panicked", "panic", fmt.Sprint(recovered))
		}
	}()
	if _, err := r.RunCycle(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("cycle failed", "error", err.Error())
	}
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
