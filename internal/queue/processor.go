package queue

import (
	"context"

	"ticketline/internal/model"
)

// ProcessQueue hands newly free capacity to the longest-waiting entries.
// This is the only place a waiting entry ever becomes offered. Safe to call
// redundantly: with no free spots or no waiting entries it is a no-op.
func (e *Engine) ProcessQueue(ctx context.Context, eventID int64) error {
	var offered []model.WaitingListEntry

	err := e.store.WithEventTx(ctx, eventID, func(ctx context.Context, ev *model.Event) error {
		var err error
		offered, err = e.promoteWaiting(ctx, ev)
		return err
	})
	if err != nil {
		return err
	}
	return e.scheduleOffers(ctx, offered)
}

// promoteWaiting runs inside an open event transaction: it offers free spots
// to waiting entries in FIFO order and returns the entries it promoted.
// Callbacks for them must be scheduled by the caller after the commit.
func (e *Engine) promoteWaiting(ctx context.Context, ev *model.Event) ([]model.WaitingListEntry, error) {
	avail, err := e.availability(ctx, ev)
	if err != nil {
		return nil, err
	}
	if avail.AvailableSpots <= 0 {
		return nil, nil
	}

	waiting, err := e.store.NextWaiting(ctx, ev.ID, avail.AvailableSpots)
	if err != nil {
		return nil, err
	}

	expiresAt := e.clk.Now().Add(e.offerTTL)
	for i := range waiting {
		if err := waiting[i].Offer(expiresAt); err != nil {
			return nil, err
		}
		if err := e.store.UpdateEntry(ctx, &waiting[i]); err != nil {
			return nil, err
		}
	}
	return waiting, nil
}

// scheduleOffers requests the expiration callback for each freshly offered
// entry. One failed schedule must not starve the entries behind it; keep
// going and surface the first failure.
func (e *Engine) scheduleOffers(ctx context.Context, offered []model.WaitingListEntry) error {
	var schedErr error
	for i := range offered {
		if err := e.scheduleExpiry(ctx, &offered[i]); err != nil {
			e.log.Error().Err(err).Int64("entry_id", offered[i].ID).Int64("event_id", offered[i].EventID).
				Msg("failed to schedule offer expiration")
			if schedErr == nil {
				schedErr = err
			}
		}
	}
	return schedErr
}
