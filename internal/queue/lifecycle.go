package queue

import (
	"context"
	"errors"

	"ticketline/internal/model"
)

// ExpireOffer is the scheduled expiration callback. A callback that arrives
// after the entry already left the offered state, or for an entry that no
// longer exists, is a defined no-op; the queue is reprocessed, as its own
// transaction, only when this call actually freed capacity.
func (e *Engine) ExpireOffer(ctx context.Context, msg OfferExpiry) error {
	expired := false

	err := e.store.WithEventTx(ctx, msg.EventID, func(ctx context.Context, ev *model.Event) error {
		entry, err := e.store.GetEntry(ctx, msg.EntryID)
		if err != nil {
			if errors.Is(err, model.ErrEntryNotFound) {
				return nil
			}
			return err
		}
		if entry.Status != model.EntryOffered {
			return nil
		}
		if err := entry.Expire(); err != nil {
			return err
		}
		if err := e.store.UpdateEntry(ctx, entry); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil {
		return err
	}

	if !expired {
		return nil
	}
	e.log.Info().Int64("entry_id", msg.EntryID).Int64("event_id", msg.EventID).Msg("offer expired")
	return e.ProcessQueue(ctx, msg.EventID)
}

// Release gives up an offered entry ahead of its deadline and reoffers the
// freed spot once the expiry commits. Only offered entries can be released;
// anything else fails with model.ErrInvalidOfferState.
func (e *Engine) Release(ctx context.Context, eventID, entryID int64) error {
	err := e.store.WithEventTx(ctx, eventID, func(ctx context.Context, ev *model.Event) error {
		entry, err := e.store.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if err := entry.Expire(); err != nil {
			return err
		}
		return e.store.UpdateEntry(ctx, entry)
	})
	if err != nil {
		return err
	}

	e.log.Info().Int64("entry_id", entryID).Int64("event_id", eventID).Msg("offer released")
	return e.ProcessQueue(ctx, eventID)
}
