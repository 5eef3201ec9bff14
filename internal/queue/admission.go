package queue

import (
	"context"
	"fmt"

	"ticketline/internal/model"
)

// JoinResult tells the caller whether they were granted an immediate offer or
// placed in line.
type JoinResult struct {
	EntryID int64             `json:"entry_id"`
	Status  model.EntryStatus `json:"status"`
	Message string            `json:"message"`
}

// Join admits a user to the event's queue. If a spot is free the entry is
// created already offered, with its expiration callback scheduled; otherwise
// it is created waiting. A user may hold at most one non-expired entry per
// event.
func (e *Engine) Join(ctx context.Context, eventID int64, userID string) (JoinResult, error) {
	var (
		res     JoinResult
		offered *model.WaitingListEntry
	)

	err := e.store.WithEventTx(ctx, eventID, func(ctx context.Context, ev *model.Event) error {
		if ev.IsCancelled {
			return model.ErrEventInactive
		}

		existing, err := e.store.FindActiveEntry(ctx, eventID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			return model.ErrAlreadyQueued
		}

		avail, err := e.availability(ctx, ev)
		if err != nil {
			return err
		}

		now := e.clk.Now()
		entry := &model.WaitingListEntry{
			EventID:   eventID,
			UserID:    userID,
			Status:    model.EntryWaiting,
			CreatedAt: now,
		}

		if avail.AvailableSpots > 0 {
			expiresAt := now.Add(e.offerTTL)
			if err := entry.Offer(expiresAt); err != nil {
				return err
			}
		}

		id, err := e.store.InsertEntry(ctx, entry)
		if err != nil {
			return err
		}
		entry.ID = id

		if entry.Status == model.EntryOffered {
			offered = entry
			res = JoinResult{
				EntryID: id,
				Status:  model.EntryOffered,
				Message: fmt.Sprintf("Ticket offered! Please complete your purchase within the next %d minutes.", int(e.offerTTL.Minutes())),
			}
		} else {
			res = JoinResult{
				EntryID: id,
				Status:  model.EntryWaiting,
				Message: "You have been added to the waiting list. We will notify you if a ticket becomes available.",
			}
		}
		return nil
	})
	if err != nil {
		return JoinResult{}, err
	}

	// Scheduled only after the insert committed, so the callback can never
	// observe an entry that does not exist yet.
	if offered != nil {
		if err := e.scheduleExpiry(ctx, offered); err != nil {
			e.log.Error().Err(err).Int64("entry_id", offered.ID).Int64("event_id", eventID).
				Msg("failed to schedule offer expiration")
			return JoinResult{}, err
		}
	}

	return res, nil
}

func (e *Engine) scheduleExpiry(ctx context.Context, entry *model.WaitingListEntry) error {
	return e.sched.Schedule(ctx, e.offerTTL, OfferExpiry{
		EntryID: entry.ID,
		EventID: entry.EventID,
	})
}
