package queue

import (
	"context"
	"errors"
	"fmt"

	"ticketline/internal/model"
)

// PaymentInfo is what the payment collaborator hands over once a checkout
// completed out of band.
type PaymentInfo struct {
	Amount           int64  `json:"amount"`
	PaymentReference string `json:"payment_reference"`
}

// Purchase converts an offer into a sold ticket: insert the ticket, mark the
// entry purchased, both in one transaction. Payment has already been captured
// by the time this runs, so failures are wrapped in model.ErrPurchaseFailed and the
// caller retries the whole operation.
//
// The entry is deliberately not required to be in the offered state.
func (e *Engine) Purchase(ctx context.Context, eventID int64, userID string, entryID int64, info PaymentInfo) (*model.Ticket, error) {
	var (
		ticket  *model.Ticket
		offered []model.WaitingListEntry
	)

	err := e.store.WithEventTx(ctx, eventID, func(ctx context.Context, ev *model.Event) error {
		if ev.IsCancelled {
			return model.ErrEventInactive
		}

		entry, err := e.store.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}

		t := &model.Ticket{
			EventID:          eventID,
			UserID:           userID,
			Status:           model.TicketValid,
			PaymentReference: info.PaymentReference,
			Amount:           info.Amount,
			PurchasedAt:      e.clk.Now(),
		}
		id, err := e.store.InsertTicket(ctx, t)
		if err != nil {
			return err
		}
		t.ID = id

		if err := entry.Purchase(); err != nil {
			return err
		}
		if err := e.store.UpdateEntry(ctx, entry); err != nil {
			return err
		}

		// A purchase frees no capacity on its own; this run is normally a
		// no-op but sweeps up any expired offer whose callback never landed.
		offered, err = e.promoteWaiting(ctx, ev)
		if err != nil {
			return err
		}

		ticket = t
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrEventInactive) || errors.Is(err, model.ErrEntryNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", model.ErrPurchaseFailed, err)
	}

	e.log.Info().Int64("ticket_id", ticket.ID).Int64("event_id", eventID).Str("user_id", userID).
		Msg("ticket purchased")

	// The ticket is committed; a schedule failure must not fail the purchase.
	if err := e.scheduleOffers(ctx, offered); err != nil {
		e.log.Error().Err(err).Int64("event_id", eventID).Msg("post-purchase offer scheduling failed")
	}

	return ticket, nil
}
