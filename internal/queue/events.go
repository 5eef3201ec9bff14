package queue

import (
	"context"
	"fmt"

	"ticketline/internal/model"
)

// CreateEvent registers a new event with its fixed starting capacity.
func (e *Engine) CreateEvent(ctx context.Context, ev *model.Event) (int64, error) {
	now := e.clk.Now()
	ev.CreatedAt = now
	ev.UpdatedAt = now
	return e.store.CreateEvent(ctx, ev)
}

// GetEvent fetches a single event.
func (e *Engine) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	return e.store.GetEvent(ctx, id)
}

// ListEvents returns all non-cancelled events.
func (e *Engine) ListEvents(ctx context.Context) ([]model.Event, error) {
	return e.store.ListEvents(ctx)
}

// UserTicket returns the user's ticket for the event, if any.
func (e *Engine) UserTicket(ctx context.Context, eventID int64, userID string) (*model.Ticket, error) {
	return e.store.GetUserTicket(ctx, eventID, userID)
}

// UpdateCapacity changes an event's total ticket count. Capacity may grow
// freely but can never drop below tickets already sold; growth is followed by
// a queue run so the new spots reach waiting users immediately.
func (e *Engine) UpdateCapacity(ctx context.Context, eventID int64, totalTickets int) error {
	err := e.store.WithEventTx(ctx, eventID, func(ctx context.Context, ev *model.Event) error {
		if ev.IsCancelled {
			return model.ErrEventInactive
		}
		sold, err := e.store.CountPurchased(ctx, eventID)
		if err != nil {
			return err
		}
		if totalTickets < sold {
			return model.ErrCapacityBelowSold
		}
		return e.store.SetEventCapacity(ctx, eventID, totalTickets)
	})
	if err != nil {
		return err
	}
	return e.ProcessQueue(ctx, eventID)
}

// CancelEvent refunds every valid ticket and only then marks the event
// cancelled. Any refund failure aborts the cancellation; tickets already
// refunded stay refunded and a retry picks up the rest.
func (e *Engine) CancelEvent(ctx context.Context, eventID int64) error {
	ev, err := e.store.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if ev.IsCancelled {
		return model.ErrEventInactive
	}

	tickets, err := e.store.ListValidTickets(ctx, eventID)
	if err != nil {
		return err
	}

	for _, t := range tickets {
		if t.PaymentReference == "" {
			return fmt.Errorf("ticket %d has no payment reference", t.ID)
		}
		if err := e.refunder.Refund(ctx, t.PaymentReference); err != nil {
			return fmt.Errorf("refund ticket %d: %w", t.ID, err)
		}
		if err := e.store.SetTicketStatus(ctx, t.ID, model.TicketRefunded); err != nil {
			return err
		}
	}

	if err := e.store.MarkEventCancelled(ctx, eventID); err != nil {
		return err
	}
	e.log.Info().Int64("event_id", eventID).Int("refunded", len(tickets)).Msg("event cancelled")
	return nil
}
