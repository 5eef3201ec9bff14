package queue

import (
	"context"

	"ticketline/internal/model"
)

// Availability is the capacity picture for one event at one instant.
// AvailableSpots is the raw gate value used by the engine and may in theory
// go negative; RemainingTickets is floored at zero for display.
type Availability struct {
	Available        bool `json:"available"`
	AvailableSpots   int  `json:"available_spots"`
	TotalTickets     int  `json:"total_tickets"`
	PurchasedCount   int  `json:"purchased_count"`
	ActiveOffers     int  `json:"active_offers"`
	RemainingTickets int  `json:"remaining_tickets"`
	IsSoldOut        bool `json:"is_sold_out"`
}

// Availability computes the capacity picture for the event. Read-only and
// side-effect free; mutating operations recompute it under the event lock
// instead of trusting a value read here.
func (e *Engine) Availability(ctx context.Context, eventID int64) (Availability, error) {
	ev, err := e.store.GetEvent(ctx, eventID)
	if err != nil {
		return Availability{}, err
	}
	return e.availability(ctx, ev)
}

func (e *Engine) availability(ctx context.Context, ev *model.Event) (Availability, error) {
	purchased, err := e.store.CountPurchased(ctx, ev.ID)
	if err != nil {
		return Availability{}, err
	}
	offers, err := e.store.CountActiveOffers(ctx, ev.ID, e.clk.Now())
	if err != nil {
		return Availability{}, err
	}

	spots := ev.TotalTickets - (purchased + offers)
	remaining := spots
	if remaining < 0 {
		remaining = 0
	}

	return Availability{
		Available:        spots > 0,
		AvailableSpots:   spots,
		TotalTickets:     ev.TotalTickets,
		PurchasedCount:   purchased,
		ActiveOffers:     offers,
		RemainingTickets: remaining,
		IsSoldOut:        purchased+offers >= ev.TotalTickets,
	}, nil
}
