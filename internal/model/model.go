package model

import (
	"errors"
	"time"
)

var (
	ErrEventNotFound  = errors.New("event not found")
	ErrEntryNotFound  = errors.New("waiting list entry not found")
	ErrTicketNotFound = errors.New("ticket not found")
	ErrAlreadyQueued  = errors.New("user already in the waiting list for this event")
	ErrEventInactive  = errors.New("event is cancelled")
	ErrPurchaseFailed = errors.New("purchase failed")

	// ErrInvalidOfferState is returned by the transition methods when the
	// entry is not in a status the requested transition is allowed from.
	ErrInvalidOfferState = errors.New("invalid offer state")

	ErrCapacityBelowSold = errors.New("capacity cannot drop below sold tickets")
)

type TicketStatus string

const (
	TicketValid    TicketStatus = "valid"
	TicketUsed     TicketStatus = "used"
	TicketRefunded TicketStatus = "refunded"
)

type EntryStatus string

const (
	EntryWaiting   EntryStatus = "waiting"
	EntryOffered   EntryStatus = "offered"
	EntryExpired   EntryStatus = "expired"
	EntryPurchased EntryStatus = "purchased"
)

type Event struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Description  string    `db:"description,omitempty" json:"description,omitempty"`
	Location     string    `db:"location,omitempty" json:"location,omitempty"`
	StartTime    time.Time `db:"start_time" json:"start_time"`
	TotalTickets int       `db:"total_tickets" json:"total_tickets"`
	IsCancelled  bool      `db:"is_cancelled" json:"is_cancelled"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

type Ticket struct {
	ID               int64        `db:"id" json:"id"`
	EventID          int64        `db:"event_id" json:"event_id"`
	UserID           string       `db:"user_id" json:"user_id"`
	Status           TicketStatus `db:"status" json:"status"`
	PaymentReference string       `db:"payment_reference" json:"payment_reference"`
	Amount           int64        `db:"amount" json:"amount"`
	PurchasedAt      time.Time    `db:"purchased_at" json:"purchased_at"`
}

// WaitingListEntry is one user's place in line for one event. OfferExpiresAt
// is set only while the entry is offered; CreatedAt is never mutated and is
// the FIFO ordering key.
type WaitingListEntry struct {
	ID             int64       `db:"id" json:"id"`
	EventID        int64       `db:"event_id" json:"event_id"`
	UserID         string      `db:"user_id" json:"user_id"`
	Status         EntryStatus `db:"status" json:"status"`
	OfferExpiresAt *time.Time  `db:"offer_expires_at" json:"offer_expires_at,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
}

// Offer moves a waiting entry into the offered state with the given deadline.
func (e *WaitingListEntry) Offer(expiresAt time.Time) error {
	if e.Status != EntryWaiting {
		return ErrInvalidOfferState
	}
	e.Status = EntryOffered
	e.OfferExpiresAt = &expiresAt
	return nil
}

// Expire resolves an offered entry without a purchase. Both the scheduled
// expiration callback and a user release land here.
func (e *WaitingListEntry) Expire() error {
	if e.Status != EntryOffered {
		return ErrInvalidOfferState
	}
	e.Status = EntryExpired
	e.OfferExpiresAt = nil
	return nil
}

// Purchase marks the entry as converted into a ticket. Any status other
// than an earlier purchase is accepted; offer checks happen upstream of
// payment, not here.
func (e *WaitingListEntry) Purchase() error {
	if e.Status == EntryPurchased {
		return ErrInvalidOfferState
	}
	e.Status = EntryPurchased
	e.OfferExpiresAt = nil
	return nil
}

// OfferActive reports whether the entry holds a live reservation at now.
func (e *WaitingListEntry) OfferActive(now time.Time) bool {
	return e.Status == EntryOffered && e.OfferExpiresAt != nil && e.OfferExpiresAt.After(now)
}
