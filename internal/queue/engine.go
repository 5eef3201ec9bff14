package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ticketline/internal/clock"
	"ticketline/internal/model"
	"ticketline/internal/payment"
)

// Store is the persistence port of the queue engine. Every method observes a
// transaction carried in the context when one is open; WithEventTx opens one
// and locks the event row for its duration, so all reads and writes against a
// single event serialize.
type Store interface {
	WithEventTx(ctx context.Context, eventID int64, fn func(ctx context.Context, ev *model.Event) error) error

	CreateEvent(ctx context.Context, ev *model.Event) (int64, error)
	GetEvent(ctx context.Context, id int64) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	SetEventCapacity(ctx context.Context, id int64, totalTickets int) error
	MarkEventCancelled(ctx context.Context, id int64) error

	CountPurchased(ctx context.Context, eventID int64) (int, error)
	CountActiveOffers(ctx context.Context, eventID int64, now time.Time) (int, error)

	InsertEntry(ctx context.Context, e *model.WaitingListEntry) (int64, error)
	GetEntry(ctx context.Context, id int64) (*model.WaitingListEntry, error)
	FindActiveEntry(ctx context.Context, eventID int64, userID string) (*model.WaitingListEntry, error)
	UpdateEntry(ctx context.Context, e *model.WaitingListEntry) error
	NextWaiting(ctx context.Context, eventID int64, limit int) ([]model.WaitingListEntry, error)
	CountAhead(ctx context.Context, eventID int64, createdBefore time.Time) (int, error)

	InsertTicket(ctx context.Context, t *model.Ticket) (int64, error)
	GetUserTicket(ctx context.Context, eventID int64, userID string) (*model.Ticket, error)
	ListValidTickets(ctx context.Context, eventID int64) ([]model.Ticket, error)
	SetTicketStatus(ctx context.Context, id int64, status model.TicketStatus) error
}

// OfferExpiry is the payload of the scheduled expiration callback.
type OfferExpiry struct {
	EntryID int64 `json:"entry_id"`
	EventID int64 `json:"event_id"`
}

// Scheduler requests a delayed, at-least-once invocation of the expiration
// handler. The callback may fire late or more than once; ExpireOffer is
// idempotent against both.
type Scheduler interface {
	Schedule(ctx context.Context, delay time.Duration, msg OfferExpiry) error
}

const defaultOfferTTL = 15 * time.Minute

// Engine owns every state transition of the waiting list: admission, offer
// expiry, FIFO reallocation and purchase finalization.
type Engine struct {
	store    Store
	sched    Scheduler
	refunder payment.Refunder
	clk      clock.Clock
	log      *zerolog.Logger
	offerTTL time.Duration
}

type Option func(*Engine)

// WithOfferTTL overrides how long an offer stays valid before it expires.
func WithOfferTTL(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.offerTTL = d
		}
	}
}

func NewEngine(store Store, sched Scheduler, refunder payment.Refunder, clk clock.Clock, log *zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		sched:    sched,
		refunder: refunder,
		clk:      clk,
		log:      log,
		offerTTL: defaultOfferTTL,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OfferTTL reports the configured offer lifetime.
func (e *Engine) OfferTTL() time.Duration {
	return e.offerTTL
}
