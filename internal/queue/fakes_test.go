package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"ticketline/internal/model"
)

// stepClock is a manually advanced clock so offer expiry is testable without
// sleeping.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock(t time.Time) *stepClock {
	return &stepClock{now: t.UTC()}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeStore is an in-memory Store. WithEventTx serializes under a mutex and
// restores a snapshot when fn fails, mirroring a rolled-back transaction.
type fakeStore struct {
	mu      sync.Mutex
	events  map[int64]*model.Event
	entries map[int64]*model.WaitingListEntry
	tickets map[int64]*model.Ticket

	nextEventID  int64
	nextEntryID  int64
	nextTicketID int64

	failInsertTicket error
	failUpdateEntry  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:  make(map[int64]*model.Event),
		entries: make(map[int64]*model.WaitingListEntry),
		tickets: make(map[int64]*model.Ticket),
	}
}

func (s *fakeStore) addEvent(ev model.Event) *model.Event {
	s.nextEventID++
	ev.ID = s.nextEventID
	s.events[ev.ID] = &ev
	return &ev
}

func (s *fakeStore) snapshot() (map[int64]*model.Event, map[int64]*model.WaitingListEntry, map[int64]*model.Ticket) {
	events := make(map[int64]*model.Event, len(s.events))
	for id, ev := range s.events {
		cp := *ev
		events[id] = &cp
	}
	entries := make(map[int64]*model.WaitingListEntry, len(s.entries))
	for id, e := range s.entries {
		cp := *e
		if e.OfferExpiresAt != nil {
			t := *e.OfferExpiresAt
			cp.OfferExpiresAt = &t
		}
		entries[id] = &cp
	}
	tickets := make(map[int64]*model.Ticket, len(s.tickets))
	for id, t := range s.tickets {
		cp := *t
		tickets[id] = &cp
	}
	return events, entries, tickets
}

func (s *fakeStore) WithEventTx(ctx context.Context, eventID int64, fn func(ctx context.Context, ev *model.Event) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[eventID]
	if !ok {
		return model.ErrEventNotFound
	}

	events, entries, tickets := s.snapshot()
	locked := *ev
	if err := fn(ctx, &locked); err != nil {
		s.events, s.entries, s.tickets = events, entries, tickets
		return err
	}
	return nil
}

func (s *fakeStore) CreateEvent(ctx context.Context, ev *model.Event) (int64, error) {
	s.nextEventID++
	cp := *ev
	cp.ID = s.nextEventID
	s.events[cp.ID] = &cp
	return cp.ID, nil
}

func (s *fakeStore) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	ev, ok := s.events[id]
	if !ok {
		return nil, model.ErrEventNotFound
	}
	cp := *ev
	return &cp, nil
}

func (s *fakeStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	var out []model.Event
	for _, ev := range s.events {
		if !ev.IsCancelled {
			out = append(out, *ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) SetEventCapacity(ctx context.Context, id int64, totalTickets int) error {
	ev, ok := s.events[id]
	if !ok {
		return model.ErrEventNotFound
	}
	ev.TotalTickets = totalTickets
	return nil
}

func (s *fakeStore) MarkEventCancelled(ctx context.Context, id int64) error {
	ev, ok := s.events[id]
	if !ok {
		return model.ErrEventNotFound
	}
	ev.IsCancelled = true
	return nil
}

func (s *fakeStore) CountPurchased(ctx context.Context, eventID int64) (int, error) {
	count := 0
	for _, t := range s.tickets {
		if t.EventID == eventID && (t.Status == model.TicketValid || t.Status == model.TicketUsed) {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) CountActiveOffers(ctx context.Context, eventID int64, now time.Time) (int, error) {
	count := 0
	for _, e := range s.entries {
		if e.EventID == eventID && e.OfferActive(now) {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) InsertEntry(ctx context.Context, e *model.WaitingListEntry) (int64, error) {
	s.nextEntryID++
	cp := *e
	cp.ID = s.nextEntryID
	if e.OfferExpiresAt != nil {
		t := *e.OfferExpiresAt
		cp.OfferExpiresAt = &t
	}
	s.entries[cp.ID] = &cp
	return cp.ID, nil
}

func (s *fakeStore) GetEntry(ctx context.Context, id int64) (*model.WaitingListEntry, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, model.ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *fakeStore) FindActiveEntry(ctx context.Context, eventID int64, userID string) (*model.WaitingListEntry, error) {
	var found *model.WaitingListEntry
	for _, e := range s.entries {
		if e.EventID != eventID || e.UserID != userID || e.Status == model.EntryExpired {
			continue
		}
		if found == nil || e.CreatedAt.Before(found.CreatedAt) || (e.CreatedAt.Equal(found.CreatedAt) && e.ID < found.ID) {
			found = e
		}
	}
	if found == nil {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}

func (s *fakeStore) UpdateEntry(ctx context.Context, e *model.WaitingListEntry) error {
	if s.failUpdateEntry != nil {
		return s.failUpdateEntry
	}
	cur, ok := s.entries[e.ID]
	if !ok {
		return model.ErrEntryNotFound
	}
	cur.Status = e.Status
	cur.OfferExpiresAt = nil
	if e.OfferExpiresAt != nil {
		t := *e.OfferExpiresAt
		cur.OfferExpiresAt = &t
	}
	return nil
}

func (s *fakeStore) NextWaiting(ctx context.Context, eventID int64, limit int) ([]model.WaitingListEntry, error) {
	var waiting []model.WaitingListEntry
	for _, e := range s.entries {
		if e.EventID == eventID && e.Status == model.EntryWaiting {
			waiting = append(waiting, *e)
		}
	}
	sort.Slice(waiting, func(i, j int) bool {
		if !waiting[i].CreatedAt.Equal(waiting[j].CreatedAt) {
			return waiting[i].CreatedAt.Before(waiting[j].CreatedAt)
		}
		return waiting[i].ID < waiting[j].ID
	})
	if len(waiting) > limit {
		waiting = waiting[:limit]
	}
	return waiting, nil
}

func (s *fakeStore) CountAhead(ctx context.Context, eventID int64, createdBefore time.Time) (int, error) {
	count := 0
	for _, e := range s.entries {
		if e.EventID != eventID {
			continue
		}
		if e.Status != model.EntryWaiting && e.Status != model.EntryOffered {
			continue
		}
		if e.CreatedAt.Before(createdBefore) {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) InsertTicket(ctx context.Context, t *model.Ticket) (int64, error) {
	if s.failInsertTicket != nil {
		return 0, s.failInsertTicket
	}
	s.nextTicketID++
	cp := *t
	cp.ID = s.nextTicketID
	s.tickets[cp.ID] = &cp
	return cp.ID, nil
}

func (s *fakeStore) GetUserTicket(ctx context.Context, eventID int64, userID string) (*model.Ticket, error) {
	for _, t := range s.tickets {
		if t.EventID == eventID && t.UserID == userID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, model.ErrTicketNotFound
}

func (s *fakeStore) ListValidTickets(ctx context.Context, eventID int64) ([]model.Ticket, error) {
	var out []model.Ticket
	for _, t := range s.tickets {
		if t.EventID == eventID && t.Status == model.TicketValid {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) SetTicketStatus(ctx context.Context, id int64, status model.TicketStatus) error {
	t, ok := s.tickets[id]
	if !ok {
		return model.ErrTicketNotFound
	}
	t.Status = status
	return nil
}

// fakeScheduler records every schedule request and can simulate broker
// failures for specific entries.
type fakeScheduler struct {
	mu        sync.Mutex
	scheduled []scheduledExpiry
	failFor   map[int64]error
}

type scheduledExpiry struct {
	delay time.Duration
	msg   OfferExpiry
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{failFor: make(map[int64]error)}
}

func (f *fakeScheduler) Schedule(ctx context.Context, delay time.Duration, msg OfferExpiry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[msg.EntryID]; ok {
		return err
	}
	f.scheduled = append(f.scheduled, scheduledExpiry{delay: delay, msg: msg})
	return nil
}

func (f *fakeScheduler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.scheduled)
}

func (f *fakeScheduler) last() scheduledExpiry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scheduled[len(f.scheduled)-1]
}

// fakeRefunder refunds everything except references it is told to reject.
type fakeRefunder struct {
	refunded []string
	failFor  map[string]error
}

func newFakeRefunder() *fakeRefunder {
	return &fakeRefunder{failFor: make(map[string]error)}
}

func (f *fakeRefunder) Refund(ctx context.Context, paymentReference string) error {
	if err, ok := f.failFor[paymentReference]; ok {
		return err
	}
	f.refunded = append(f.refunded, paymentReference)
	return nil
}

var errBoom = errors.New("boom")
