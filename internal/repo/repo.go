package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"ticketline/internal/model"
)

// Store is the Postgres-backed persistence layer of the queue engine. All of
// queue.Store is implemented here; mutating call sites run inside WithEventTx
// which locks the event row and therefore serializes every operation touching
// the same event.
type Store struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewStore(db *dbpg.DB, log *zerolog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) MigrateUp(migrationsDir string) error {
	return s.applyMigrations(migrationsDir, "*.up.sql")
}

func (s *Store) MigrateDown(migrationsDir string) error {
	return s.applyMigrations(migrationsDir, "*.down.sql")
}

func (s *Store) applyMigrations(dir, pattern string) error {
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}
		if _, err := s.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	s.log.Info().Msgf("Migrations applied from %s (%s)", dir, pattern)
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type txKey struct{}

func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db.Master
}

// WithEventTx opens a transaction, locks the event's row and runs fn with the
// transaction carried in the context. Reads of ticket and waiting list counts
// inside fn cannot interleave with another transaction on the same event.
func (s *Store) WithEventTx(ctx context.Context, eventID int64, fn func(ctx context.Context, ev *model.Event) error) error {
	tx, err := s.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var ev model.Event
	err = tx.QueryRowContext(ctx, `
		SELECT id, name, description, location, start_time, total_tickets, is_cancelled, created_at, updated_at
		FROM events
		WHERE id = $1
		FOR UPDATE
	`, eventID).Scan(
		&ev.ID, &ev.Name, &ev.Description, &ev.Location, &ev.StartTime,
		&ev.TotalTickets, &ev.IsCancelled, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrEventNotFound
		}
		return fmt.Errorf("failed to lock event row: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx), &ev); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) CreateEvent(ctx context.Context, ev *model.Event) (int64, error) {
	query := `
		INSERT INTO events (name, description, location, start_time, total_tickets, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id
	`
	var id int64
	err := s.q(ctx).QueryRowContext(ctx, query,
		ev.Name, ev.Description, ev.Location, ev.StartTime, ev.TotalTickets, ev.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}
	return id, nil
}

func (s *Store) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	query := `
		SELECT id, name, description, location, start_time, total_tickets, is_cancelled, created_at, updated_at
		FROM events WHERE id = $1
	`
	var ev model.Event
	err := s.q(ctx).QueryRowContext(ctx, query, id).Scan(
		&ev.ID, &ev.Name, &ev.Description, &ev.Location, &ev.StartTime,
		&ev.TotalTickets, &ev.IsCancelled, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &ev, nil
}

func (s *Store) ListEvents(ctx context.Context) ([]model.Event, error) {
	query := `
		SELECT id, name, description, location, start_time, total_tickets, is_cancelled, created_at, updated_at
		FROM events
		WHERE NOT is_cancelled
		ORDER BY created_at DESC
	`
	rows, err := s.q(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		if err := rows.Scan(
			&ev.ID, &ev.Name, &ev.Description, &ev.Location, &ev.StartTime,
			&ev.TotalTickets, &ev.IsCancelled, &ev.CreatedAt, &ev.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *Store) SetEventCapacity(ctx context.Context, id int64, totalTickets int) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE events SET total_tickets = $1, updated_at = NOW() WHERE id = $2
	`, totalTickets, id)
	if err != nil {
		return fmt.Errorf("failed to update event capacity: %w", err)
	}
	return requireRow(res, model.ErrEventNotFound)
}

func (s *Store) MarkEventCancelled(ctx context.Context, id int64) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE events SET is_cancelled = TRUE, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to cancel event: %w", err)
	}
	return requireRow(res, model.ErrEventNotFound)
}

func (s *Store) CountPurchased(ctx context.Context, eventID int64) (int, error) {
	var count int
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tickets
		WHERE event_id = $1 AND status IN ('valid', 'used')
	`, eventID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count purchased tickets: %w", err)
	}
	return count, nil
}

func (s *Store) CountActiveOffers(ctx context.Context, eventID int64, now time.Time) (int, error) {
	var count int
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM waiting_list
		WHERE event_id = $1 AND status = 'offered' AND offer_expires_at > $2
	`, eventID, now).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active offers: %w", err)
	}
	return count, nil
}

func (s *Store) InsertEntry(ctx context.Context, e *model.WaitingListEntry) (int64, error) {
	var id int64
	err := s.q(ctx).QueryRowContext(ctx, `
		INSERT INTO waiting_list (event_id, user_id, status, offer_expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, e.EventID, e.UserID, e.Status, e.OfferExpiresAt, e.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert waiting list entry: %w", err)
	}
	return id, nil
}

func (s *Store) GetEntry(ctx context.Context, id int64) (*model.WaitingListEntry, error) {
	var e model.WaitingListEntry
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, event_id, user_id, status, offer_expires_at, created_at
		FROM waiting_list WHERE id = $1
	`, id).Scan(&e.ID, &e.EventID, &e.UserID, &e.Status, &e.OfferExpiresAt, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get waiting list entry: %w", err)
	}
	return &e, nil
}

// FindActiveEntry returns the user's non-expired entry for the event, or nil.
func (s *Store) FindActiveEntry(ctx context.Context, eventID int64, userID string) (*model.WaitingListEntry, error) {
	var e model.WaitingListEntry
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, event_id, user_id, status, offer_expires_at, created_at
		FROM waiting_list
		WHERE event_id = $1 AND user_id = $2 AND status != 'expired'
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`, eventID, userID).Scan(&e.ID, &e.EventID, &e.UserID, &e.Status, &e.OfferExpiresAt, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find active entry: %w", err)
	}
	return &e, nil
}

func (s *Store) UpdateEntry(ctx context.Context, e *model.WaitingListEntry) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE waiting_list SET status = $1, offer_expires_at = $2 WHERE id = $3
	`, e.Status, e.OfferExpiresAt, e.ID)
	if err != nil {
		return fmt.Errorf("failed to update waiting list entry: %w", err)
	}
	return requireRow(res, model.ErrEntryNotFound)
}

// NextWaiting returns up to limit waiting entries in strict FIFO order; the
// serial id breaks created_at ties so the order is stable.
func (s *Store) NextWaiting(ctx context.Context, eventID int64, limit int) ([]model.WaitingListEntry, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, event_id, user_id, status, offer_expires_at, created_at
		FROM waiting_list
		WHERE event_id = $1 AND status = 'waiting'
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`, eventID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query waiting entries: %w", err)
	}
	defer rows.Close()

	var entries []model.WaitingListEntry
	for rows.Next() {
		var e model.WaitingListEntry
		if err := rows.Scan(&e.ID, &e.EventID, &e.UserID, &e.Status, &e.OfferExpiresAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan waiting entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountAhead counts waiting and offered entries created strictly before the
// given instant. Offered entries count too: the queue position a user sees
// includes people who already hold an offer.
func (s *Store) CountAhead(ctx context.Context, eventID int64, createdBefore time.Time) (int, error) {
	var count int
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM waiting_list
		WHERE event_id = $1 AND status IN ('waiting', 'offered') AND created_at < $2
	`, eventID, createdBefore).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries ahead: %w", err)
	}
	return count, nil
}

func (s *Store) InsertTicket(ctx context.Context, t *model.Ticket) (int64, error) {
	var id int64
	err := s.q(ctx).QueryRowContext(ctx, `
		INSERT INTO tickets (event_id, user_id, status, payment_reference, amount, purchased_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, t.EventID, t.UserID, t.Status, t.PaymentReference, t.Amount, t.PurchasedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert ticket: %w", err)
	}
	return id, nil
}

func (s *Store) GetUserTicket(ctx context.Context, eventID int64, userID string) (*model.Ticket, error) {
	var t model.Ticket
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, event_id, user_id, status, payment_reference, amount, purchased_at
		FROM tickets
		WHERE event_id = $1 AND user_id = $2
		ORDER BY purchased_at ASC
		LIMIT 1
	`, eventID, userID).Scan(&t.ID, &t.EventID, &t.UserID, &t.Status, &t.PaymentReference, &t.Amount, &t.PurchasedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrTicketNotFound
		}
		return nil, fmt.Errorf("failed to get user ticket: %w", err)
	}
	return &t, nil
}

func (s *Store) ListValidTickets(ctx context.Context, eventID int64) ([]model.Ticket, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, event_id, user_id, status, payment_reference, amount, purchased_at
		FROM tickets
		WHERE event_id = $1 AND status = 'valid'
		ORDER BY purchased_at ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list valid tickets: %w", err)
	}
	defer rows.Close()

	var tickets []model.Ticket
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(&t.ID, &t.EventID, &t.UserID, &t.Status, &t.PaymentReference, &t.Amount, &t.PurchasedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (s *Store) SetTicketStatus(ctx context.Context, id int64, status model.TicketStatus) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE tickets SET status = $1 WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update ticket status: %w", err)
	}
	return requireRow(res, model.ErrTicketNotFound)
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
