package queue

import (
	"context"

	"ticketline/internal/model"
)

// Position is a user's active entry plus their 1-based rank in the event's
// queue. Rank counts every waiting and offered entry created earlier, so a
// user already holding an offer still reports a position.
type Position struct {
	Entry    model.WaitingListEntry `json:"entry"`
	Position int                    `json:"position"`
}

// Position looks up the caller's place in line. Returns nil with no error
// when the user has no active entry for the event.
func (e *Engine) Position(ctx context.Context, eventID int64, userID string) (*Position, error) {
	entry, err := e.store.FindActiveEntry(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	ahead, err := e.store.CountAhead(ctx, eventID, entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &Position{Entry: *entry, Position: ahead + 1}, nil
}
