package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"ticketline/internal/queue"
	"ticketline/internal/rabbit"
)

// Rabbit implements queue.Scheduler on the delayed-message exchange: the
// expiry payload rides as JSON with an x-delay header and comes back through
// the consumer worker once the offer lifetime has passed.
type Rabbit struct {
	client *rabbit.Client
}

func NewRabbit(client *rabbit.Client) *Rabbit {
	return &Rabbit{client: client}
}

func (r *Rabbit) Schedule(ctx context.Context, delay time.Duration, msg queue.OfferExpiry) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.client.Publish(payload, delay)
}
