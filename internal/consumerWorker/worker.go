package consumerWorker

import (
	"context"
	"encoding/json"

	"github.com/wb-go/wbf/zlog"

	"ticketline/internal/queue"
)

// Consumer is the slice of the rabbit client the worker needs.
type Consumer interface {
	Consume(handler func([]byte) error) error
}

// Expirer handles a decoded expiration callback.
type Expirer interface {
	ExpireOffer(ctx context.Context, msg queue.OfferExpiry) error
}

// Reader drains the delayed queue and dispatches each offer-expiry message to
// the engine. Dispatch is typed: the payload decodes straight into
// queue.OfferExpiry, there is no job-name lookup.
type Reader struct {
	consumer Consumer
	engine   Expirer
	done     chan struct{}
	cancel   context.CancelFunc
}

func NewReader(consumer Consumer, engine Expirer) *Reader {
	return &Reader{
		consumer: consumer,
		engine:   engine,
		done:     make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("offer expiration worker started")

	go func() {
		defer close(r.done)

		if err := r.consumer.Consume(r.Handle(cctx)); err != nil {
			zlog.Logger.Error().Err(err).Msg("Failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("offer expiration worker stopped by context")
	}()
}

// Handle returns the message handler bound to ctx. An undecodable message is
// an error (nacked and retried); an expiry for an entry that already moved on
// is a normal no-op inside the engine.
func (r *Reader) Handle(ctx context.Context) func([]byte) error {
	return func(body []byte) error {
		var msg queue.OfferExpiry
		if err := json.Unmarshal(body, &msg); err != nil {
			zlog.Logger.Error().Err(err).Msgf("Failed to unmarshal message: %s", string(body))
			return err
		}

		zlog.Logger.Info().
			Int64("entry_id", msg.EntryID).
			Int64("event_id", msg.EventID).
			Msg("offer expiration callback received")

		if err := r.engine.ExpireOffer(ctx, msg); err != nil {
			zlog.Logger.Error().
				Err(err).
				Int64("entry_id", msg.EntryID).
				Msg("Failed to expire offer")
			return err
		}
		return nil
	}
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
