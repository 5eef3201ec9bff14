package payment

import "context"

// Refunder is the slice of the payment collaborator the engine needs: issuing
// a refund for a previously captured charge. Checkout itself happens out of
// band; the engine only ever sees its result.
type Refunder interface {
	Refund(ctx context.Context, paymentReference string) error
}
