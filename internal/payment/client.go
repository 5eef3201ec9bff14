package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Client talks to the payment provider's refund endpoint. Checkout and charge
// capture live entirely on the provider's side; the engine only ever asks for
// refunds by transaction reference.
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
	log       *zerolog.Logger
}

func NewClient(baseURL, secretKey string, log *zerolog.Logger) *Client {
	return &Client{
		baseURL:   baseURL,
		secretKey: secretKey,
		http:      &http.Client{Timeout: 10 * time.Second},
		log:       log,
	}
}

type refundRequest struct {
	Transaction string `json:"transaction"`
}

type refundResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}

func (c *Client) Refund(ctx context.Context, paymentReference string) error {
	body, err := json.Marshal(refundRequest{Transaction: paymentReference})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/refund", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("refund request failed: %w", err)
	}
	defer resp.Body.Close()

	var out refundResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode refund response: %w", err)
	}
	if resp.StatusCode >= 300 || !out.Status {
		return fmt.Errorf("refund rejected for %s: %s", paymentReference, out.Message)
	}

	c.log.Info().Str("payment_reference", paymentReference).Msg("refund issued")
	return nil
}
