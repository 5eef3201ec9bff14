package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
)

// VerifySignature checks the provider's HMAC-SHA512 signature over the raw
// webhook body, the same scheme the provider applies on its side.
func VerifySignature(secretKey string, body []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// WebhookEvent is the provider's charge notification. Metadata carries the
// queue coordinates the checkout was started with.
type WebhookEvent struct {
	Event string      `json:"event"`
	Data  WebhookData `json:"data"`
}

type WebhookData struct {
	Amount    int64           `json:"amount"`
	Reference string          `json:"reference"`
	Metadata  WebhookMetadata `json:"metadata"`
}

type WebhookMetadata struct {
	EventID int64  `json:"event_id"`
	UserID  string `json:"user_id"`
	EntryID int64  `json:"entry_id"`
}

// ChargeSuccess is the only webhook event the engine acts on.
const ChargeSuccess = "charge.success"

func ParseWebhook(body []byte) (WebhookEvent, error) {
	var ev WebhookEvent
	err := json.Unmarshal(body, &ev)
	return ev, err
}
