package service_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketline/internal/api/api"
	"ticketline/internal/model"
	"ticketline/internal/queue"
	"ticketline/internal/service"
)

const webhookSecret = "whsec_test"

// fakeQueue satisfies service.Queue with canned results per call.
type fakeQueue struct {
	events       map[int64]*model.Event
	joinResult   queue.JoinResult
	joinErr      error
	purchaseErr  error
	position     *queue.Position
	ticket       *model.Ticket
	purchased    []int64
	releasedID   int64
	capacityErr  error
	lastCapacity int
}

func (f *fakeQueue) CreateEvent(_ context.Context, ev *model.Event) (int64, error) {
	return 1, nil
}

func (f *fakeQueue) GetEvent(_ context.Context, id int64) (*model.Event, error) {
	ev, ok := f.events[id]
	if !ok {
		return nil, model.ErrEventNotFound
	}
	return ev, nil
}

func (f *fakeQueue) ListEvents(_ context.Context) ([]model.Event, error) {
	out := make([]model.Event, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, *ev)
	}
	return out, nil
}

func (f *fakeQueue) UpdateCapacity(_ context.Context, _ int64, totalTickets int) error {
	if f.capacityErr != nil {
		return f.capacityErr
	}
	f.lastCapacity = totalTickets
	return nil
}

func (f *fakeQueue) CancelEvent(_ context.Context, _ int64) error { return nil }

func (f *fakeQueue) Availability(_ context.Context, id int64) (queue.Availability, error) {
	ev, ok := f.events[id]
	if !ok {
		return queue.Availability{}, model.ErrEventNotFound
	}
	return queue.Availability{Available: true, AvailableSpots: ev.TotalTickets, TotalTickets: ev.TotalTickets}, nil
}

func (f *fakeQueue) Join(_ context.Context, _ int64, _ string) (queue.JoinResult, error) {
	return f.joinResult, f.joinErr
}

func (f *fakeQueue) Release(_ context.Context, _, entryID int64) error {
	f.releasedID = entryID
	return nil
}

func (f *fakeQueue) Position(_ context.Context, _ int64, _ string) (*queue.Position, error) {
	return f.position, nil
}

func (f *fakeQueue) ProcessQueue(_ context.Context, _ int64) error { return nil }

func (f *fakeQueue) Purchase(_ context.Context, eventID int64, _ string, entryID int64, info queue.PaymentInfo) (*model.Ticket, error) {
	if f.purchaseErr != nil {
		return nil, f.purchaseErr
	}
	f.purchased = append(f.purchased, entryID)
	return &model.Ticket{ID: 10, EventID: eventID, Status: model.TicketValid, Amount: info.Amount, PaymentReference: info.PaymentReference}, nil
}

func (f *fakeQueue) UserTicket(_ context.Context, _ int64, _ string) (*model.Ticket, error) {
	if f.ticket == nil {
		return nil, model.ErrTicketNotFound
	}
	return f.ticket, nil
}

func newRouter(fq *fakeQueue) http.Handler {
	log := zerolog.Nop()
	return api.NewRouters(&api.Routers{Service: service.NewService(fq, webhookSecret, &log)})
}

func do(t *testing.T, h http.Handler, method, target string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func envelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestCreateEvent(t *testing.T) {
	fq := &fakeQueue{events: map[int64]*model.Event{}}
	router := newRouter(fq)

	t.Run("creates and returns the event", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/v1/events", map[string]any{
			"name":          "Go Conf",
			"location":      "Berlin",
			"start_time":    time.Now().Add(48 * time.Hour).Format(time.RFC3339),
			"total_tickets": 100,
		}, nil)

		assert.Equal(t, http.StatusCreated, w.Code)
		body := envelope(t, w)
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("rejects missing required fields", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/v1/events", map[string]any{"name": ""}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestJoin(t *testing.T) {
	t.Run("returns the offer result", func(t *testing.T) {
		fq := &fakeQueue{joinResult: queue.JoinResult{EntryID: 5, Status: model.EntryOffered, Message: "Ticket offered!"}}
		w := do(t, newRouter(fq), http.MethodPost, "/v1/events/1/join", map[string]any{"user_id": "user-a"}, nil)

		assert.Equal(t, http.StatusCreated, w.Code)
		body := envelope(t, w)
		data := body["data"].(map[string]any)
		assert.Equal(t, float64(5), data["entry_id"])
		assert.Equal(t, "offered", data["status"])
	})

	t.Run("maps duplicate membership to 409", func(t *testing.T) {
		fq := &fakeQueue{joinErr: model.ErrAlreadyQueued}
		w := do(t, newRouter(fq), http.MethodPost, "/v1/events/1/join", map[string]any{"user_id": "user-a"}, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("maps a cancelled event to 400", func(t *testing.T) {
		fq := &fakeQueue{joinErr: model.ErrEventInactive}
		w := do(t, newRouter(fq), http.MethodPost, "/v1/events/1/join", map[string]any{"user_id": "user-a"}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects a missing user_id", func(t *testing.T) {
		fq := &fakeQueue{}
		w := do(t, newRouter(fq), http.MethodPost, "/v1/events/1/join", map[string]any{}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects a non-numeric event id", func(t *testing.T) {
		fq := &fakeQueue{}
		w := do(t, newRouter(fq), http.MethodPost, "/v1/events/abc/join", map[string]any{"user_id": "user-a"}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRelease(t *testing.T) {
	fq := &fakeQueue{}
	w := do(t, newRouter(fq), http.MethodPost, "/v1/events/1/release", map[string]any{"entry_id": 7}, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(7), fq.releasedID)
}

func TestGetPosition(t *testing.T) {
	t.Run("requires user_id", func(t *testing.T) {
		w := do(t, newRouter(&fakeQueue{}), http.MethodGet, "/v1/events/1/position", nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("null data when the user is not in line", func(t *testing.T) {
		w := do(t, newRouter(&fakeQueue{}), http.MethodGet, "/v1/events/1/position?user_id=ghost", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		body := envelope(t, w)
		assert.Nil(t, body["data"])
	})

	t.Run("reports the rank", func(t *testing.T) {
		fq := &fakeQueue{position: &queue.Position{
			Entry:    model.WaitingListEntry{ID: 3, Status: model.EntryWaiting},
			Position: 2,
		}}
		w := do(t, newRouter(fq), http.MethodGet, "/v1/events/1/position?user_id=user-a", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		data := envelope(t, w)["data"].(map[string]any)
		assert.Equal(t, float64(2), data["position"])
	})
}

func TestGetInfo(t *testing.T) {
	t.Run("unknown event is 404", func(t *testing.T) {
		w := do(t, newRouter(&fakeQueue{events: map[int64]*model.Event{}}), http.MethodGet, "/v1/events/9", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("includes availability", func(t *testing.T) {
		fq := &fakeQueue{events: map[int64]*model.Event{
			1: {ID: 1, Name: "Go Conf", TotalTickets: 100},
		}}
		w := do(t, newRouter(fq), http.MethodGet, "/v1/events/1", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		data := envelope(t, w)["data"].(map[string]any)
		assert.Equal(t, float64(100), data["total_tickets"])
		avail := data["availability"].(map[string]any)
		assert.Equal(t, true, avail["available"])
	})
}

func TestUpdateCapacity(t *testing.T) {
	t.Run("applies the new capacity", func(t *testing.T) {
		fq := &fakeQueue{}
		w := do(t, newRouter(fq), http.MethodPatch, "/v1/events/1/capacity", map[string]any{"total_tickets": 50}, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 50, fq.lastCapacity)
	})

	t.Run("maps a too-low capacity to 400", func(t *testing.T) {
		fq := &fakeQueue{capacityErr: model.ErrCapacityBelowSold}
		w := do(t, newRouter(fq), http.MethodPatch, "/v1/events/1/capacity", map[string]any{"total_tickets": 1}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func signWebhook(body []byte) string {
	mac := hmac.New(sha512.New, []byte(webhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPaymentWebhook(t *testing.T) {
	charge := map[string]any{
		"event": "charge.success",
		"data": map[string]any{
			"amount":    5000,
			"reference": "ref-123",
			"metadata":  map[string]any{"event_id": 1, "user_id": "user-a", "entry_id": 7},
		},
	}

	post := func(t *testing.T, router http.Handler, payload any, sig string) *httptest.ResponseRecorder {
		t.Helper()
		body, err := json.Marshal(payload)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/payment", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Payment-Signature", sig)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("finalizes the purchase on a signed charge", func(t *testing.T) {
		fq := &fakeQueue{}
		body, _ := json.Marshal(charge)
		w := post(t, newRouter(fq), charge, signWebhook(body))

		assert.Equal(t, http.StatusOK, w.Code)
		require.Len(t, fq.purchased, 1)
		assert.Equal(t, int64(7), fq.purchased[0])
	})

	t.Run("rejects a bad signature", func(t *testing.T) {
		fq := &fakeQueue{}
		w := post(t, newRouter(fq), charge, "deadbeef")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Empty(t, fq.purchased)
	})

	t.Run("acknowledges and ignores other events", func(t *testing.T) {
		fq := &fakeQueue{}
		other := map[string]any{"event": "charge.failed", "data": map[string]any{}}
		body, _ := json.Marshal(other)
		w := post(t, newRouter(fq), other, signWebhook(body))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, fq.purchased)
	})

	t.Run("a failed purchase surfaces as 409", func(t *testing.T) {
		fq := &fakeQueue{purchaseErr: model.ErrPurchaseFailed}
		body, _ := json.Marshal(charge)
		w := post(t, newRouter(fq), charge, signWebhook(body))
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestGetTicket(t *testing.T) {
	t.Run("returns the user's ticket", func(t *testing.T) {
		fq := &fakeQueue{ticket: &model.Ticket{ID: 4, EventID: 1, UserID: "user-a", Status: model.TicketValid}}
		w := do(t, newRouter(fq), http.MethodGet, "/v1/events/1/ticket?user_id=user-a", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		data := envelope(t, w)["data"].(map[string]any)
		assert.Equal(t, "valid", data["status"])
	})

	t.Run("404 when the user holds no ticket", func(t *testing.T) {
		w := do(t, newRouter(&fakeQueue{}), http.MethodGet, "/v1/events/1/ticket?user_id=user-a", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
