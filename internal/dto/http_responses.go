package dto

import (
	"time"

	"github.com/wb-go/wbf/ginext"

	"ticketline/internal/model"
	"ticketline/internal/queue"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	EventNotFound     = "EVENT_NOT_FOUND"
	EventCancelled    = "EVENT_CANCELLED"
	EntryNotFound     = "ENTRY_NOT_FOUND"
	TicketNotFound    = "TICKET_NOT_FOUND"
	AlreadyQueued     = "ALREADY_QUEUED"
	InvalidOfferState = "INVALID_OFFER_STATE"
	PurchaseFailed    = "PURCHASE_FAILED"
	InvalidSignature  = "INVALID_SIGNATURE"
)

type CreateEventRequest struct {
	Name         string    `json:"name" validate:"required"`
	Description  string    `json:"description"`
	Location     string    `json:"location"`
	StartTime    time.Time `json:"start_time" validate:"required,future"`
	TotalTickets int       `json:"total_tickets" validate:"gte=1"`
}

type UpdateCapacityRequest struct {
	TotalTickets int `json:"total_tickets" validate:"gte=1"`
}

type JoinRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type ReleaseRequest struct {
	EntryID int64 `json:"entry_id" validate:"gte=1"`
}

type JoinResponse struct {
	EntryID int64  `json:"entry_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type PositionResponse struct {
	Entry    model.WaitingListEntry `json:"entry"`
	Position int                    `json:"position"`
}

type EventResponse struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Location     string    `json:"location"`
	StartTime    time.Time `json:"start_time"`
	TotalTickets int       `json:"total_tickets"`
	IsCancelled  bool      `json:"is_cancelled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type EventInfoResponse struct {
	EventResponse
	Availability queue.Availability `json:"availability"`
}

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func NewEventResponse(ev *model.Event) EventResponse {
	return EventResponse{
		ID:           ev.ID,
		Name:         ev.Name,
		Description:  ev.Description,
		Location:     ev.Location,
		StartTime:    ev.StartTime,
		TotalTickets: ev.TotalTickets,
		IsCancelled:  ev.IsCancelled,
		CreatedAt:    ev.CreatedAt,
		UpdatedAt:    ev.UpdatedAt,
	}
}

func BadResponseError(c *ginext.Context, code, desc string) {
	errorResponse(c, 400, code, desc)
}

func NotFoundError(c *ginext.Context, code, desc string) {
	errorResponse(c, 404, code, desc)
}

func ConflictError(c *ginext.Context, code, desc string) {
	errorResponse(c, 409, code, desc)
}

func UnauthorizedError(c *ginext.Context, code, desc string) {
	errorResponse(c, 401, code, desc)
}

func InternalServerError(c *ginext.Context) {
	errorResponse(c, 500, ServiceUnavailable, InternalError)
}

func errorResponse(c *ginext.Context, status int, code, desc string) {
	c.JSON(status, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(200, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(201, Response{
		Status: "ok",
		Data:   data,
	})
}
