package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"ticketline/internal/dto"
	"ticketline/internal/model"
	"ticketline/internal/payment"
	"ticketline/internal/queue"
	"ticketline/pkg/validator"
)

// Queue is the engine surface the HTTP layer consumes.
type Queue interface {
	CreateEvent(ctx context.Context, ev *model.Event) (int64, error)
	GetEvent(ctx context.Context, id int64) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	UpdateCapacity(ctx context.Context, eventID int64, totalTickets int) error
	CancelEvent(ctx context.Context, eventID int64) error
	Availability(ctx context.Context, eventID int64) (queue.Availability, error)
	Join(ctx context.Context, eventID int64, userID string) (queue.JoinResult, error)
	Release(ctx context.Context, eventID, entryID int64) error
	Position(ctx context.Context, eventID int64, userID string) (*queue.Position, error)
	ProcessQueue(ctx context.Context, eventID int64) error
	Purchase(ctx context.Context, eventID int64, userID string, entryID int64, info queue.PaymentInfo) (*model.Ticket, error)
	UserTicket(ctx context.Context, eventID int64, userID string) (*model.Ticket, error)
}

type Service interface {
	CreateEvent(ctx *ginext.Context)
	GetAllEvents(ctx *ginext.Context)
	GetInfo(ctx *ginext.Context)
	GetAvailability(ctx *ginext.Context)
	UpdateCapacity(ctx *ginext.Context)
	CancelEvent(ctx *ginext.Context)
	Join(ctx *ginext.Context)
	Release(ctx *ginext.Context)
	GetPosition(ctx *ginext.Context)
	ProcessQueue(ctx *ginext.Context)
	GetTicket(ctx *ginext.Context)
	PaymentWebhook(ctx *ginext.Context)
}

type service struct {
	queue         Queue
	webhookSecret string
	log           *zerolog.Logger
}

func NewService(q Queue, webhookSecret string, log *zerolog.Logger) Service {
	return &service{
		queue:         q,
		webhookSecret: webhookSecret,
		log:           log,
	}
}

func eventID(ctx *ginext.Context) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid event ID")
		return 0, false
	}
	return id, true
}

// respondError maps engine errors onto the response envelope. Anything not in
// the taxonomy is a 500.
func (s *service) respondError(ctx *ginext.Context, err error) {
	switch {
	case errors.Is(err, model.ErrEventNotFound):
		dto.NotFoundError(ctx, dto.EventNotFound, "Event not found")
	case errors.Is(err, model.ErrEntryNotFound):
		dto.NotFoundError(ctx, dto.EntryNotFound, "Waiting list entry not found")
	case errors.Is(err, model.ErrTicketNotFound):
		dto.NotFoundError(ctx, dto.TicketNotFound, "Ticket not found")
	case errors.Is(err, model.ErrAlreadyQueued):
		dto.ConflictError(ctx, dto.AlreadyQueued, "You are already in the waiting list for this event")
	case errors.Is(err, model.ErrEventInactive):
		dto.BadResponseError(ctx, dto.EventCancelled, "Event is cancelled")
	case errors.Is(err, model.ErrInvalidOfferState):
		dto.ConflictError(ctx, dto.InvalidOfferState, "No valid ticket offer found")
	case errors.Is(err, model.ErrCapacityBelowSold):
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Capacity cannot drop below sold tickets")
	case errors.Is(err, model.ErrPurchaseFailed):
		dto.ConflictError(ctx, dto.PurchaseFailed, "Purchase could not be completed, please retry")
	default:
		s.log.Error().Err(err).Msg("unhandled service error")
		dto.InternalServerError(ctx)
	}
}

func (s *service) CreateEvent(ctx *ginext.Context) {
	var req dto.CreateEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		s.log.Error().Err(err).Msg("failed to parse create event request")
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		s.log.Error().Msgf("validation failed: %v", verr)
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	event := &model.Event{
		Name:         req.Name,
		Description:  req.Description,
		Location:     req.Location,
		StartTime:    req.StartTime,
		TotalTickets: req.TotalTickets,
	}

	id, err := s.queue.CreateEvent(ctx.Request.Context(), event)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create event")
		dto.InternalServerError(ctx)
		return
	}
	event.ID = id

	s.log.Info().Int64("event_id", id).Msg("event created successfully")
	dto.SuccessCreatedResponse(ctx, dto.NewEventResponse(event))
}

func (s *service) GetAllEvents(ctx *ginext.Context) {
	events, err := s.queue.ListEvents(ctx.Request.Context())
	if err != nil {
		s.respondError(ctx, err)
		return
	}

	resp := make([]dto.EventInfoResponse, 0, len(events))
	for i := range events {
		avail, err := s.queue.Availability(ctx.Request.Context(), events[i].ID)
		if err != nil {
			s.log.Error().Err(err).Int64("event_id", events[i].ID).Msg("failed to compute availability")
			continue
		}
		resp = append(resp, dto.EventInfoResponse{
			EventResponse: dto.NewEventResponse(&events[i]),
			Availability:  avail,
		})
	}
	dto.SuccessResponse(ctx, resp)
}

func (s *service) GetInfo(ctx *ginext.Context) {
	id, ok := eventID(ctx)
	if !ok {
		return
	}

	event, err := s.queue.GetEvent(ctx.Request.Context(), id)
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	avail, err := s.queue.Availability(ctx.Request.Context(), id)
	if err != nil {
		s.respondError(ctx, err)
		return
	}

	dto.SuccessResponse(ctx, dto.EventInfoResponse{
		EventResponse: dto.NewEventResponse(event),
		Availability:  avail,
	})
}

func (s *service) GetAvailability(ctx *ginext.Context) {
	id, ok := eventID(ctx)
	if !ok {
		return
	}

	avail, err := s.queue.Availability(ctx.Request.Context(), id)
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, avail)
}

func (s *service) UpdateCapacity(ctx *ginext.Context) {
	id, ok := eventID(ctx)
	if !ok {
		return
	}

	var req dto.UpdateCapacityRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	if err := s.queue.UpdateCapacity(ctx.Request.Context(), id, req.TotalTickets); err != nil {
		s.respondError(ctx, err)
		return
	}

	s.log.Info().Int64("event_id", id).Int("total_tickets", req.TotalTickets).Msg("event capacity updated")
	dto.SuccessResponse(ctx, gin.H{"event_id": id, "total_tickets": req.TotalTickets})
}

func (s *service) CancelEvent(ctx *ginext.Context) {
	id, ok := eventID(ctx)
	if !ok {
		return
	}

	if err := s.queue.CancelEvent(ctx.Request.Context(), id); err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, gin.H{"event_id": id, "cancelled": true})
}

func (s *service) Join(ctx *ginext.Context) {
	id, ok := eventID(ctx)
	if !ok {
		return
	}

	var req dto.JoinRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	res, err := s.queue.Join(ctx.Request.Context(), id, req.UserID)
	if err != nil {
		s.respondError(ctx, err)
		return
	}

	s.log.Info().Int64("event_id", id).Str("user_id", req.UserID).Str("status", string(res.Status)).
		Msg("user joined waiting list")
	dto.SuccessCreatedResponse(ctx, dto.JoinResponse{
		EntryID: res.EntryID,
		Status:  string(res.Status),
		Message: res.Message,
	})
}

func (s *service) Release(ctx *ginext.Context) {
	id, ok := eventID(ctx)
	if !ok {
		return
	}

	var req dto.ReleaseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	if err := s.queue.Release(ctx.Request.Context(), id, req.EntryID); err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, gin.H{"entry_id": req.EntryID, "released": true})
}

func (s *service) GetPosition(ctx *ginext.Context) {
	id, ok := eventID(ctx)
	if !ok {
		return
	}
	userID := ctx.Query("user_id")
	if userID == "" {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "user_id query parameter is required")
		return
	}

	pos, err := s.queue.Position(ctx.Request.Context(), id, userID)
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	if pos == nil {
		dto.SuccessResponse(ctx, nil)
		return
	}
	dto.SuccessResponse(ctx, dto.PositionResponse{Entry: pos.Entry, Position: pos.Position})
}

func (s *service) ProcessQueue(ctx *ginext.Context) {
	id, ok := eventID(ctx)
	if !ok {
		return
	}

	if err := s.queue.ProcessQueue(ctx.Request.Context(), id); err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, gin.H{"event_id": id, "processed": true})
}

func (s *service) GetTicket(ctx *ginext.Context) {
	id, ok := eventID(ctx)
	if !ok {
		return
	}
	userID := ctx.Query("user_id")
	if userID == "" {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "user_id query parameter is required")
		return
	}

	ticket, err := s.queue.UserTicket(ctx.Request.Context(), id, userID)
	if err != nil {
		s.respondError(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, ticket)
}

// PaymentWebhook finalizes a purchase once the provider confirms the charge.
// The signature covers the raw body; anything but charge.success is
// acknowledged and ignored.
func (s *service) PaymentWebhook(ctx *ginext.Context) {
	body, err := ctx.GetRawData()
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldBadFormat, "Cannot read request body")
		return
	}

	signature := ctx.GetHeader("X-Payment-Signature")
	if !payment.VerifySignature(s.webhookSecret, body, signature) {
		s.log.Warn().Msg("webhook signature verification failed")
		dto.UnauthorizedError(ctx, dto.InvalidSignature, "Invalid signature")
		return
	}

	event, err := payment.ParseWebhook(body)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldBadFormat, "Invalid webhook payload")
		return
	}
	if event.Event != payment.ChargeSuccess {
		dto.SuccessResponse(ctx, nil)
		return
	}

	meta := event.Data.Metadata
	ticket, err := s.queue.Purchase(ctx.Request.Context(), meta.EventID, meta.UserID, meta.EntryID, queue.PaymentInfo{
		Amount:           event.Data.Amount,
		PaymentReference: event.Data.Reference,
	})
	if err != nil {
		s.log.Error().Err(err).Int64("event_id", meta.EventID).Str("user_id", meta.UserID).
			Msg("failed to finalize purchase from webhook")
		s.respondError(ctx, err)
		return
	}

	s.log.Info().Int64("ticket_id", ticket.ID).Msg("purchase finalized from webhook")
	dto.SuccessResponse(ctx, ticket)
}
