package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/escape-room-manager/internal/model"
	"github.com/iliyamo/escape-room-manager/internal/repository"
	"github.com/iliyamo/escape-room-manager/internal/service"
)

// BookingHandler serves /v1/bookings.  Writes go through the booking
// workflow so capacity, availability and the status rules apply; reads go
// straight to the store.
type BookingHandler struct {
	Bookings *repository.BookingRepo
	Workflow *service.Bookings
	Log      *slog.Logger
}

func NewBookingHandler(bookings *repository.BookingRepo, workflow *service.Bookings, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{Bookings: bookings, Workflow: workflow, Log: logger}
}

type bookingReq struct {
	RoomID          uint64          `json:"room_id"`
	PlayerIDs       []uint64        `json:"player_ids"`
	ScheduledTime   time.Time       `json:"scheduled_time"`
	Status          string          `json:"status"`
	NumberOfPlayers int             `json:"number_of_players"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	Notes           string          `json:"notes"`
}

// apply copies the request onto b.  An unknown status is passed through
// verbatim so validation names it.
func (req bookingReq) apply(b *model.Booking) {
	b.RoomID = req.RoomID
	b.PlayerIDs = req.PlayerIDs
	b.ScheduledTime = req.ScheduledTime
	b.Status = model.BookingStatus(strings.TrimSpace(req.Status))
	if st, ok := model.ParseBookingStatus(req.Status); ok {
		b.Status = st
	}
	b.NumberOfPlayers = req.NumberOfPlayers
	if b.NumberOfPlayers == 0 {
		b.NumberOfPlayers = len(model.UniqueIDs(req.PlayerIDs))
	}
	b.TotalPrice = req.TotalPrice
	b.Notes = strings.TrimSpace(req.Notes)
}

// ListBookings handles GET /v1/bookings.  Filters: ?status=, ?room_id= or
// ?start=&end=; at most one is applied, in that order.
func (h *BookingHandler) ListBookings(c echo.Context) error {
	roomID, err := queryID(c, "room_id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	start, end, ranged, err := parseRange(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	var items []model.Booking
	switch raw := c.QueryParam("status"); {
	case raw != "":
		st, ok := model.ParseBookingStatus(raw)
		if !ok {
			return badRequest(c, "unknown status")
		}
		items, err = h.Bookings.FindByStatus(ctx, st)
	case roomID != 0:
		items, err = h.Bookings.FindByRoom(ctx, roomID)
	case ranged:
		items, err = h.Bookings.FindByDateRange(ctx, start, end)
	default:
		items, err = h.Bookings.FindAll(ctx)
	}
	if err != nil {
		return respondError(c, h.Log, "list bookings", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// GetBooking handles GET /v1/bookings/:id.
func (h *BookingHandler) GetBooking(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	b, err := h.Bookings.FindByID(ctx, id)
	if err != nil {
		return respondError(c, h.Log, "get booking", err)
	}
	return c.JSON(http.StatusOK, b)
}

// Availability handles GET /v1/bookings/availability?room_id=&at=.
func (h *BookingHandler) Availability(c echo.Context) error {
	roomID, err := queryID(c, "room_id")
	if err != nil || roomID == 0 {
		return badRequest(c, "room_id required")
	}
	at, _, err := parseTime(c.QueryParam("at"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	ok, err := h.Workflow.Availability(ctx, roomID, at)
	if err != nil {
		return respondError(c, h.Log, "room availability", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"room_id": roomID, "at": at.UTC(), "available": ok})
}

// CreateBooking handles POST /v1/bookings.
func (h *BookingHandler) CreateBooking(c echo.Context) error {
	var req bookingReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	b := &model.Booking{}
	req.apply(b)

	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Workflow.Create(ctx, b); err != nil {
		return respondError(c, h.Log, "create booking", err)
	}
	return c.JSON(http.StatusCreated, b)
}

// UpdateBooking handles PUT /v1/bookings/:id.  An omitted status keeps the
// current one.
func (h *BookingHandler) UpdateBooking(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req bookingReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	b := &model.Booking{ID: id}
	req.apply(b)

	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Workflow.Update(ctx, b); err != nil {
		return respondError(c, h.Log, "update booking", err)
	}
	return c.JSON(http.StatusOK, b)
}

// ChangeStatus handles PATCH /v1/bookings/:id/status with {"status": "CONFIRMED"}.
func (h *BookingHandler) ChangeStatus(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil || strings.TrimSpace(body.Status) == "" {
		return badRequest(c, "status required")
	}
	next, _ := model.ParseBookingStatus(body.Status)

	ctx, cancel := requestContext(c)
	defer cancel()
	b, err := h.Workflow.ChangeStatus(ctx, id, next)
	if err != nil {
		return respondError(c, h.Log, "change booking status", err)
	}
	return c.JSON(http.StatusOK, b)
}

// DeleteBooking handles DELETE /v1/bookings/:id.
func (h *BookingHandler) DeleteBooking(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Bookings.Delete(ctx, id); err != nil {
		return respondError(c, h.Log, "delete booking", err)
	}
	return c.NoContent(http.StatusNoContent)
}
