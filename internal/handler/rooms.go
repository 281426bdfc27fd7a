package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/escape-room-manager/internal/model"
	"github.com/iliyamo/escape-room-manager/internal/repository"
)

// RoomHandler serves /v1/rooms.
type RoomHandler struct {
	Rooms *repository.RoomRepo
	Log   *slog.Logger
}

func NewRoomHandler(rooms *repository.RoomRepo, logger *slog.Logger) *RoomHandler {
	return &RoomHandler{Rooms: rooms, Log: logger}
}

// roomReq is the writable part of a room.  The average rating is not
// accepted here; it has its own endpoints.
type roomReq struct {
	Name        string          `json:"name"`
	Theme       string          `json:"theme"`
	Difficulty  int             `json:"difficulty"`
	Capacity    int             `json:"capacity"`
	Price       decimal.Decimal `json:"price"`
	Duration    int             `json:"duration"`
	Description string          `json:"description"`
	IsActive    *bool           `json:"is_active"`
}

func (req roomReq) apply(rm *model.Room) {
	rm.Name = strings.TrimSpace(req.Name)
	rm.Theme = model.Theme(strings.TrimSpace(req.Theme))
	if t, ok := model.ParseTheme(req.Theme); ok {
		rm.Theme = t
	}
	rm.Difficulty = req.Difficulty
	rm.Capacity = req.Capacity
	rm.Price = req.Price
	rm.Duration = req.Duration
	rm.Description = strings.TrimSpace(req.Description)
	if req.IsActive != nil {
		rm.IsActive = *req.IsActive
	}
}

// ListRooms handles GET /v1/rooms.  ?active=true keeps open rooms only and
// ?theme= filters by theme; the two are exclusive.
func (h *RoomHandler) ListRooms(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	var (
		items []model.Room
		err   error
	)
	active, _ := strconv.ParseBool(c.QueryParam("active"))
	switch theme := c.QueryParam("theme"); {
	case theme != "":
		t, ok := model.ParseTheme(theme)
		if !ok {
			return badRequest(c, "unknown theme")
		}
		items, err = h.Rooms.FindByTheme(ctx, t)
	case active:
		items, err = h.Rooms.FindActive(ctx)
	default:
		items, err = h.Rooms.FindAll(ctx)
	}
	if err != nil {
		return respondError(c, h.Log, "list rooms", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// GetRoom handles GET /v1/rooms/:id.
func (h *RoomHandler) GetRoom(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	rm, err := h.Rooms.FindByID(ctx, id)
	if err != nil {
		return respondError(c, h.Log, "get room", err)
	}
	return c.JSON(http.StatusOK, rm)
}

// CreateRoom handles POST /v1/rooms.  New rooms are active unless
// is_active is sent as false.
func (h *RoomHandler) CreateRoom(c echo.Context) error {
	var req roomReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	rm := &model.Room{IsActive: true}
	req.apply(rm)

	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Rooms.Create(ctx, rm); err != nil {
		return respondError(c, h.Log, "create room", err)
	}
	return c.JSON(http.StatusCreated, rm)
}

// UpdateRoom handles PUT /v1/rooms/:id and replaces the writable fields.
func (h *RoomHandler) UpdateRoom(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req roomReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	rm, err := h.Rooms.FindByID(ctx, id)
	if err != nil {
		return respondError(c, h.Log, "update room", err)
	}
	req.apply(rm)
	if err := h.Rooms.Update(ctx, rm); err != nil {
		return respondError(c, h.Log, "update room", err)
	}
	return c.JSON(http.StatusOK, rm)
}

// DeleteRoom handles DELETE /v1/rooms/:id.  Rooms with bookings or sessions
// are kept and 409 is returned.
func (h *RoomHandler) DeleteRoom(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Rooms.Delete(ctx, id); err != nil {
		return respondError(c, h.Log, "delete room", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SetRating handles PUT /v1/rooms/:id/rating with {"rating": 4.5}.
func (h *RoomHandler) SetRating(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var body struct {
		Rating *float64 `json:"rating"`
	}
	if err := c.Bind(&body); err != nil || body.Rating == nil {
		return badRequest(c, "rating required")
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Rooms.UpdateRating(ctx, id, *body.Rating); err != nil {
		return respondError(c, h.Log, "set room rating", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "average_rating": *body.Rating})
}

// RecalculateRating handles POST /v1/rooms/:id/rating/recalculate.
func (h *RoomHandler) RecalculateRating(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	avg, err := h.Rooms.RecalculateRating(ctx, id)
	if err != nil {
		return respondError(c, h.Log, "recalculate room rating", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "average_rating": avg})
}
