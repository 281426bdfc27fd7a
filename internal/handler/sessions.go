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

// SessionHandler serves /v1/sessions.
type SessionHandler struct {
	Sessions *repository.GameSessionRepo
	Workflow *service.Sessions
	Log      *slog.Logger
}

func NewSessionHandler(sessions *repository.GameSessionRepo, workflow *service.Sessions, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{Sessions: sessions, Workflow: workflow, Log: logger}
}

type sessionReq struct {
	BookingID *uint64         `json:"booking_id"`
	RoomID    uint64          `json:"room_id"`
	StartTime time.Time       `json:"start_time"`
	EndTime   *time.Time      `json:"end_time"`
	Completed bool            `json:"completed"`
	TimeSpent int             `json:"time_spent"`
	HintsUsed int             `json:"hints_used"`
	Rating    *int            `json:"rating"`
	Review    string          `json:"review"`
	Revenue   decimal.Decimal `json:"revenue"`
}

func (req sessionReq) toSession(id uint64) *model.GameSession {
	return &model.GameSession{
		ID:        id,
		BookingID: req.BookingID,
		RoomID:    req.RoomID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Completed: req.Completed,
		TimeSpent: req.TimeSpent,
		HintsUsed: req.HintsUsed,
		Rating:    req.Rating,
		Review:    strings.TrimSpace(req.Review),
		Revenue:   req.Revenue,
	}
}

// ListSessions handles GET /v1/sessions with optional ?room_id= or
// ?start=&end=.
func (h *SessionHandler) ListSessions(c echo.Context) error {
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

	var items []model.GameSession
	switch {
	case roomID != 0:
		items, err = h.Sessions.FindByRoom(ctx, roomID)
	case ranged:
		items, err = h.Sessions.FindByDateRange(ctx, start, end)
	default:
		items, err = h.Sessions.FindAll(ctx)
	}
	if err != nil {
		return respondError(c, h.Log, "list sessions", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// GetSession handles GET /v1/sessions/:id.
func (h *SessionHandler) GetSession(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	gs, err := h.Sessions.FindByID(ctx, id)
	if err != nil {
		return respondError(c, h.Log, "get session", err)
	}
	return c.JSON(http.StatusOK, gs)
}

// RecordSession handles POST /v1/sessions.  Player statistics and the
// room rating are updated in the same transaction.
func (h *SessionHandler) RecordSession(c echo.Context) error {
	var req sessionReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	gs := req.toSession(0)

	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Workflow.Record(ctx, gs); err != nil {
		return respondError(c, h.Log, "record session", err)
	}
	return c.JSON(http.StatusCreated, gs)
}

// UpdateSession handles PUT /v1/sessions/:id.
func (h *SessionHandler) UpdateSession(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req sessionReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	gs := req.toSession(id)

	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Workflow.Update(ctx, gs); err != nil {
		return respondError(c, h.Log, "update session", err)
	}
	return c.JSON(http.StatusOK, gs)
}

// DeleteSession handles DELETE /v1/sessions/:id.
func (h *SessionHandler) DeleteSession(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Workflow.Delete(ctx, id); err != nil {
		return respondError(c, h.Log, "delete session", err)
	}
	return c.NoContent(http.StatusNoContent)
}
