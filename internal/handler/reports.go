package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/escape-room-manager/internal/model"
	"github.com/iliyamo/escape-room-manager/internal/report"
)

// ReportHandler serves /v1/reports.  Every report is returned as structured
// JSON, or flattened to a table with ?format=table.
type ReportHandler struct {
	Reports *report.Service
	Log     *slog.Logger
	// Now is the reporting clock.
	Now func() time.Time
}

func NewReportHandler(reports *report.Service, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{Reports: reports, Log: logger, Now: time.Now}
}

type tabler interface {
	Table() report.Table
}

func writeReport(c echo.Context, v tabler) error {
	if c.QueryParam("format") == "table" {
		return c.JSON(http.StatusOK, v.Table())
	}
	return c.JSON(http.StatusOK, v)
}

// Dashboard handles GET /v1/reports/dashboard.
func (h *ReportHandler) Dashboard(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	d, err := h.Reports.Dashboard(ctx, h.Now())
	if err != nil {
		return respondError(c, h.Log, "dashboard report", err)
	}
	return writeReport(c, d)
}

// Revenue handles GET /v1/reports/revenue?start=&end=.  Without a range it
// covers the current month up to now.
func (h *ReportHandler) Revenue(c echo.Context) error {
	start, end, ok, err := parseRange(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if !ok {
		end = h.Now()
		start = time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, end.Location())
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	r, err := h.Reports.Revenue(ctx, start, end)
	if err != nil {
		return respondError(c, h.Log, "revenue report", err)
	}
	return writeReport(c, r)
}

// Leaderboard handles GET /v1/reports/leaderboard?limit=.
func (h *ReportHandler) Leaderboard(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	lb, err := h.Reports.Leaderboard(ctx, queryLimit(c, 10, 100))
	if err != nil {
		return respondError(c, h.Log, "leaderboard report", err)
	}
	return writeReport(c, lb)
}

// Rooms handles GET /v1/reports/rooms.
func (h *ReportHandler) Rooms(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	p, err := h.Reports.RoomPerformance(ctx)
	if err != nil {
		return respondError(c, h.Log, "room report", err)
	}
	return writeReport(c, p)
}

// Bookings handles GET /v1/reports/bookings?status=.
func (h *ReportHandler) Bookings(c echo.Context) error {
	var status model.BookingStatus
	if raw := c.QueryParam("status"); raw != "" {
		st, ok := model.ParseBookingStatus(raw)
		if !ok {
			return badRequest(c, "unknown status")
		}
		status = st
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	l, err := h.Reports.Bookings(ctx, status)
	if err != nil {
		return respondError(c, h.Log, "booking report", err)
	}
	return writeReport(c, l)
}
