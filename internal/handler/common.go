package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/escape-room-manager/internal/model"
	"github.com/iliyamo/escape-room-manager/internal/repository"
	"github.com/iliyamo/escape-room-manager/internal/service"
)

// requestTimeout bounds the store work of a single request.
const requestTimeout = 5 * time.Second

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// errorStatus maps domain errors onto HTTP statuses.  Anything unknown is a
// store failure.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrInvalidCredentials), errors.Is(err, repository.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrDuplicate),
		errors.Is(err, repository.ErrConflict),
		errors.Is(err, service.ErrIllegalTransition),
		errors.Is(err, service.ErrRoomUnavailable),
		errors.Is(err, service.ErrCapacityExceeded),
		errors.Is(err, service.ErrRoomInactive):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError writes err as a JSON error body.  Store failures are logged
// here, once, and reach the client only as a generic message.
func respondError(c echo.Context, logger *slog.Logger, op string, err error) error {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(c.Request().Context(), op+" failed",
			"err", err,
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID))
		return c.JSON(status, echo.Map{"error": "internal error, try again"})
	}
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return c.JSON(status, echo.Map{"error": model.ErrValidation.Error(), "fields": verr.Fields})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// queryID reads an optional numeric query parameter; 0 means absent.
func queryID(c echo.Context, name string) (uint64, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// queryLimit reads ?limit=, falling back to def and capping at most.
func queryLimit(c echo.Context, def, most int) int {
	n, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, most)
}

// parseTime accepts RFC 3339 timestamps or plain dates.  dateOnly reports
// which form was given so a range end can be stretched to the whole day.
func parseTime(raw string) (t time.Time, dateOnly bool, err error) {
	raw = strings.TrimSpace(raw)
	if t, err = time.Parse(time.RFC3339, raw); err == nil {
		return t, false, nil
	}
	if t, err = time.Parse(time.DateOnly, raw); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, fmt.Errorf("invalid time %q, want RFC 3339 or YYYY-MM-DD", raw)
}

// parseRange reads ?start=&end=.  A date-only end covers that whole day.
// ok is false when neither bound was given.
func parseRange(c echo.Context) (start, end time.Time, ok bool, err error) {
	rawStart, rawEnd := c.QueryParam("start"), c.QueryParam("end")
	if rawStart == "" && rawEnd == "" {
		return time.Time{}, time.Time{}, false, nil
	}
	if rawStart == "" || rawEnd == "" {
		return time.Time{}, time.Time{}, false, errors.New("start and end must be given together")
	}
	if start, _, err = parseTime(rawStart); err != nil {
		return
	}
	var day bool
	if end, day, err = parseTime(rawEnd); err != nil {
		return
	}
	if day {
		end = end.AddDate(0, 0, 1).Add(-time.Second)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, false, errors.New("end must not be before start")
	}
	return start, end, true, nil
}
