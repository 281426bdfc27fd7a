package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/escape-room-manager/internal/model"
	"github.com/iliyamo/escape-room-manager/internal/repository"
)

// PlayerHandler serves /v1/players.
type PlayerHandler struct {
	Players *repository.PlayerRepo
	Log     *slog.Logger
}

func NewPlayerHandler(players *repository.PlayerRepo, logger *slog.Logger) *PlayerHandler {
	return &PlayerHandler{Players: players, Log: logger}
}

// playerReq carries the contact fields.  Game statistics are only ever
// changed by recording sessions.
type playerReq struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

func (req playerReq) apply(p *model.Player) {
	p.FirstName = strings.TrimSpace(req.FirstName)
	p.LastName = strings.TrimSpace(req.LastName)
	p.Email = req.Email
	p.Phone = req.Phone
}

// ListPlayers handles GET /v1/players.  ?email= looks up one player and ?q=
// searches by name.
func (h *PlayerHandler) ListPlayers(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	if email := strings.TrimSpace(c.QueryParam("email")); email != "" {
		p, err := h.Players.FindByEmail(ctx, email)
		if err != nil {
			return respondError(c, h.Log, "find player by email", err)
		}
		return c.JSON(http.StatusOK, echo.Map{"items": []model.Player{*p}})
	}

	var (
		items []model.Player
		err   error
	)
	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		items, err = h.Players.SearchByName(ctx, q)
	} else {
		items, err = h.Players.FindAll(ctx)
	}
	if err != nil {
		return respondError(c, h.Log, "list players", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// TopPlayers handles GET /v1/players/top?limit=.
func (h *PlayerHandler) TopPlayers(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	items, err := h.Players.TopPlayers(ctx, queryLimit(c, repository.DefaultTopPlayers, 100))
	if err != nil {
		return respondError(c, h.Log, "top players", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// GetPlayer handles GET /v1/players/:id.
func (h *PlayerHandler) GetPlayer(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	p, err := h.Players.FindByID(ctx, id)
	if err != nil {
		return respondError(c, h.Log, "get player", err)
	}
	return c.JSON(http.StatusOK, p)
}

// CreatePlayer handles POST /v1/players.
func (h *PlayerHandler) CreatePlayer(c echo.Context) error {
	var req playerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	p := &model.Player{}
	req.apply(p)

	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Players.Create(ctx, p); err != nil {
		return respondError(c, h.Log, "create player", err)
	}
	return c.JSON(http.StatusCreated, p)
}

// UpdatePlayer handles PUT /v1/players/:id.  Statistics and the
// registration date are carried over from the stored row.
func (h *PlayerHandler) UpdatePlayer(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req playerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	p, err := h.Players.FindByID(ctx, id)
	if err != nil {
		return respondError(c, h.Log, "update player", err)
	}
	req.apply(p)
	if err := h.Players.Update(ctx, p); err != nil {
		return respondError(c, h.Log, "update player", err)
	}
	return c.JSON(http.StatusOK, p)
}

// DeletePlayer handles DELETE /v1/players/:id.
func (h *PlayerHandler) DeletePlayer(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Players.Delete(ctx, id); err != nil {
		return respondError(c, h.Log, "delete player", err)
	}
	return c.NoContent(http.StatusNoContent)
}
