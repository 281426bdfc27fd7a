package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/escape-room-manager/internal/handler"
	"github.com/iliyamo/escape-room-manager/internal/middleware"
	"github.com/iliyamo/escape-room-manager/internal/model"
)

// Handlers groups the resource handlers served under /v1.
type Handlers struct {
	Rooms    *handler.RoomHandler
	Players  *handler.PlayerHandler
	Bookings *handler.BookingHandler
	Sessions *handler.SessionHandler
	Reports  *handler.ReportHandler
	Users    *handler.UserHandler
}

// RegisterRoutes registers the unauthenticated probes.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
}

// RegisterAuth registers the token endpoints under /v1/auth and the
// caller's own account under /v1/me.  loginLimit guards login against
// password guessing.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, loginLimit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login, loginLimit)
	g.POST("/refresh", a.Refresh)
	// logout works with either a bearer token or a refresh token, so it
	// stays outside the protected group
	g.POST("/logout", a.Logout)

	me := e.Group("/v1/me", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleStaff, model.RoleAdmin))
	me.GET("", a.Me)
	me.PUT("/password", a.ChangePassword)
}

// RegisterAPI registers the front-desk API.  Every route needs a STAFF or
// ADMIN token; account management and room deletion are ADMIN only.
// reportCache wraps the read-only report endpoints.
func RegisterAPI(e *echo.Echo, h Handlers, jwtSecret string, reportCache echo.MiddlewareFunc) {
	api := e.Group("/v1", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleStaff, model.RoleAdmin))
	adminOnly := middleware.RequireRole(model.RoleAdmin)

	rooms := api.Group("/rooms")
	rooms.GET("", h.Rooms.ListRooms)
	rooms.POST("", h.Rooms.CreateRoom)
	rooms.GET("/:id", h.Rooms.GetRoom)
	rooms.PUT("/:id", h.Rooms.UpdateRoom)
	rooms.DELETE("/:id", h.Rooms.DeleteRoom, adminOnly)
	rooms.PUT("/:id/rating", h.Rooms.SetRating, adminOnly)
	rooms.POST("/:id/rating/recalculate", h.Rooms.RecalculateRating)

	players := api.Group("/players")
	players.GET("", h.Players.ListPlayers)
	players.GET("/top", h.Players.TopPlayers)
	players.POST("", h.Players.CreatePlayer)
	players.GET("/:id", h.Players.GetPlayer)
	players.PUT("/:id", h.Players.UpdatePlayer)
	players.DELETE("/:id", h.Players.DeletePlayer)

	bookings := api.Group("/bookings")
	bookings.GET("", h.Bookings.ListBookings)
	bookings.GET("/availability", h.Bookings.Availability)
	bookings.POST("", h.Bookings.CreateBooking)
	bookings.GET("/:id", h.Bookings.GetBooking)
	bookings.PUT("/:id", h.Bookings.UpdateBooking)
	bookings.PATCH("/:id/status", h.Bookings.ChangeStatus)
	bookings.DELETE("/:id", h.Bookings.DeleteBooking)

	sessions := api.Group("/sessions")
	sessions.GET("", h.Sessions.ListSessions)
	sessions.POST("", h.Sessions.RecordSession)
	sessions.GET("/:id", h.Sessions.GetSession)
	sessions.PUT("/:id", h.Sessions.UpdateSession)
	sessions.DELETE("/:id", h.Sessions.DeleteSession)

	reports := api.Group("/reports", reportCache)
	reports.GET("/dashboard", h.Reports.Dashboard)
	reports.GET("/revenue", h.Reports.Revenue)
	reports.GET("/leaderboard", h.Reports.Leaderboard)
	reports.GET("/rooms", h.Reports.Rooms)
	reports.GET("/bookings", h.Reports.Bookings)

	users := api.Group("/users", adminOnly)
	users.GET("", h.Users.ListUsers)
	users.POST("", h.Users.CreateUser)
	users.GET("/:id", h.Users.GetUser)
	users.PUT("/:id", h.Users.UpdateUser)
	users.PUT("/:id/password", h.Users.ResetPassword)
	users.DELETE("/:id", h.Users.DeleteUser)
}
