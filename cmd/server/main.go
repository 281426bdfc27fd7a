package main // Entry point package

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/escape-room-manager/internal/config"
	"github.com/iliyamo/escape-room-manager/internal/database"
	"github.com/iliyamo/escape-room-manager/internal/handler"
	"github.com/iliyamo/escape-room-manager/internal/logging"
	"github.com/iliyamo/escape-room-manager/internal/middleware"
	"github.com/iliyamo/escape-room-manager/internal/queue"
	"github.com/iliyamo/escape-room-manager/internal/report"
	"github.com/iliyamo/escape-room-manager/internal/repository"
	"github.com/iliyamo/escape-room-manager/internal/router"
	"github.com/iliyamo/escape-room-manager/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.DB.AutoMigrate {
		if err := database.Migrate(ctx, db, cfg.DB.Driver); err != nil {
			return err
		}
	}

	rooms := repository.NewRoomRepo(db)
	players := repository.NewPlayerRepo(db)
	bookings := repository.NewBookingRepo(db)
	sessions := repository.NewGameSessionRepo(db)
	users := repository.NewUserRepo(db, cfg.Auth.BcryptCost)
	tokens := repository.NewTokenRepo(db)

	if _, err := service.EnsureAdmin(ctx, users, cfg.Auth, logger); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	// redis is optional; without it the report cache and login limiter are off
	rdb := config.NewRedisClient(ctx, cfg.Redis)
	if rdb == nil {
		logger.Warn("redis_unavailable", slog.String("addr", cfg.Redis.Address()))
	} else {
		defer rdb.Close()
	}

	events := service.NewPublisher(cfg.Queue)
	bookingFlow := service.NewBookings(rooms, bookings, events, logger)
	sessionFlow := service.NewSessions(db, rooms, players, sessions, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover(), middleware.RequestID(), middleware.RequestLogger(logger))

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e,
		handler.NewAuthHandler(cfg.Auth, users, tokens, logger),
		cfg.Auth.JWTSecret,
		middleware.NewTokenBucket(cfg.RateLimit, rdb))
	router.RegisterAPI(e, router.Handlers{
		Rooms:    handler.NewRoomHandler(rooms, logger),
		Players:  handler.NewPlayerHandler(players, logger),
		Bookings: handler.NewBookingHandler(bookings, bookingFlow, logger),
		Sessions: handler.NewSessionHandler(sessions, sessionFlow, logger),
		Reports:  handler.NewReportHandler(report.NewService(rooms, players, bookings, sessions), logger),
		Users:    handler.NewUserHandler(users, tokens, logger),
	}, cfg.Auth.JWTSecret, middleware.NewRedisCache(cfg.Cache, rdb))

	var consumer *queue.Consumer
	if cfg.Queue.ConsumerEnabled {
		if consumer, err = queue.NewConsumer(cfg.Queue, cfg.Log, logger); err != nil {
			return err
		}
		defer consumer.Close()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info("listening", slog.String("addr", addr), slog.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting_down")
		return e.Shutdown(shutdownCtx)
	})
	if consumer != nil {
		g.Go(func() error { return consumer.Run(ctx) })
	}
	return g.Wait()
}
