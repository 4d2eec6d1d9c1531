package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/seatlock-engine/internal/cache"
	"github.com/iliyamo/seatlock-engine/internal/config"
	"github.com/iliyamo/seatlock-engine/internal/database"
	"github.com/iliyamo/seatlock-engine/internal/handler"
	"github.com/iliyamo/seatlock-engine/internal/logger"
	"github.com/iliyamo/seatlock-engine/internal/metrics"
	"github.com/iliyamo/seatlock-engine/internal/notify"
	"github.com/iliyamo/seatlock-engine/internal/queue"
	"github.com/iliyamo/seatlock-engine/internal/ratelimit"
	"github.com/iliyamo/seatlock-engine/internal/repository"
	"github.com/iliyamo/seatlock-engine/internal/router"
	"github.com/iliyamo/seatlock-engine/internal/seatlock"
	"github.com/iliyamo/seatlock-engine/internal/service"
	"github.com/iliyamo/seatlock-engine/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	zl, err := logger.New(cfg.App.LogPath, cfg.App.Debug)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	db, err := database.Open(database.Options{
		User:         cfg.Database.User,
		Pass:         cfg.Database.Password,
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		Name:         cfg.Database.Name,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if cfg.App.MigrateOnStart {
		if err := database.Migrate(db.DB); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		zl.Info("schema up to date")
	}

	// Ephemeral store: Redis when reachable, otherwise the in-process
	// fallback, which only coordinates requests within this instance.
	var (
		st  store.Store
		pub notify.Publisher
	)
	hub := notify.NewHub(0, m)
	if rdb := config.NewRedisClient(cfg.Redis); rdb != nil {
		defer rdb.Close()
		st = store.NewRedis(rdb, cfg.Redis.OpTimeout)
		relay := notify.NewRedisRelay(rdb, hub, zl)
		go relay.Run(ctx, nil)
		pub = relay
		zl.Info("ephemeral store ready", zap.String("backend", "redis"), zap.String("addr", cfg.Redis.Addr))
	} else {
		mem := store.NewMemory()
		go mem.RunJanitor(ctx, time.Minute)
		st = mem
		pub = hub
		m.StoreBestEffort.Set(1)
		zl.Warn("redis unavailable, using in-process store; seat locks are best-effort and not shared across instances",
			zap.String("addr", cfg.Redis.Addr))
	}

	bookingRepo := repository.NewBookingRepo(db, cfg.Database.Timeout)
	movieRepo := repository.NewMovieRepo(db, cfg.Database.Timeout)
	showRepo := repository.NewShowRepo(db, cfg.Database.Timeout)

	c := cache.New(st, cfg.Cache.TTL, zl, m)
	catalog := service.NewCatalogService(movieRepo, showRepo, c, zl)

	var events service.BookingEvents
	if cfg.Queue.URL != "" {
		events = queue.NewPublisher(cfg.Queue.URL, zl)
		if err := os.MkdirAll(filepath.Dir(cfg.Queue.BookingLogPath), 0o755); err != nil {
			return fmt.Errorf("booking log dir: %w", err)
		}
		audit := logger.Rotating(cfg.Queue.BookingLogPath)
		defer audit.Close()
		go queue.NewConsumer(cfg.Queue.URL, audit, zl).Run(ctx)
	} else {
		zl.Info("RABBITMQ_URL not set, booking.confirmed messages disabled")
	}

	bookings := service.NewBookingService(service.BookingDeps{
		Bookings:  bookingRepo,
		Movies:    movieRepo,
		Shows:     showRepo,
		Catalog:   catalog,
		Locks:     seatlock.NewManager(st, cfg.SeatLock.TTL, pub, zl, m),
		Limiter:   ratelimit.New(st, cfg.RateLimit.Policies(), zl, m),
		Cache:     c,
		Publisher: pub,
		Events:    events,
		Log:       zl,
		Metrics:   m,
	})

	e := router.New(router.Handlers{
		Health:  handler.NewHealthHandler(db, st),
		Catalog: handler.NewCatalogHandler(catalog),
		Booking: handler.NewBookingHandler(bookings),
		Events:  handler.NewEventsHandler(catalog, hub, zl),
	}, router.Options{JWTSecret: cfg.JWT.Secret, Log: zl, Metrics: m})

	addr := ":" + cfg.App.Port
	errCh := make(chan error, 1)
	go func() {
		zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.App.Env), zap.String("store", st.Name()))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
