package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinicdesk/booking-service/internal/api"
	"github.com/clinicdesk/booking-service/internal/booking"
	"github.com/clinicdesk/booking-service/internal/config"
	"github.com/clinicdesk/booking-service/internal/db"
	"github.com/clinicdesk/booking-service/internal/identity"
	"github.com/clinicdesk/booking-service/internal/notify"
	redisclient "github.com/clinicdesk/booking-service/internal/redis"
	"github.com/clinicdesk/booking-service/pkg/logging"
)

const version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("running", "env", cfg.Env, "http_port", cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("error closing redis", "error", err)
		}
	}()
	logger.Info("connected to Redis")

	repo := identity.NewPgRepository(pgPool)
	identitySvc := identity.NewService(repo, repo, cfg.StoreTimeout, logger)
	issuer := identity.NewSessionIssuer(cfg.SessionSecret, cfg.SessionTTL)

	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	bookingRepo := booking.NewPgRepository(pgPool)
	bookingSvc := booking.NewService(bookingRepo, locker, repo, cfg.StoreTimeout, logger)

	notifier := newNotifier(cfg, logger)
	bookingSvc.OnBooked(func(ctx context.Context, appt booking.Appointment) {
		notifier.Notify(ctx,
			"New Appointment",
			fmt.Sprintf("Appointment booked with %s on %s at %s", appt.DoctorName, appt.Date, appt.Time),
		)
	})

	router := api.NewRouter(api.RouterConfig{
		Bookings: bookingSvc,
		Identity: identitySvc,
		Issuer:   issuer,
		PgPool:   pgPool,
		Redis:    rdb,
		Logger:   logger,
		Env:      cfg.Env,
		Version:  version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
}

func newNotifier(cfg config.Config, logger *logging.Logger) notify.Notifier {
	notifiers := notify.Multi{notify.NewLogNotifier(logger)}

	if cfg.NotifyInbox != "" {
		email := notify.NewEmailNotifier(notify.EmailConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.NotifyFromEmail,
			FromName:  cfg.NotifyFromName,
		}, cfg.NotifyInbox, "Front Desk", logger)
		if email != nil {
			notifiers = append(notifiers, email)
		}
	}

	return notifiers
}
