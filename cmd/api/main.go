package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/config"
	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/absence"
	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/auth"
	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/notification"
	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/user"
	"github.com/cmlabs-hris/training-center-backend-go/internal/fixtures"
	appHTTP "github.com/cmlabs-hris/training-center-backend-go/internal/handler/http"
	"github.com/cmlabs-hris/training-center-backend-go/internal/handler/http/middleware"
	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/cron"
	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/database"
	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/email"
	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/events"
	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/jwt"
	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/sse"
	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/storage"
	"github.com/cmlabs-hris/training-center-backend-go/internal/repository/memory"
	"github.com/cmlabs-hris/training-center-backend-go/internal/repository/postgresql"
	redisrepo "github.com/cmlabs-hris/training-center-backend-go/internal/repository/redis"
	absenceService "github.com/cmlabs-hris/training-center-backend-go/internal/service/absence"
	serviceAuth "github.com/cmlabs-hris/training-center-backend-go/internal/service/auth"
	"github.com/cmlabs-hris/training-center-backend-go/internal/service/file"
	notificationService "github.com/cmlabs-hris/training-center-backend-go/internal/service/notification"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

var version = "dev"

// repositories groups the storage backends selected by DB_DRIVER.
type repositories struct {
	tx            absence.Transactor
	absences      absence.Repository
	users         user.UserRepository
	notifications notification.Repository
	close         func()
}

func main() {
	if err := run(); err != nil {
		slog.Error("Server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	slog.SetDefault(newLogger(cfg.App.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc := cfg.Location()
	policy := cfg.AbsencePolicy()

	repos, err := openRepositories(ctx, cfg, loc)
	if err != nil {
		return err
	}
	defer repos.close()

	var sessions auth.SessionStore
	cleanupSessions := false
	if cfg.Redis.Enabled() {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		sessions = redisrepo.NewLoginSessionStore(rdb)
	} else {
		sessions = memory.NewLoginSessionStore()
		cleanupSessions = true
	}

	publisher := events.NewNoopPublisher()
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Kafka.Brokers), cfg.Kafka.Topic)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			slog.Error("Failed to close event publisher", "error", err)
		}
	}()

	var emailService email.EmailService
	if cfg.SMTP.Host != "" {
		emailService, err = email.NewEmailService(cfg.SMTP)
		if err != nil {
			return fmt.Errorf("initializing email service: %w", err)
		}
	} else {
		slog.Warn("SMTP_HOST not set, emails are disabled")
	}

	if cfg.App.SeedPassword != "" {
		if _, err := fixtures.SeedUsers(ctx, repos.users, cfg.App.SeedPassword); err != nil {
			return fmt.Errorf("seeding demo users: %w", err)
		}
	}

	hub := sse.NewHub(16)
	notifSvc := notificationService.NewNotificationService(repos.notifications, hub, notificationService.Config{
		BatchSize:     cfg.Notification.BatchSize,
		FlushInterval: cfg.Notification.FlushInterval,
		WorkerCount:   cfg.Notification.WorkerCount,
		QueueSize:     cfg.Notification.QueueSize,
	})
	defer notifSvc.Stop()

	dispatcher := notificationService.NewDispatcher(notifSvc, repos.users, emailService, publisher, loc, cfg.App.BaseURL)
	defer dispatcher.Wait()
	absenceSvc := absenceService.NewAbsenceService(repos.tx, repos.absences, repos.users, dispatcher, policy)

	JWTService, err := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiration, cfg.JWT.RefreshExpiration)
	if err != nil {
		return fmt.Errorf("initializing jwt: %w", err)
	}

	fileStorage, err := storage.NewLocalStorage(cfg.Storage.BasePath)
	if err != nil {
		return fmt.Errorf("initializing local storage: %w", err)
	}
	fileService := file.NewFileService(fileStorage)

	authService := serviceAuth.NewAuthService(repos.users, sessions, JWTService, emailService, serviceAuth.Config{
		SessionTTL:      cfg.LoginSession.TTL,
		MaxCodeAttempts: cfg.LoginSession.MaxCodeAttempts,
	})

	submitLimiter := middleware.NewUserRateLimiter(rate.Limit(cfg.RateLimit.SubmitPerSecond), cfg.RateLimit.SubmitBurst)

	authHandler := appHTTP.NewAuthHandler(JWTService, authService)
	absenceHandler := appHTTP.NewAbsenceHandler(absenceSvc, fileService, policy)
	notificationHandler := appHTTP.NewNotificationHandler(notifSvc, JWTService)

	router := appHTTP.NewRouter(
		JWTService,
		authHandler,
		absenceHandler,
		notificationHandler,
		appHTTP.RouterOptions{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			Env:            cfg.App.Env,
			Version:        version,
			SubmitLimiter:  submitLimiter,
		},
	)

	scheduler := cron.NewScheduler()
	jobs := cron.NewAbsenceJobs(absenceSvc, authService, submitLimiter, cfg.Sweep.Interval, cleanupSessions)
	if cfg.Sweep.Enabled {
		if err := jobs.RegisterJobs(scheduler); err != nil {
			return fmt.Errorf("registering cron jobs: %w", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Server running", "addr", srv.Addr, "env", cfg.App.Env, "db_driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

func openRepositories(ctx context.Context, cfg *config.Config, loc *time.Location) (repositories, error) {
	if cfg.Database.Driver == "memory" {
		absences := memory.NewAbsenceStore(loc)
		slog.Warn("Using in-memory storage, data is lost on restart")
		return repositories{
			tx:            absences,
			absences:      absences,
			users:         memory.NewUserStore(),
			notifications: memory.NewNotificationStore(),
			close:         func() {},
		}, nil
	}

	dsn := cfg.DatabaseURL()
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(dsn); err != nil {
			return repositories{}, fmt.Errorf("running migrations: %w", err)
		}
	}
	db, err := database.NewPostgreSQLDB(ctx, dsn)
	if err != nil {
		return repositories{}, fmt.Errorf("connecting to database: %w", err)
	}
	return repositories{
		tx:            postgresql.NewTransactor(db),
		absences:      postgresql.NewAbsenceRequestRepository(db, loc),
		users:         postgresql.NewUserRepository(db),
		notifications: postgresql.NewNotificationRepository(db),
		close:         db.Close,
	}, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
