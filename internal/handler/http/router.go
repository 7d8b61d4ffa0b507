package http

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/user"
	"github.com/cmlabs-hris/training-center-backend-go/internal/handler/http/middleware"
	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/jwt"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/jwtauth/v5"
)

// RouterOptions carries the environment-dependent router settings.
type RouterOptions struct {
	AllowedOrigins []string
	Env            string
	Version        string
	// SubmitLimiter throttles submission routes; nil disables throttling.
	SubmitLimiter *middleware.UserRateLimiter
}

func NewRouter(
	JWTService jwt.Service,
	authHandler AuthHandler,
	absenceHandler AbsenceHandler,
	notificationHandler NotificationHandler,
	opts RouterOptions,
) *chi.Mux {
	r := chi.NewRouter()
	logFormat := httplog.SchemaECS.Concise(opts.Env != "production")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "training-center"),
		slog.String("version", opts.Version),
		slog.String("env", opts.Env),
	)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		MaxAge:           300,
	}))

	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelDebug,
		Schema: httplog.SchemaECS,
		// Streams stay open; their access line is noise.
		Skip: func(req *http.Request, respStatus int) bool {
			return req.URL.Path == "/api/v1/notifications/stream"
		},
	}))

	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/"))

	limit := func(next http.Handler) http.Handler { return next }
	if opts.SubmitLimiter != nil {
		limit = middleware.RateLimitByUser(opts.SubmitLimiter)
	}

	r.Route("/api/v1", func(r chi.Router) {

		r.Route("/auth", func(r chi.Router) {
			r.Post("/refresh", authHandler.RefreshToken)
			r.Post("/logout", authHandler.Logout)

			r.Route("/login", func(r chi.Router) {
				r.Post("/", authHandler.Login)
				r.Post("/verify", authHandler.VerifyLoginCode)
			})

			r.Group(func(r chi.Router) {
				r.Use(jwtauth.Verifier(JWTService.JWTAuth()))
				r.Use(middleware.AuthRequired(JWTService.JWTAuth()))
				r.Use(middleware.RequirePermission(user.PermissionLoginCodeIssue))

				r.Get("/login-sessions", authHandler.ListPendingSessions)
				r.Post("/login-codes", authHandler.IssueLoginCode)
			})
		})

		// SSE authenticates with a short-lived query token.
		r.Get("/notifications/stream", notificationHandler.Stream)

		// Requires authentication
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(JWTService.JWTAuth()))
			r.Use(middleware.AuthRequired(JWTService.JWTAuth()))

			r.Route("/absences", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequirePermission(user.PermissionAbsenceSubmit))
					r.Use(limit)
					r.Post("/validate", absenceHandler.Validate)
					r.Post("/leave", absenceHandler.SubmitLeave)
					r.Post("/permission", absenceHandler.SubmitPermission)
				})

				r.With(middleware.RequirePermission(user.PermissionAbsenceReadOwn)).Get("/my", absenceHandler.ListMy)
				r.With(middleware.RequirePermission(user.PermissionAbsenceReadAll)).Get("/", absenceHandler.List)

				r.Route("/{id}", func(r chi.Router) {
					r.With(middleware.RequirePermission(user.PermissionAbsenceReadOwn)).Get("/", absenceHandler.Get)
					r.With(middleware.RequirePermission(user.PermissionAbsenceReadOwn)).Get("/certificate", absenceHandler.Certificate)
					r.With(middleware.RequirePermission(user.PermissionAbsenceReadOwn)).Get("/attachments/{index}", absenceHandler.Attachment)
					r.With(middleware.RequirePermission(user.PermissionAbsenceSubmit)).Post("/withdraw", absenceHandler.Withdraw)

					r.Group(func(r chi.Router) {
						r.Use(middleware.RequirePermission(user.PermissionAbsenceDecide))
						r.Post("/approve", absenceHandler.Approve)
						r.Post("/refuse", absenceHandler.Refuse)
					})
				})
			})

			r.Route("/quotas", func(r chi.Router) {
				r.With(middleware.RequirePermission(user.PermissionAbsenceReadOwn)).Get("/my", absenceHandler.GetMyQuota)
				r.With(middleware.RequirePermission(user.PermissionQuotaReadAll)).Get("/{userID}", absenceHandler.GetUserQuota)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Use(middleware.RequirePermission(user.PermissionNotificationRead))

				r.Get("/", notificationHandler.List)
				r.Get("/unread-count", notificationHandler.UnreadCount)
				r.Post("/read", notificationHandler.MarkAsRead)
				r.Post("/read-all", notificationHandler.MarkAllAsRead)
				r.Delete("/{id}", notificationHandler.Delete)
				r.Get("/preferences", notificationHandler.GetPreferences)
				r.Put("/preferences", notificationHandler.UpdatePreference)
				r.Get("/sse-token", notificationHandler.GetSSEToken)
			})
		})
	})

	return r
}
