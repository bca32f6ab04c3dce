package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"postboard/internal/auth"
	"postboard/internal/comment"
	"postboard/internal/config"
	"postboard/internal/db"
	"postboard/internal/mail"
	"postboard/internal/maintenance"
	"postboard/internal/media"
	"postboard/internal/observability"
	"postboard/internal/post"
	"postboard/internal/token"
)

type Options struct {
	LoadDotEnv bool
}

type Runtime struct {
	Config  config.Config
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	database.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	database.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.DB.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.RunMigrations {
		if err := db.RunMigrations(ctx, database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	store, err := newMediaStore(ctx, cfg.Media)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init media store: %w", err)
	}

	publisher, closePublisher, err := newMailPublisher(cfg.Mail, logger)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init mail publisher: %w", err)
	}

	handler := NewHandler(cfg, Deps{
		DB:        database,
		Logger:    logger,
		Media:     store,
		Publisher: publisher,
	})

	logger.Info("app_ready", map[string]any{
		"environment":      cfg.Environment,
		"media_backend":    cfg.Media.Backend,
		"refresh_revoking": cfg.Tokens.RevokeRefreshTokens,
	})

	return &Runtime{
		Config:  cfg,
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			if err := closePublisher(); err != nil {
				logger.Warn("close_mail_publisher_failed", map[string]any{"error": err})
			}
			return database.Close()
		},
	}, nil
}

// Deps are the external resources the HTTP surface is built on.
type Deps struct {
	DB        *sql.DB
	Logger    *observability.Logger
	Media     media.Store
	Publisher mail.Publisher
}

// NewHandler wires repositories, services and routes into the final
// middleware-wrapped handler.
func NewHandler(cfg config.Config, deps Deps) http.Handler {
	logger := deps.Logger

	tokens := token.NewService(cfg.Tokens)
	users := auth.NewRepository(deps.DB)
	revocations := auth.NewRevocationRepository(deps.DB)

	authService := auth.NewService(users, tokens, deps.Publisher, logger)
	if cfg.Tokens.RevokeRefreshTokens {
		authService.WithRevocations(revocations)
	}
	authHandler := auth.NewHandler(authService, auth.CookieSettings{
		Secure: cfg.Production(),
		MaxAge: cfg.Tokens.RefreshTTL,
	}, logger)

	library := media.NewLibrary(deps.Media, media.NewRepository(deps.DB), logger)
	postRepo := post.NewRepository(deps.DB)
	commentRepo := comment.NewRepository(deps.DB)
	postHandler := post.NewHandler(post.NewService(postRepo, commentRepo, library, logger), logger)
	commentHandler := comment.NewHandler(comment.NewService(commentRepo, postRepo, logger), logger)
	uploadHandler := media.NewUploadHandler(library, logger)

	cleanupHandler := maintenance.NewCleanupHandler(
		revocations,
		logger,
		cfg.CronSecret,
		cfg.Tokens.RevocationRetention,
		cfg.Tokens.RevocationBatchSize,
	)

	loginLimiter := auth.NewLoginRateLimiter(cfg.LoginRate.MaxHits, cfg.LoginRate.Window).
		TrustForwarded(cfg.TrustProxyHeaders)

	required := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(authService, logger, h)
	}
	optional := func(h http.HandlerFunc) http.Handler {
		return auth.OptionalMiddleware(authService, h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", authHandler.Register)
	mux.Handle("POST /auth/login", loginLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("POST /auth/refresh", authHandler.Refresh)
	mux.HandleFunc("POST /auth/logout", authHandler.Logout)
	mux.HandleFunc("POST /auth/request-verify-token", authHandler.RequestVerifyToken)
	mux.HandleFunc("POST /auth/verify", authHandler.Verify)
	mux.HandleFunc("POST /auth/forgot-password", authHandler.ForgotPassword)
	mux.HandleFunc("POST /auth/reset-password", authHandler.ResetPassword)

	mux.Handle("GET /protected", required(authHandler.Protected))
	mux.Handle("GET /users/me", required(authHandler.Me))
	mux.Handle("PATCH /users/me", required(authHandler.UpdateMe))

	mux.Handle("GET /posts", optional(postHandler.List))
	mux.Handle("POST /posts", required(postHandler.Create))
	mux.Handle("GET /posts/{id}", optional(postHandler.Get))
	mux.Handle("PATCH /posts/{id}", required(postHandler.Update))
	mux.Handle("DELETE /posts/{id}", required(postHandler.Delete))
	mux.Handle("POST /posts/{id}/like", required(postHandler.ToggleLike))

	mux.HandleFunc("GET /posts/{id}/comments", commentHandler.List)
	mux.Handle("POST /posts/{id}/comments", required(commentHandler.Create))
	mux.Handle("PATCH /comments/{id}", required(commentHandler.Update))
	mux.Handle("DELETE /comments/{id}", required(commentHandler.Delete))

	mux.Handle("POST /uploads", required(uploadHandler.Upload))
	mux.Handle("POST /uploads/upload", required(uploadHandler.Upload))
	if local, ok := deps.Media.(*media.LocalStore); ok {
		mux.Handle("GET /static/", local.Handler())
	}

	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(deps.DB))

	return observability.RecoverMiddleware(logger,
		observability.RequestLoggingMiddleware(logger,
			observability.TimeoutMiddleware(cfg.RequestTimeout, mux)))
}

func newMediaStore(ctx context.Context, cfg config.Media) (media.Store, error) {
	switch cfg.Backend {
	case "r2":
		return media.NewR2Store(ctx, cfg.R2)
	case "cloudinary":
		return media.NewCloudinary(cfg.CloudinaryURL)
	default:
		return media.NewLocalStore(cfg.LocalDir, cfg.PublicBaseURL)
	}
}

// newMailPublisher connects to the broker when one is configured and falls
// back to logging token events otherwise.
func newMailPublisher(cfg config.Mail, logger *observability.Logger) (mail.Publisher, func() error, error) {
	if cfg.AMQPURL == "" {
		return mail.NewLogPublisher(logger), func() error { return nil }, nil
	}

	publisher, err := mail.NewAMQPPublisher(cfg.AMQPURL, cfg.Queue)
	if err != nil {
		return nil, nil, err
	}
	return publisher, publisher.Close, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
