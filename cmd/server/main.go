// Aerochat - streaming aviation chat server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/aerochat/internal/api"
	"github.com/ashureev/aerochat/internal/banner"
	"github.com/ashureev/aerochat/internal/chat"
	"github.com/ashureev/aerochat/internal/completion"
	"github.com/ashureev/aerochat/internal/config"
	"github.com/ashureev/aerochat/internal/identity"
	"github.com/ashureev/aerochat/internal/middleware"
	"github.com/ashureev/aerochat/internal/session"
	"github.com/ashureev/aerochat/internal/store"
	"github.com/ashureev/aerochat/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.SlogLevel())

	persona, err := config.LoadPersona(cfg.Persona)
	if err != nil {
		slog.Error("Failed to load persona", "persona", cfg.Persona, "error", err)
		os.Exit(1)
	}
	if cfg.Completion.Model != "" {
		persona.Model = cfg.Completion.Model
	}

	slog.Info("Starting server",
		"port", cfg.Port,
		"dev", cfg.IsDevelopment(),
		"persona", persona.Title,
		"model", persona.Model,
		"banner_mode", persona.Banner.Mode,
	)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Transcripts live in memory only, so activity rows from a previous run
	// describe sessions that no longer exist.
	cleared, err := repo.DeleteAllSessions(context.Background())
	if err != nil {
		slog.Error("Failed to clear stale sessions", "error", err)
		os.Exit(1)
	}
	slog.Info("Stale session cleanup complete", "sessions_deleted", cleared)

	bannerProvider, err := banner.New(banner.Config{
		Mode:           persona.Banner.Mode,
		URL:            persona.Banner.URL,
		Caption:        persona.Banner.Caption,
		Candidates:     persona.Banner.Candidates,
		FallbackURL:    persona.Banner.FallbackURL,
		FetchTimeout:   cfg.Timeout.BannerFetch,
		MaxUploadBytes: cfg.Limits.MaxUploadBytes,
	})
	if err != nil {
		slog.Error("Failed to initialize banner", "error", err)
		os.Exit(1)
	}

	// Initialize services.
	sessions := session.NewManager(persona.SystemPrompt)
	factory := completion.NewFactory(completion.Config{BaseURL: cfg.Completion.BaseURL})
	driver := chat.NewDriver(factory, chat.Params{
		Model:       persona.Model,
		Temperature: persona.Temperature,
		TopP:        persona.TopP,
	})

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, sessions)
	chatHandler := api.NewChatHandler(baseHandler, driver, persona, bannerProvider, cfg.Limits)
	healthHandler := api.NewHealthHandler(repo, sessions, cfg.Timeout.HealthCheck)
	wsHandler := api.NewWebSocketHandler(chatHandler, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Chat routes are scoped to the anonymous identity.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		chatHandler.RegisterRoutes(r)
		r.Get("/ws/chat", wsHandler.ServeHTTP)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.PageHandler())

	// Note: SSE replies stream for as long as the model needs (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session.StartReaper(ctx, repo, sessions, cfg.SessionTTL)
	slog.Info("Session reaper started", "session_ttl", cfg.SessionTTL)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() || cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
