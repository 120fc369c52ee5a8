// Schema Quest - medallion schema design game server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/schema-quest/internal/api"
	"github.com/ashureev/schema-quest/internal/archive"
	"github.com/ashureev/schema-quest/internal/config"
	"github.com/ashureev/schema-quest/internal/content"
	"github.com/ashureev/schema-quest/internal/events"
	"github.com/ashureev/schema-quest/internal/identity"
	"github.com/ashureev/schema-quest/internal/ingest"
	"github.com/ashureev/schema-quest/internal/middleware"
	"github.com/ashureev/schema-quest/internal/opsgrpc"
	"github.com/ashureev/schema-quest/internal/quest"
	"github.com/ashureev/schema-quest/internal/retry"
	"github.com/ashureev/schema-quest/internal/store"
	"github.com/ashureev/schema-quest/web"
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
	if cfg.Debug {
		level.Set(slog.LevelDebug)
	}

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "archive", cfg.Archive.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		return err
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	gemini, err := content.NewClient(content.Config{
		APIKey:      cfg.Gemini.APIKey,
		BaseURL:     cfg.Gemini.BaseURL,
		Model:       cfg.Gemini.Model,
		SpeechModel: cfg.Gemini.SpeechModel,
		Voice:       cfg.Gemini.Voice,
		Timeout:     cfg.Gemini.Timeout,
	}, logger)
	if err != nil {
		return err
	}

	standard := retry.Standard(content.IsTransient).WithLogger(logger)
	standard.MaxRetries, standard.BaseDelay = cfg.Retry.StandardMax, cfg.Retry.StandardBase
	fast := retry.FastFail(content.IsTransient).WithLogger(logger)
	fast.MaxRetries, fast.BaseDelay = cfg.Retry.FastMax, cfg.Retry.FastBase
	contentSvc := content.WithRetry(gemini, standard, fast)

	archiver, err := archive.New(ctx, archive.Config{
		Backend:         cfg.Archive.Backend,
		DriveFolderID:   cfg.Archive.DriveFolderID,
		CredentialsFile: cfg.Archive.CredentialsFile,
		APIKey:          cfg.Archive.DriveAPIKey,
		GCSBucket:       cfg.Archive.GCSBucket,
	}, logger)
	if err != nil {
		return err
	}
	if closer, ok := archiver.(interface{ Close() error }); ok {
		defer func() {
			if closeErr := closer.Close(); closeErr != nil {
				slog.Warn("Failed to close archive client", "error", closeErr)
			}
		}()
	}

	hub := events.NewHub(logger)
	quests := quest.NewService(quest.Deps{
		Content:   contentSvc,
		Repo:      repo,
		Archiver:  archiver,
		Fetcher:   ingest.NewFetcher(nil, cfg.Ingest.LinkFetchTimeout, cfg.Ingest.ReadLimit, logger),
		Publisher: hub,
		Logger:    logger,
	}, quest.Options{
		ReadLimit:  cfg.Ingest.ReadLimit,
		SessionTTL: cfg.SessionTTL,
	})

	limiter := middleware.NewRateLimiter(cfg.Limits.PerMinute, cfg.Limits.Burst)
	limiter.StartEviction(ctx)

	// Initialize handlers.
	handler := api.NewHandler(repo, quests, api.Options{
		MaxUploadBytes: cfg.Ingest.MaxUploadBytes,
		SessionTTL:     cfg.SessionTTL,
		ArchiveBackend: cfg.Archive.Backend,
		Limiter:        limiter,
	}, logger)
	wsHandler := events.NewHandler(hub, quests, cfg.FrontendURL, cfg.IsDevelopment(), logger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

	handler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/quests/{id}", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// No WriteTimeout: websocket feeds and slow content calls stay open.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	quests.StartSweeper(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.GRPCPort != "" {
		health := opsgrpc.NewServer(repo, logger)
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return health.Serve(lis)
		})
		g.Go(func() error {
			health.Watch(gctx, 0)
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			health.Stop()
			return nil
		})
	}

	g.Go(func() error {
		// Wait for shutdown signal.
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		// Let in-flight archival uploads record their outcome.
		quests.Wait()
		return nil
	})

	return g.Wait()
}
