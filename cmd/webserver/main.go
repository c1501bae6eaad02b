package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coursequiz"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	verbose := flag.Bool("verbose", false, "Enable verbose debugging output")
	flag.Parse()

	cfg, err := coursequiz.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := coursequiz.NewLogger(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetVerbose(*verbose)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", "error", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

// run serves until SIGINT or SIGTERM. Everything it opens is closed before
// it returns, including on error.
func run(cfg coursequiz.Config, logger *coursequiz.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := initTracing(ctx, cfg.Tracing)
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	db, err := coursequiz.OpenStore(openCtx, cfg)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	engine, err := coursequiz.NewEngine(ctx, cfg, db, logger)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer engine.Close()

	secret := cfg.HTTP.SessionSecret
	if secret == "" {
		logger.Warn("SESSION_SECRET not set, using an insecure development key")
		secret = "coursequiz-dev-session-key"
	}

	server := NewServer(engine, newSessionStore(secret, cfg.HTTP.SecureCookies), logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.HTTP.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	server.Mount(r)

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("Server starting", "addr", cfg.HTTP.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", cfg.HTTP.Addr, err)
	}
	logger.Info("Server stopped")
	return nil
}
