package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jw6ventures/sellerpulse/internal/api"
	appauth "github.com/jw6ventures/sellerpulse/internal/auth"
	"github.com/jw6ventures/sellerpulse/internal/config"
	httpserver "github.com/jw6ventures/sellerpulse/internal/http"
	"github.com/jw6ventures/sellerpulse/internal/marketplace"
	"github.com/jw6ventures/sellerpulse/internal/store"
	syncer "github.com/jw6ventures/sellerpulse/internal/sync"
)

// staleRunAge is how long a run may sit in the started state before the
// startup sweep fails it.
const staleRunAge = time.Hour

func main() {
	log.Println("Starting SellerPulse server...")
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("failed to create db pool: %v", err)
	}
	defer pool.Close()

	if err := store.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("failed to apply migrations: %v", err)
	}

	stor := store.New(pool)

	// Runs orphaned by a previous crash would block new syncs forever.
	if n, err := stor.SyncRuns.MarkStale(ctx, staleRunAge); err != nil {
		log.Printf("[WARN] stale run sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("[INFO] marked %d stale sync runs as failed", n)
	}

	sessionManager := appauth.NewSessionManager(cfg)
	authService, err := appauth.NewService(ctx, cfg, stor, sessionManager)
	if err != nil {
		log.Fatalf("failed to initialize auth service: %v", err)
	}

	upstream := marketplace.NewClient(cfg)
	syncService := syncer.NewService(upstream, stor, cfg)
	apiHandler := api.NewHandler(cfg, stor, authService, syncService, upstream)

	r := httpserver.NewRouter(cfg, stor, authService, apiHandler)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
