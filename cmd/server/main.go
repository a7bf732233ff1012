package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/stagelink/backend/internal/config"
	"github.com/stagelink/backend/internal/httpserver"
	"github.com/stagelink/backend/internal/security"
	"github.com/stagelink/backend/internal/store/postgres"
	"github.com/stagelink/backend/internal/store/sqlite"
	"github.com/stagelink/backend/internal/ws"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Initialize database: Postgres in production, SQLite for local runs.
	var db *sql.DB
	var repos httpserver.Repos
	if cfg.DatabaseURL != "" {
		db, err = postgres.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		if err := postgres.Migrate(db); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		repos = httpserver.Repos{
			Conversations: postgres.NewConversationRepo(db),
			Members:       postgres.NewMemberRepo(db),
			Messages:      postgres.NewMessageRepo(db),
			Presence:      postgres.NewPresenceRepo(db),
		}
	} else {
		db, err = sqlite.Open(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		if err := sqlite.Migrate(db); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		repos = httpserver.Repos{
			Conversations: sqlite.NewConversationRepo(db),
			Members:       sqlite.NewMemberRepo(db),
			Messages:      sqlite.NewMessageRepo(db),
			Presence:      sqlite.NewPresenceRepo(db),
		}
	}
	defer db.Close()

	// Identity resolution for connections and requests
	tokenSvc := security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute)

	// Room registry: local hub plus a broadcaster for cluster-wide fan-out
	hub := ws.NewHub()
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	var broadcaster ws.Broadcaster
	if cfg.RedisURL != "" {
		rb, err := ws.NewRedisBroadcaster(cfg.RedisURL, hub)
		if err != nil {
			log.Fatalf("failed to connect broadcaster: %v", err)
		}
		defer rb.Close()
		go rb.Run(rootCtx)
		broadcaster = rb
		log.Printf("broadcast: redis fan-out enabled")
	} else {
		broadcaster = ws.NewLocalBroadcaster(hub)
		log.Printf("broadcast: single-process local fan-out")
	}

	router := httpserver.NewRouter(cfg, db, repos, hub, broadcaster, tokenSvc)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		log.Printf("Starting Stagelink chat server on %s\n", cfg.HTTPAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
