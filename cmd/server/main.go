package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/jumine/cpc-pipeline/internal/api"
	"github.com/jumine/cpc-pipeline/internal/config"
	"github.com/jumine/cpc-pipeline/internal/repository/postgres"
	"github.com/jumine/cpc-pipeline/internal/resolver"
	"github.com/jumine/cpc-pipeline/internal/storage"
	"github.com/jumine/cpc-pipeline/internal/worker"
)

func main() {
	log.Println("Starting CPC bulletin pipeline server...")

	cfg, err := config.LoadFromEnv("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	// Redis is optional; without it parse progress is simply not published.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Redis unavailable, progress tracking disabled: %v", err)
			redisClient = nil
		} else {
			log.Println("Connected to Redis")
		}
		cancel()
	}

	bulletins := postgres.NewBulletinRepo(db)
	births := postgres.NewBirthRepo(db)
	events := postgres.NewEventRepo(db)

	res := resolver.New(births)
	parseWorker := worker.NewParseWorker(bulletins, births, events, res, redisClient)

	handlers := api.NewHandlers(bulletins, births, events, db)
	handlers.SetParser(parseWorker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Dumps.S3Bucket != "" {
		store, err := storage.NewDumpStore(ctx, cfg.Dumps.S3Bucket, cfg.Dumps.S3Region, cfg.Dumps.AWSProfile)
		if err != nil {
			log.Fatalf("Failed to initialize dump store: %v", err)
		}
		handlers.SetDumpStore(store)

		if cfg.Dumps.Enabled {
			ingestor := worker.NewIngestor(store, db, bulletins, cfg.Dumps.Interval())
			ingestor.Start()
			defer ingestor.Stop()
			handlers.SetIngestor(ingestor)
			log.Printf("Dump ingestor started (bucket %s, every %s)", cfg.Dumps.S3Bucket, cfg.Dumps.Interval())
		}
	}

	if cfg.Parser.Enabled {
		go runParseLoop(ctx, parseWorker, cfg.Parser)
		log.Printf("Parse loop started (every %s)", cfg.Parser.Interval())
	}

	srv := api.NewServer(cfg.Server, handlers)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	go func() {
		log.Printf("API listening on %s", addr)
		if err := srv.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
	log.Println("Server stopped")
}

// runParseLoop runs scheduled parse cycles until the context is cancelled.
// A configured profile narrows the loop to that profile alone.
func runParseLoop(ctx context.Context, w *worker.ParseWorker, cfg config.ParserConfig) {
	ticker := time.NewTicker(cfg.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cfg.Profile != "" {
				if _, err := w.RunProfile(ctx, cfg.Profile, ""); err != nil {
					log.Printf("Parse cycle %s: %v", cfg.Profile, err)
				}
				continue
			}
			w.RunAll(ctx)
		}
	}
}
