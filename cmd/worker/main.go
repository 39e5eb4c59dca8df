package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/jumine/cpc-pipeline/internal/config"
	"github.com/jumine/cpc-pipeline/internal/repository/postgres"
	"github.com/jumine/cpc-pipeline/internal/resolver"
	"github.com/jumine/cpc-pipeline/internal/storage"
	"github.com/jumine/cpc-pipeline/internal/worker"
)

// Headless worker binary: runs the dump ingestor and the scheduled parse
// cycles without the HTTP API. Deployments that want a single process use
// cmd/server instead, which hosts the same workers.
func main() {
	log.Println("Starting CPC bulletin pipeline worker...")

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
		}
		cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bulletins := postgres.NewBulletinRepo(db)
	births := postgres.NewBirthRepo(db)
	events := postgres.NewEventRepo(db)

	if cfg.Dumps.Enabled {
		if cfg.Dumps.S3Bucket == "" {
			log.Fatal("dumps enabled but no S3 bucket configured")
		}
		store, err := storage.NewDumpStore(ctx, cfg.Dumps.S3Bucket, cfg.Dumps.S3Region, cfg.Dumps.AWSProfile)
		if err != nil {
			log.Fatalf("Failed to initialize dump store: %v", err)
		}
		ingestor := worker.NewIngestor(store, db, bulletins, cfg.Dumps.Interval())
		ingestor.Start()
		defer ingestor.Stop()
		log.Printf("Dump ingestor started (bucket %s, every %s)", cfg.Dumps.S3Bucket, cfg.Dumps.Interval())
	}

	if cfg.Parser.Enabled {
		parseWorker := worker.NewParseWorker(bulletins, births, events, resolver.New(births), redisClient)
		go func() {
			ticker := time.NewTicker(cfg.Parser.Interval())
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if cfg.Parser.Profile != "" {
						if _, err := parseWorker.RunProfile(ctx, cfg.Parser.Profile, ""); err != nil {
							log.Printf("Parse cycle %s: %v", cfg.Parser.Profile, err)
						}
						continue
					}
					parseWorker.RunAll(ctx)
				}
			}
		}()
		log.Printf("Parse loop started (every %s)", cfg.Parser.Interval())
	}

	log.Println("Worker running...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	log.Println("Worker stopped")
}
