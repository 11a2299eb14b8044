package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"example.com/insight/internal/cache"
	"example.com/insight/internal/config"
	"example.com/insight/internal/domain"
	"example.com/insight/internal/persistence/postgres"
	"example.com/insight/internal/platform/strava"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, reading credentials from the environment")
	}
	cfg := config.Load()

	if cfg.StravaClientID == "" || cfg.StravaClientSecret == "" || cfg.StravaRefreshToken == "" {
		return fmt.Errorf("STRAVA_CLIENT_ID, STRAVA_CLIENT_SECRET, and STRAVA_REFRESH_TOKEN are required")
	}
	if cfg.SyncTenantID == "" {
		return fmt.Errorf("SYNC_TENANT_ID is required")
	}
	if cfg.PostgresURL == "" {
		return fmt.Errorf("POSTGRES_URL is required for sync")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	var invalidator cache.Invalidator
	if cfg.CacheInvalidateURL != "" {
		invalidator = cache.NewHTTPInvalidator(cfg.CacheInvalidateURL, cfg.CacheInvalidateToken, cfg.CacheInvalidateTimeout)
	}
	service := domain.NewService(postgres.NewRepository(pool), invalidator)

	client := strava.NewClient(ctx, strava.Config{
		ClientID:     cfg.StravaClientID,
		ClientSecret: cfg.StravaClientSecret,
		RefreshToken: cfg.StravaRefreshToken,
	})
	syncer := strava.NewSyncer(client, service, cfg.SyncTenantID)

	since := time.Now().UTC().AddDate(0, 0, -cfg.SyncLookbackDays)
	log.Printf("syncing activities since %s for tenant %s", since.Format(time.RFC3339), cfg.SyncTenantID)

	result, err := syncer.Run(ctx, since)
	if err != nil {
		return err
	}
	log.Printf("sync finished: fetched=%d created=%d updated=%d summary_only=%d rejected=%d",
		result.Fetched, result.Created, result.Updated, result.SummaryOnly, result.Rejected)
	return nil
}
