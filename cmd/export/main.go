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

	"example.com/insight/internal/config"
	"example.com/insight/internal/domain"
	"example.com/insight/internal/export"
	"example.com/insight/internal/persistence/postgres"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, reading configuration from the environment")
	}
	cfg := config.Load()

	if cfg.ExportTenantID == "" {
		return fmt.Errorf("EXPORT_TENANT_ID is required")
	}
	if cfg.PostgresURL == "" {
		return fmt.Errorf("POSTGRES_URL is required for export")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	service := domain.NewService(postgres.NewRepository(pool), nil)
	archiver := export.NewArchiver(service, cfg.ExportTenantID, cfg.ExportDir)

	// A zero or negative window archives the full history.
	var since time.Time
	if cfg.ExportWindowDays > 0 {
		since = time.Now().UTC().AddDate(0, 0, -cfg.ExportWindowDays)
	}

	summary, err := archiver.Run(ctx, since)
	if err != nil {
		return err
	}
	log.Printf("export finished: activities=%d samples=%d", summary.Activities, summary.Samples)
	log.Printf("wrote %s and %s", summary.SummariesPath, summary.SamplesPath)
	return nil
}
