package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/frappe/press-billing/internal/config"
	"github.com/frappe/press-billing/internal/logger"
	"github.com/frappe/press-billing/internal/postgres"
	postgresRepo "github.com/frappe/press-billing/internal/repository/postgres"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Print migration SQL without executing it")
	flag.Parse()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	if *dryRun {
		fmt.Fprintln(os.Stdout, postgresRepo.MigrationSQL())
		return
	}

	logger.Infow("connecting to database", "host", cfg.Postgres.Host)
	db, err := postgres.NewDB(cfg, logger)
	if err != nil {
		logger.Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := postgresRepo.Migrate(ctx, db, logger); err != nil {
		logger.Fatalw("migration failed", "error", err)
	}
	logger.Infow("database schema is up to date")
}
