package main

import (
	"context"
	"log"
	"os"
	"time"

	"flowval/adapters/postgres"
	"flowval/internal/config"
	"flowval/internal/migration"
)

func main() {
	var databaseURL string
	switch len(os.Args) {
	case 1:
		cfg, err := config.Load("")
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		databaseURL = cfg.Database.URL
	case 2:
		databaseURL = os.Args[1]
	default:
		log.Fatal("Usage: migrate [database_url]")
	}
	if databaseURL == "" {
		log.Fatal("No database configured: pass a URL or set DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := postgres.Connect(ctx, databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	runner := migration.NewRunner()
	log.Printf("Running run-archive migrations (schema %s)", runner.Version())
	if err := runner.Run(ctx, db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Printf("Migration complete")
}
