package main

import (
	"context"
	"log"
	"os"

	"github.com/safar/farmstand/internal/config"
	"github.com/safar/farmstand/internal/database"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run scripts/run_migrations.go [up|down]")
	}

	direction := os.Args[1]
	if direction != "up" && direction != "down" {
		log.Fatal("Direction must be 'up' or 'down'")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := database.NewConnection(context.Background(), &cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	n, err := database.ApplyMigrations(db, "migrations", direction)
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("Successfully ran %d migration(s) %s", n, direction)
}
