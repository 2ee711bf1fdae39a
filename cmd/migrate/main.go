// The migrate binary applies SQL migrations. With -auto it instead runs
// gorm AutoMigrate for development databases.
package main

import (
	"flag"
	"log"
	"log/slog"

	"evalforge/internal/config"
	"evalforge/internal/infrastructure/database"
	"evalforge/pkg/logging"
)

func main() {
	auto := flag.Bool("auto", false, "use gorm AutoMigrate instead of SQL migrations")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLoggerWithFormat(slog.LevelInfo, "text")

	if *auto {
		db, err := database.NewPostgresDB(cfg, logger)
		if err != nil {
			log.Fatalf("Failed to connect: %v", err)
		}
		defer db.Close()
		if err := db.AutoMigrate(); err != nil {
			log.Fatalf("AutoMigrate failed: %v", err)
		}
		logger.Info("AutoMigrate complete")
		return
	}

	if err := database.RunMigrations(cfg, logger); err != nil {
		log.Fatalf("Migrations failed: %v", err)
	}
}
