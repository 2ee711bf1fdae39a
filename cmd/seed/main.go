// The seed binary applies the default prompt/schema/evaluator corpora.
package main

import (
	"context"
	"log"

	"evalforge/internal/app"
	"evalforge/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	application, err := app.New(cfg, app.Options{})
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer application.Shutdown(context.Background())

	result, err := application.Seeder.SeedAll(context.Background())
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	if !result.Changed() {
		application.Logger.Info("Nothing to seed")
	}
}
