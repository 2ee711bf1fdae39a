package database

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"evalforge/internal/config"
	"evalforge/internal/core/domain/chat"
	"evalforge/internal/core/domain/evalrun"
	"evalforge/internal/core/domain/evaluator"
	"evalforge/internal/core/domain/file"
	"evalforge/internal/core/domain/history"
	"evalforge/internal/core/domain/job"
	"evalforge/internal/core/domain/listing"
	"evalforge/internal/core/domain/promptlib"
	"evalforge/internal/core/domain/settings"
	"evalforge/internal/core/domain/tag"
)

// RunMigrations applies the SQL migrations in cfg.Database.MigrationsPath.
func RunMigrations(cfg *config.Config, logger *slog.Logger) error {
	m, err := migrate.New("file://"+cfg.Database.MigrationsPath, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("Migrations already up to date")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("Migrations applied")
	return nil
}

// AutoMigrate creates/updates the schema from gorm models. Development only;
// production uses the SQL migrations.
func (p *PostgresDB) AutoMigrate() error {
	return p.DB.AutoMigrate(
		&listing.Listing{},
		&file.Record{},
		&promptlib.Prompt{},
		&promptlib.Schema{},
		&evaluator.Evaluator{},
		&chat.Session{},
		&chat.Message{},
		&history.Entry{},
		&settings.Setting{},
		&tag.Tag{},
		&job.Job{},
		&evalrun.EvalRun{},
		&evalrun.ThreadEvaluation{},
		&evalrun.AdversarialEvaluation{},
		&evalrun.APILog{},
	)
}
