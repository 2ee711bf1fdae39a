// Package database provides the PostgreSQL connection bootstrap.
package database

import (
	"database/sql"
	"fmt"
	"log/slog"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"evalforge/internal/config"
)

// PostgresDB wraps the gorm handle and the underlying sql.DB pool.
type PostgresDB struct {
	DB     *gorm.DB
	SqlDB  *sql.DB
	logger *slog.Logger
}

// NewPostgresDB opens a pooled PostgreSQL connection.
func NewPostgresDB(cfg *config.Config, logger *slog.Logger) (*PostgresDB, error) {
	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{
		Logger:                 gormLogger.Default,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get SQL DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	logger.Info("Connected to PostgreSQL database")

	return &PostgresDB{DB: db, SqlDB: sqlDB, logger: logger}, nil
}

// Close closes the database connection.
func (p *PostgresDB) Close() error {
	p.logger.Info("Closing PostgreSQL connection")
	return p.SqlDB.Close()
}

// Health checks database connectivity.
func (p *PostgresDB) Health() error {
	return p.SqlDB.Ping()
}
