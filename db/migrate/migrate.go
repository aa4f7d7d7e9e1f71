// Package migrate declares the relational schema and applies it through ent's
// migration engine.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
)

// Apply creates or upgrades every table. Columns and indexes are only added, never dropped.
func Apply(ctx context.Context, db *sql.DB, dialectName string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	drv := entsql.OpenDB(dialectName, db)
	m, err := schema.NewMigrate(drv, schema.WithForeignKeys(true))
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	logger.Info("applying schema", "dialect", dialectName, "tables", len(Tables))
	if err := m.Create(ctx, Tables...); err != nil {
		logger.Error("schema migration failed", "err", err)
		return fmt.Errorf("create schema: %w", err)
	}
	logger.Info("schema applied")
	return nil
}
