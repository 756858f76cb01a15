package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema applies db/schema.sql statement by statement. The schema is
// written to be idempotent (CREATE TABLE IF NOT EXISTS), so running it on
// every boot is safe. Statements must not contain embedded semicolons.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, schemaPath string) error {
	if strings.TrimSpace(schemaPath) == "" {
		schemaPath = "db/schema.sql"
	}

	data, err := os.ReadFile(filepath.Clean(schemaPath))
	if err != nil {
		return fmt.Errorf("read schema file failed (%s): %w", schemaPath, err)
	}

	for _, stmt := range strings.Split(string(data), ";") {
		query := strings.TrimSpace(stmt)
		if query == "" {
			continue
		}
		if _, err := pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}

	return nil
}
