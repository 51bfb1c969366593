package migrations

import (
	"context"
	"fmt"

	"curve-lp-lab/internal/storage/postgres"
)

// RunPostgresMigrations applies the embedded PostgreSQL migrations in name order.
// Each file runs as one multi-statement Exec; files must be idempotent.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	migrations, err := Load(PostgresFS, "postgres")
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m.SQL); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
	}
	return nil
}
