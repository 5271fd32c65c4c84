package repo

import (
	"context"
	"fmt"

	"contentforge/internal/infra"
	"contentforge/internal/sqlinline"
)

// EnsureSchema creates the tables used by the Postgres repositories.
func EnsureSchema(ctx context.Context, sql infra.SQLExecutor) error {
	if _, err := sql.Exec(ctx, sqlinline.QEnsureSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
