package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"evsink/internal/schema"
)

// insertPlan is the cached parameterized INSERT statement for one
// table. The column list and placeholder count are fixed by the
// table's declared column order, so the plan is built once during
// reconciliation and reused by every batch.
type insertPlan struct {
	sql     string
	columns int
}

func newInsertPlan(table *schema.Table) *insertPlan {
	cols := make([]string, 0, len(table.Columns))
	params := make([]string, 0, len(table.Columns))
	for _, col := range table.Columns {
		cols = append(cols, quoteIdent(col.Name))
		params = append(params, "?")
	}
	return &insertPlan{
		sql: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quoteIdent(table.Name), strings.Join(cols, ", "), strings.Join(params, ", ")),
		columns: len(table.Columns),
	}
}

// InsertRow executes the cached insert plan for a table inside the
// caller's transaction. args must hold one value per configured
// column, in declared column order.
func (s *Store) InsertRow(ctx context.Context, tx *sql.Tx, table string, args []any) error {
	plan, ok := s.plans[table]
	if !ok {
		return fmt.Errorf("no insert plan for table %q", table)
	}
	if len(args) != plan.columns {
		return fmt.Errorf("table %q expects %d values, got %d", table, plan.columns, len(args))
	}
	if _, err := tx.ExecContext(ctx, plan.sql, args...); err != nil {
		return fmt.Errorf("insert into %q: %w", table, err)
	}
	return nil
}
