package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"evsink/internal/schema"
)

// StructureError reports an existing table whose live shape is
// incompatible with the configuration. Any structure error is fatal at
// startup; there is no partial adoption of a mismatched table.
type StructureError struct {
	Table   string
	Column  string
	Message string
}

func (e *StructureError) Error() string {
	return e.Message
}

// liveColumn is one column as described by the live catalog.
type liveColumn struct {
	name string
	typ  string

	// required means the store will reject an insert that omits the
	// column: declared NOT NULL and no default value.
	required bool
}

// Reconcile compares the configured schema against the live catalog.
// Missing tables are created (with their indexes); existing tables are
// validated column by column. It runs exactly once, before any
// ingestion traffic, and also builds the cached insert plan for every
// configured table.
func (s *Store) Reconcile(ctx context.Context, sch *schema.Schema) error {
	existing, err := s.tableNames(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	for _, name := range sch.TableNames() {
		table := sch.Tables[name]
		if !existing[name] {
			if err := s.createTable(ctx, table); err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}
		} else {
			if err := s.checkTable(ctx, table); err != nil {
				return err
			}
		}
		s.plans[name] = newInsertPlan(table)
	}

	return nil
}

// tableNames returns the names of all user tables in the live catalog.
func (s *Store) tableNames(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
	`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		names[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return names, nil
}

func (s *Store) createTable(ctx context.Context, table *schema.Table) error {
	if _, err := s.db.ExecContext(ctx, CreateTableSQL(table)); err != nil {
		return fmt.Errorf("create table %q: %w", table.Name, err)
	}
	for _, stmt := range IndexSQL(table) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index on %q: %w", table.Name, err)
		}
	}
	return nil
}

// checkTable validates an existing table against its configuration.
//
// Rules, in both directions:
//   - live column matching a configured one must have the same native
//     type, and must not be effectively required unless the
//     configuration also marks it required
//   - a live column with no configured counterpart is tolerated only
//     if it is not effectively required
//   - every configured column must exist in the live table
func (s *Store) checkTable(ctx context.Context, table *schema.Table) error {
	live, err := s.liveColumns(ctx, table.Name)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	for _, lc := range live {
		col := table.Column(lc.name)
		if col == nil {
			if lc.required {
				return &StructureError{
					Table:  table.Name,
					Column: lc.name,
					Message: fmt.Sprintf(
						"table %q has an extra required column %q that is not in the configuration",
						table.Name, lc.name),
				}
			}
			continue
		}
		if !strings.EqualFold(lc.typ, col.Type.Native()) {
			return &StructureError{
				Table:  table.Name,
				Column: lc.name,
				Message: fmt.Sprintf(
					"table %q has column %q of type %q, which does not match configured type %q",
					table.Name, lc.name, lc.typ, col.Type.Native()),
			}
		}
		if lc.required && !col.Required {
			return &StructureError{
				Table:  table.Name,
				Column: lc.name,
				Message: fmt.Sprintf(
					"table %q has non-nullable column %q which is not required in the configuration",
					table.Name, lc.name),
			}
		}
	}

	for _, col := range table.Columns {
		if _, ok := live[col.Name]; !ok {
			return &StructureError{
				Table:  table.Name,
				Column: col.Name,
				Message: fmt.Sprintf(
					"table %q is missing configured column %q",
					table.Name, col.Name),
			}
		}
	}

	return nil
}

// liveColumns fetches the catalog description of a table's columns.
func (s *Store) liveColumns(ctx context.Context, table string) (map[string]liveColumn, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("describe table %q: %w", table, err)
	}
	defer rows.Close()

	columns := make(map[string]liveColumn)
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("describe table %q: %w", table, err)
		}
		columns[name] = liveColumn{
			name:     name,
			typ:      typ,
			required: notNull != 0 && !dflt.Valid,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("describe table %q: %w", table, err)
	}
	return columns, nil
}
