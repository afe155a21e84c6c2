package store

import (
	"fmt"
	"strings"

	"evsink/internal/schema"
)

// CreateTableSQL builds the CREATE TABLE statement for a configured
// table. Columns appear in their declared order; required columns get
// a NOT NULL constraint.
func CreateTableSQL(t *schema.Table) string {
	cols := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		def := fmt.Sprintf("%s %s", quoteIdent(col.Name), col.Type.Native())
		if col.Required {
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(t.Name), strings.Join(cols, ", "))
}

// IndexSQL builds the CREATE INDEX statements for a table's indexed
// columns, in declared column order. IF NOT EXISTS keeps the statement
// idempotent across restarts.
func IndexSQL(t *schema.Table) []string {
	var stmts []string
	for _, col := range t.Columns {
		if !col.Indexed {
			continue
		}
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			quoteIdent(fmt.Sprintf("idx_%s_%s", t.Name, col.Name)),
			quoteIdent(t.Name),
			quoteIdent(col.Name)))
	}
	return stmts
}

// quoteIdent double-quotes an identifier for use in SQL text.
// Identifiers come from the validated schema, but quoting keeps names
// with unusual characters from breaking statement syntax.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
