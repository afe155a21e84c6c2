// Package schema loads the declarative table/application configuration
// and exposes it as an immutable in-memory model.
//
// The schema is built once at startup, validated, and then only read.
// It is safe for unsynchronized concurrent access for the remainder of
// the process lifetime.
package schema

import (
	"slices"
	"sort"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"evsink/internal/coltype"
)

// Column describes one column of a configured table.
type Column struct {
	Name string
	Type coltype.Type

	// Header names the request header this column is populated from
	// instead of the record body. Header-sourced columns must be of
	// type String.
	Header string

	Indexed  bool
	Required bool
}

// Table is an ordered sequence of columns. The order fixes the column
// list and placeholder order of every generated statement.
type Table struct {
	Name    string
	Columns []Column
}

// Column returns the column with the given name, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// App is a client application allowed to write events.
type App struct {
	ID                       string
	SecretKey                string
	AccessControlAllowOrigin string
	Tables                   []string
}

// Authorized reports whether the app may write into the named table.
func (a *App) Authorized(table string) bool {
	return slices.Contains(a.Tables, table)
}

// Schema is the validated configuration: tables by name and apps by id.
type Schema struct {
	Tables map[string]*Table
	Apps   map[string]*App
}

// TableNames returns all configured table names in sorted order.
func (s *Schema) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Raw YAML document shapes. Types are parsed from their string names in
// Load so that a missing or unknown type fails the load instead of
// silently defaulting.
type rawSchema struct {
	Tables map[string]rawTable `yaml:"tables"`
	Apps   map[string]rawApp   `yaml:"apps"`
}

type rawTable struct {
	Columns []rawColumn `yaml:"columns"`
}

type rawColumn struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Header   string `yaml:"header"`
	Indexed  bool   `yaml:"indexed"`
	Required bool   `yaml:"required"`
}

type rawApp struct {
	SecretKey                string   `yaml:"secret_key"`
	AccessControlAllowOrigin string   `yaml:"access_control_allow_origin"`
	Tables                   []string `yaml:"tables"`
}

// Load parses and validates a YAML schema document. It is a pure
// transform: no I/O, and the returned Schema is never mutated again.
//
// Identifiers (table names, column names, app ids) are NFC-normalized
// so that config and catalog spellings compare equal.
func Load(data []byte) (*Schema, error) {
	var raw rawSchema
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{Err: err}
	}

	s := &Schema{
		Tables: make(map[string]*Table, len(raw.Tables)),
		Apps:   make(map[string]*App, len(raw.Apps)),
	}

	for name, rt := range raw.Tables {
		table, err := buildTable(norm.NFC.String(name), rt)
		if err != nil {
			return nil, err
		}
		s.Tables[table.Name] = table
	}

	for id, ra := range raw.Apps {
		app := &App{
			ID:                       norm.NFC.String(id),
			SecretKey:                ra.SecretKey,
			AccessControlAllowOrigin: ra.AccessControlAllowOrigin,
			Tables:                   make([]string, 0, len(ra.Tables)),
		}
		if app.AccessControlAllowOrigin == "" {
			app.AccessControlAllowOrigin = "*"
		}
		for _, tableName := range ra.Tables {
			tableName = norm.NFC.String(tableName)
			if _, ok := s.Tables[tableName]; !ok {
				return nil, &TableNotFoundError{AppID: app.ID, Table: tableName}
			}
			app.Tables = append(app.Tables, tableName)
		}
		s.Apps[app.ID] = app
	}

	return s, nil
}

func buildTable(name string, rt rawTable) (*Table, error) {
	table := &Table{
		Name:    name,
		Columns: make([]Column, 0, len(rt.Columns)),
	}
	seen := make(map[string]bool, len(rt.Columns))
	for _, rc := range rt.Columns {
		if rc.Name == "" {
			return nil, &ColumnError{Table: name, Reason: "column without a name"}
		}
		colName := norm.NFC.String(rc.Name)
		if seen[colName] {
			return nil, &ColumnError{Table: name, Column: colName, Reason: "duplicate column name"}
		}
		seen[colName] = true

		typ, err := coltype.Parse(rc.Type)
		if err != nil {
			return nil, &ColumnError{Table: name, Column: colName, Reason: err.Error()}
		}
		if rc.Header != "" && typ != coltype.String {
			return nil, &ColumnTypeError{Table: name, Column: colName, Actual: typ}
		}

		table.Columns = append(table.Columns, Column{
			Name:     colName,
			Type:     typ,
			Header:   norm.NFC.String(rc.Header),
			Indexed:  rc.Indexed,
			Required: rc.Required,
		})
	}
	return table, nil
}
