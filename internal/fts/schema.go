package fts

import (
	"fmt"
	"regexp"

	"github.com/starford/zotindex/internal/models"
)

// DefaultTable is the name of the FTS virtual table.
const DefaultTable = "zotquery"

// KeyColumn must be present in every schema; search hits are reported by it.
const KeyColumn = "key"

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Column is one indexed column.
type Column struct {
	Name   string
	Path   Path
	Weight float64
}

// Schema is the ordered column list of an index.
type Schema struct {
	Table   string
	Columns []Column
}

// DefaultSchema is the "general" search scope.
func DefaultSchema() Schema {
	return Schema{
		Table: DefaultTable,
		Columns: []Column{
			{Name: "key", Path: Direct{Field: "key"}, Weight: 0},
			{Name: "title", Path: Nested{Key: "data", Subkey: "title"}, Weight: 1.0},
			{Name: "creators", Path: Nested{Key: "creators", Subkey: "family"}, Weight: 0.8},
			{Name: "collection_title", Path: NestedFallback{Paths: []Nested{
				{Key: "data", Subkey: "publicationTitle"},
				{Key: "data", Subkey: "bookTitle"},
				{Key: "data", Subkey: "proceedingsTitle"},
				{Key: "data", Subkey: "encyclopediaTitle"},
				{Key: "data", Subkey: "dictionaryTitle"},
				{Key: "data", Subkey: "websiteTitle"},
			}}, Weight: 0.5},
			{Name: "date", Path: Nested{Key: "data", Subkey: "date"}, Weight: 0.3},
			{Name: "tags", Path: Nested{Key: "tags", Subkey: "name"}, Weight: 0.5},
			{Name: "collections", Path: Nested{Key: "collections", Subkey: "name"}, Weight: 0.4},
			{Name: "notes", Path: Direct{Field: "notes"}, Weight: 0.3},
			{Name: "attachments", Path: Nested{Key: "attachments", Subkey: "name"}, Weight: 0.2},
			{Name: "abstract", Path: Nested{Key: "data", Subkey: "abstractNote"}, Weight: 0.4},
		},
	}
}

// Validate checks identifiers and the presence of the key column.
func (s Schema) Validate() error {
	if !identRe.MatchString(s.Table) {
		return fmt.Errorf("fts: invalid table name %q", s.Table)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("fts: schema has no columns")
	}
	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if !identRe.MatchString(c.Name) {
			return fmt.Errorf("fts: invalid column name %q", c.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("fts: duplicate column %q", c.Name)
		}
		if c.Path == nil {
			return fmt.Errorf("fts: column %q has no path", c.Name)
		}
		seen[c.Name] = true
	}
	if !seen[KeyColumn] {
		return fmt.Errorf("fts: schema must include a %q column", KeyColumn)
	}
	return nil
}

// Names returns the column names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// Weights returns the column weights in order.
func (s Schema) Weights() []float64 {
	out := make([]float64, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Weight
	}
	return out
}

// Has reports whether the schema has a column called name.
func (s Schema) Has(name string) bool {
	for _, c := range s.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Row projects it into one cell per column.
func (s Schema) Row(it *models.Item) []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = Cell(it, c.Path)
	}
	return out
}
