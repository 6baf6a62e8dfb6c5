package database

import (
	"sort"
	"strings"
)

// ColumnInfo describes a single column in a table.
type ColumnInfo struct {
	Name      string
	DataType  string // engine type name: INTEGER, NVARCHAR(200), text, int4, …
	Nullable  bool
	Default   *string // nil if no default
	IsPrimary bool
	IsUnique  bool
}

// ForeignKey describes a reference from one column to another table.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// TableInfo describes a table, its columns and constraints.
type TableInfo struct {
	Name        string
	Columns     []*ColumnInfo
	PrimaryKey  []string
	ForeignKeys []*ForeignKey
}

// Schema is the introspected set of usable tables.
type Schema struct {
	Tables map[string]*TableInfo
}

// TableNames returns the table names in sorted order.
func (s *Schema) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render writes every table as a CREATE TABLE statement, separated by a blank
// line, in table name order.
func (s *Schema) Render(d Dialect) string {
	names := s.TableNames()
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, s.Tables[name].Render(d))
	}
	return strings.Join(parts, "\n\n")
}

// Render writes the table as a CREATE TABLE statement.
func (t *TableInfo) Render(d Dialect) string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	sb.WriteString(d.QuoteIdent(t.Name))
	sb.WriteString(" (\n")

	lines := make([]string, 0, len(t.Columns)+len(t.ForeignKeys)+1)
	for _, c := range t.Columns {
		line := "\t" + d.QuoteIdent(c.Name)
		if c.DataType != "" {
			line += " " + c.DataType
		}
		if !c.Nullable {
			line += " NOT NULL"
		}
		if c.Default != nil {
			line += " DEFAULT " + *c.Default
		}
		if c.IsUnique && !c.IsPrimary {
			line += " UNIQUE"
		}
		lines = append(lines, line)
	}
	if len(t.PrimaryKey) > 0 {
		lines = append(lines, "\tPRIMARY KEY ("+quoteList(d, t.PrimaryKey)+")")
	}
	for _, fk := range t.ForeignKeys {
		lines = append(lines, "\tFOREIGN KEY("+d.QuoteIdent(fk.Column)+") REFERENCES "+
			d.QuoteIdent(fk.RefTable)+" ("+d.QuoteIdent(fk.RefColumn)+")")
	}

	sb.WriteString(strings.Join(lines, ",\n"))
	sb.WriteString("\n)")
	return sb.String()
}

func quoteList(d Dialect, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// MarkKeys sets IsPrimary and IsUnique on the table's columns.
func (t *TableInfo) MarkKeys(unique []string) {
	pkSet := toSet(t.PrimaryKey)
	uqSet := toSet(unique)
	for _, col := range t.Columns {
		col.IsPrimary = pkSet[col.Name]
		col.IsUnique = uqSet[col.Name]
	}
}

func toSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}
