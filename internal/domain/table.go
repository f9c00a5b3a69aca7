package domain

import "strings"

// DefaultSchema is the schema assumed for unqualified table names.
const DefaultSchema = "public"

// TableID identifies a table by schema and name. Both parts are stored
// lower-cased so two IDs compare equal exactly when PostgreSQL would resolve
// them to the same unquoted identifier. The zero value is not a valid table.
type TableID struct {
	Schema string
	Name   string
}

// NewTableID builds a TableID, defaulting the schema to "public".
func NewTableID(schema, name string) TableID {
	schema = strings.ToLower(strings.TrimSpace(schema))
	if schema == "" {
		schema = DefaultSchema
	}
	return TableID{Schema: schema, Name: strings.ToLower(strings.TrimSpace(name))}
}

// ParseTableID parses "schema.table" or "table".
func ParseTableID(s string) TableID {
	schema, name, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		return NewTableID("", schema)
	}
	return NewTableID(schema, name)
}

// String returns the canonical "schema.table" form.
func (t TableID) String() string {
	return t.Schema + "." + t.Name
}

// Equal reports whether both IDs name the same table, ignoring case.
func (t TableID) Equal(other TableID) bool {
	return strings.EqualFold(t.Schema, other.Schema) && strings.EqualFold(t.Name, other.Name)
}

// IsZero reports whether the ID is unset.
func (t TableID) IsZero() bool {
	return t.Name == ""
}

// TableID implements TableLike.
func (t TableID) TableID() TableID { return t }

// TableReference is one occurrence of a table inside a query: the table plus
// an optional alias. Two references are the same slot only when both table
// and alias match, which is what lets a table join itself.
type TableReference struct {
	Table TableID
	Alias string
}

// NewTableReference builds a reference with a lower-cased alias.
func NewTableReference(table TableID, alias string) TableReference {
	return TableReference{Table: table, Alias: strings.ToLower(strings.TrimSpace(alias))}
}

// Name returns the qualifier column references use for this slot: the alias
// when present, otherwise the bare table name.
func (r TableReference) Name() string {
	if r.Alias != "" {
		return r.Alias
	}
	return r.Table.Name
}

// Equal reports whether both references are the same slot.
func (r TableReference) Equal(other TableReference) bool {
	return r.Table.Equal(other.Table) && strings.EqualFold(r.Alias, other.Alias)
}

// String renders "schema.table" or "schema.table as alias".
func (r TableReference) String() string {
	if r.Alias == "" || r.Alias == r.Table.Name {
		return r.Table.String()
	}
	return r.Table.String() + " as " + r.Alias
}

// TableID implements TableLike.
func (r TableReference) TableID() TableID { return r.Table }

// TableLike is accepted by lookups that work on either a TableID or a
// TableReference.
type TableLike interface {
	TableID() TableID
}
