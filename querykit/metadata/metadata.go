// Package metadata describes how model types map onto relational tables.
// Declaration and registration of models is the caller's responsibility;
// the queryset engine only consumes the accessors defined here.
package metadata

import (
	"github.com/pkg/errors"
)

// PathSeparator separates foreign-key segments in a traversal path such as
// "publisher__location__name".
const PathSeparator = "__"

// Model is the capability bound required of queryset element types.
// Meta must be callable on the zero value.
type Model interface {
	Meta() *Meta
}

// FieldMeta maps a logical field name onto a table column and the Go struct
// field hydration writes into.
type FieldMeta struct {
	Name    string
	Column  string
	GoField string
}

// ForeignKeyMeta declares a to-one relation. Column is the referencing
// column on the owning table; GoField is the struct field that receives the
// hydrated related instance. Related is lazy so mutually referencing models
// can be declared without an initialization cycle.
type ForeignKeyMeta struct {
	Name     string
	Column   string
	GoField  string
	Nullable bool
	Related  func() *Meta
}

// Meta is the table mapping for one model type.
type Meta struct {
	Table       string
	PK          string
	Fields      []FieldMeta
	ForeignKeys []ForeignKeyMeta
}

// Field returns the field named name.
func (m *Meta) Field(name string) (FieldMeta, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldMeta{}, false
}

// ForeignKey returns the foreign key named name.
func (m *Meta) ForeignKey(name string) (ForeignKeyMeta, bool) {
	for _, fk := range m.ForeignKeys {
		if fk.Name == name {
			return fk, true
		}
	}
	return ForeignKeyMeta{}, false
}

// PKColumn returns the column backing the primary-key field.
func (m *Meta) PKColumn() string {
	if f, ok := m.Field(m.PK); ok {
		return f.Column
	}
	return m.PK
}

// Validate checks structural consistency of the declaration: a table name,
// a primary key present among the fields, and no duplicate field or
// relation names.
func (m *Meta) Validate() error {
	if m.Table == "" {
		return errors.New("metadata: empty table name")
	}
	if _, ok := m.Field(m.PK); !ok {
		return errors.Errorf("metadata: primary key %q is not a declared field of %s", m.PK, m.Table)
	}
	seen := map[string]bool{}
	for _, f := range m.Fields {
		if seen[f.Name] {
			return errors.Errorf("metadata: duplicate field %q on %s", f.Name, m.Table)
		}
		seen[f.Name] = true
	}
	for _, fk := range m.ForeignKeys {
		if seen[fk.Name] {
			return errors.Errorf("metadata: relation %q collides with a field on %s", fk.Name, m.Table)
		}
		seen[fk.Name] = true
		if fk.Related == nil {
			return errors.Errorf("metadata: relation %q on %s has no related model", fk.Name, m.Table)
		}
	}
	return nil
}

// MetaOf returns the metadata of the model type T without needing an
// instance.
func MetaOf[T Model]() *Meta {
	var zero T
	return zero.Meta()
}
