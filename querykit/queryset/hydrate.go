package queryset

import (
	"database/sql"
	"reflect"

	"github.com/pkg/errors"

	"github.com/krew-solutions/querykit-go/querykit/metadata"
	"github.com/krew-solutions/querykit-go/querykit/relation"
	"github.com/krew-solutions/querykit-go/querykit/session"
)

// hydrate scans the current row and builds a fresh object graph: the root
// instance first, then each eagerly-joined related instance depth-first,
// wired into the foreign-key field slot of its parent. Each row owns its
// graph outright; no instances are shared between rows.
func hydrate[T metadata.Model](plan *relation.JoinPlan, rows session.Rows) (*T, error) {
	total := countColumns(plan)
	raw := make([]any, total)
	ptrs := make([]any, total)
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, errors.Wrap(err, "scan failed")
	}
	obj := new(T)
	col := 0
	if err := hydrateNode(plan, reflect.ValueOf(obj).Elem(), raw, &col); err != nil {
		return nil, err
	}
	return obj, nil
}

func countColumns(p *relation.JoinPlan) int {
	n := len(p.Meta.Fields)
	for _, e := range p.Edges {
		if e.Hydrate {
			n += countColumns(e.Child)
		}
	}
	return n
}

func hydrateNode(node *relation.JoinPlan, target reflect.Value, raw []any, col *int) error {
	for _, f := range node.Meta.Fields {
		v := raw[*col]
		*col++
		if v == nil {
			continue
		}
		field := target.FieldByName(f.GoField)
		if !field.IsValid() {
			return errors.Errorf("hydrate: %s has no field %q", target.Type(), f.GoField)
		}
		if err := convertAssign(field, v); err != nil {
			return errors.Wrapf(err, "hydrate: %s.%s", node.Meta.Table, f.Name)
		}
	}
	for _, e := range node.Edges {
		if !e.Hydrate {
			continue
		}
		slot := target.FieldByName(e.FK.GoField)
		if !slot.IsValid() || slot.Kind() != reflect.Pointer {
			return errors.Errorf("hydrate: relation field %s.%s must be a struct pointer",
				target.Type(), e.FK.GoField)
		}
		// A null related primary key means the LEFT JOIN found no row;
		// consume the columns and leave the slot nil.
		if raw[*col+pkIndex(e.Child.Meta)] == nil {
			skipColumns(e.Child, col)
			continue
		}
		child := reflect.New(slot.Type().Elem())
		if err := hydrateNode(e.Child, child.Elem(), raw, col); err != nil {
			return err
		}
		slot.Set(child)
	}
	return nil
}

func pkIndex(m *metadata.Meta) int {
	for i, f := range m.Fields {
		if f.Name == m.PK {
			return i
		}
	}
	return 0
}

func skipColumns(p *relation.JoinPlan, col *int) {
	*col += countColumns(p)
}

// convertAssign writes a raw driver value into a struct field, bridging
// the loose types drivers hand back: []byte for text, int64 for every
// integer width, integers for booleans. Fields implementing sql.Scanner
// (uuid.UUID among them) scan themselves.
func convertAssign(field reflect.Value, v any) error {
	if field.CanAddr() {
		if scanner, ok := field.Addr().Interface().(sql.Scanner); ok {
			return scanner.Scan(v)
		}
	}
	if field.Kind() == reflect.Pointer {
		elem := reflect.New(field.Type().Elem())
		if err := convertAssign(elem.Elem(), v); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	vv := reflect.ValueOf(v)
	ft := field.Type()
	switch {
	case vv.Type().AssignableTo(ft):
		field.Set(vv)
	case vv.Kind() == reflect.Slice && vv.Type().Elem().Kind() == reflect.Uint8 && ft.Kind() == reflect.String:
		field.SetString(string(vv.Bytes()))
	case isNumeric(vv.Kind()) && isNumeric(ft.Kind()):
		field.Set(vv.Convert(ft))
	case isNumeric(vv.Kind()) && ft.Kind() == reflect.Bool:
		field.SetBool(!vv.IsZero())
	case vv.Kind() == reflect.Bool && isNumeric(ft.Kind()):
		n := int64(0)
		if vv.Bool() {
			n = 1
		}
		field.Set(reflect.ValueOf(n).Convert(ft))
	default:
		return errors.Errorf("cannot assign %T to %s", v, ft)
	}
	return nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
