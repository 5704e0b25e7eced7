package sql

import "reflect"

// PlanKind distinguishes a read-only SELECT plan from a mutating UPDATE
// plan; ExecuteSql uses it to choose which transaction kind to open.
type PlanKind int

const (
	PlanRead PlanKind = iota
	PlanWrite
)

// Plan is a compiled statement: either Read, which produces result rows
// from a TxReader, or Write, which mutates through a TxWriter. Exactly
// one of the two is non-nil, matching Kind.
type Plan struct {
	Kind  PlanKind
	Read  func(tx TxReader) ([]any, error)
	Write func(tx TxWriter) error
}

// predicate evaluates a compiled WHERE clause against one row.
type predicate func(row reflect.Value) (bool, error)

// valueEval evaluates a compiled value expression (projection, SET value,
// or a comparison operand) against one row.
type valueEval func(row reflect.Value) (reflect.Value, error)

// Compile turns stmt into an executable Plan, resolving table and column
// names against schema. resultType is the caller's result record type
// (ignored for UPDATE statements, required for SELECT).
func Compile(stmt Statement, schema Schema, resultType reflect.Type) (*Plan, error) {
	switch s := stmt.(type) {
	case *SelectStatement:
		return compileSelect(s, schema, resultType)
	case *UpdateStatement:
		return compileUpdate(s, schema)
	default:
		return nil, &NotImplemented{Feature: "statement kind"}
	}
}

type fieldBinding struct {
	fieldIndex int
	eval       valueEval
}

func compileSelect(sel *SelectStatement, schema Schema, resultType reflect.Type) (*Plan, error) {
	var tmeta TableMeta
	if sel.From != "" {
		meta, ok := schema.Table(sel.From)
		if !ok {
			return nil, &UnknownTable{Name: sel.From}
		}
		tmeta = meta
	}

	projected := make(map[string]Expr, len(sel.Columns))
	for _, col := range sel.Columns {
		name := col.Alias
		if name == "" {
			if id, ok := col.Expr.(*Ident); ok {
				name = id.Name
			}
		}
		if name != "" {
			projected[name] = col.Expr
		}
		if err := validateProjectable(col.Expr, tmeta); err != nil {
			return nil, err
		}
		if id, ok := col.Expr.(*Ident); ok {
			tableName := ""
			if tmeta != nil {
				tableName = tmeta.Name()
			}
			if tmeta == nil {
				return nil, &UnknownColumn{Table: tableName, Column: id.Name}
			}
			if _, ok := tmeta.Column(id.Name); !ok {
				return nil, &UnknownColumn{Table: tableName, Column: id.Name}
			}
		}
	}

	if resultType == nil || resultType.Kind() != reflect.Struct {
		return nil, &NotImplemented{Feature: "non-struct result type"}
	}

	bindings := make([]fieldBinding, 0, resultType.NumField())
	for i := 0; i < resultType.NumField(); i++ {
		f := resultType.Field(i)
		if !f.IsExported() {
			continue
		}

		var expr Expr
		if e, ok := projected[f.Name]; ok {
			expr = e
		} else if tmeta != nil {
			if _, ok := tmeta.Column(f.Name); ok {
				expr = &Ident{Name: f.Name}
			}
		}
		if expr == nil {
			return nil, &ColumnBindingError{Field: f.Name}
		}

		eval, err := compileValueExpr(expr, tmeta)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, fieldBinding{fieldIndex: i, eval: eval})
	}

	var where predicate
	if sel.Where != nil {
		p, err := compilePredicate(sel.Where, tmeta)
		if err != nil {
			return nil, err
		}
		where = p
	}

	if sel.From == "" {
		return &Plan{Kind: PlanRead, Read: func(tx TxReader) ([]any, error) {
			row, err := buildResult(reflect.Value{}, resultType, bindings)
			if err != nil {
				return nil, err
			}
			return []any{row}, nil
		}}, nil
	}

	tableName := sel.From
	return &Plan{Kind: PlanRead, Read: func(tx TxReader) ([]any, error) {
		reader, ok := tx.Table(tableName)
		if !ok {
			return nil, &UnknownTable{Name: tableName}
		}

		var out []any
		var iterErr error
		reader.Ids()(func(id any) bool {
			raw, ok := reader.Get(id)
			if !ok {
				return true
			}
			row := reflect.ValueOf(raw)

			if where != nil {
				keep, err := where(row)
				if err != nil {
					iterErr = err
					return false
				}
				if !keep {
					return true
				}
			}

			result, err := buildResult(row, resultType, bindings)
			if err != nil {
				iterErr = err
				return false
			}
			out = append(out, result)
			return true
		})
		if iterErr != nil {
			return nil, iterErr
		}
		return out, nil
	}}, nil
}

func buildResult(row reflect.Value, resultType reflect.Type, bindings []fieldBinding) (any, error) {
	out := reflect.New(resultType).Elem()
	for _, b := range bindings {
		v, err := b.eval(row)
		if err != nil {
			return nil, err
		}
		field := out.Field(b.fieldIndex)
		if err := assign(field, v); err != nil {
			return nil, err
		}
	}
	return out.Interface(), nil
}

func compileUpdate(upd *UpdateStatement, schema Schema) (*Plan, error) {
	tmeta, ok := schema.Table(upd.Table)
	if !ok {
		return nil, &UnknownTable{Name: upd.Table}
	}

	type compiledAssignment struct {
		fieldIndex int
		eval       valueEval
	}

	rowType := tmeta.RowType()
	assignments := make([]compiledAssignment, 0, len(upd.Set))
	for _, a := range upd.Set {
		col, ok := tmeta.Column(a.Column)
		if !ok {
			return nil, &UnknownColumn{Table: upd.Table, Column: a.Column}
		}
		if tmeta.KeyColumn() != "" && a.Column == tmeta.KeyColumn() {
			return nil, &ColumnBindingError{Field: a.Column}
		}
		if err := validateProjectable(a.Value, tmeta); err != nil {
			return nil, err
		}
		eval, err := compileValueExpr(a.Value, tmeta)
		if err != nil {
			return nil, err
		}

		field, found := rowType.FieldByName(col.Name())
		if !found {
			return nil, &UnknownColumn{Table: upd.Table, Column: a.Column}
		}
		idx := field.Index[0]
		assignments = append(assignments, compiledAssignment{fieldIndex: idx, eval: eval})
	}

	var where predicate
	if upd.Where != nil {
		p, err := compilePredicate(upd.Where, tmeta)
		if err != nil {
			return nil, err
		}
		where = p
	}

	tableName := upd.Table
	return &Plan{Kind: PlanWrite, Write: func(tx TxWriter) error {
		writer, ok := tx.Table(tableName)
		if !ok {
			return &UnknownTable{Name: tableName}
		}

		var matched []any
		writer.Ids()(func(id any) bool {
			matched = append(matched, id)
			return true
		})

		for _, id := range matched {
			raw, ok := writer.Get(id)
			if !ok {
				continue
			}
			row := reflect.ValueOf(raw)

			if where != nil {
				keep, err := where(row)
				if err != nil {
					return err
				}
				if !keep {
					continue
				}
			}

			updated := reflect.New(rowType).Elem()
			updated.Set(row)
			for _, a := range assignments {
				v, err := a.eval(row)
				if err != nil {
					return err
				}
				if err := assign(updated.Field(a.fieldIndex), v); err != nil {
					return err
				}
			}
			if err := writer.Set(updated.Interface()); err != nil {
				return err
			}
		}
		return nil
	}}, nil
}

func validateProjectable(expr Expr, tmeta TableMeta) error {
	switch expr.(type) {
	case *Ident, *IntLiteral, *FloatLiteral:
		return nil
	default:
		return &NotImplemented{Feature: "arithmetic expression"}
	}
}

func compileValueExpr(expr Expr, tmeta TableMeta) (valueEval, error) {
	switch e := expr.(type) {
	case *Ident:
		name := e.Name
		tableName := ""
		if tmeta != nil {
			tableName = tmeta.Name()
			if _, ok := tmeta.Column(name); !ok {
				return nil, &UnknownColumn{Table: tableName, Column: name}
			}
		}
		return func(row reflect.Value) (reflect.Value, error) {
			if !row.IsValid() {
				return reflect.Value{}, &UnknownColumn{Table: tableName, Column: name}
			}
			fv := row.FieldByName(name)
			if !fv.IsValid() {
				return reflect.Value{}, &UnknownColumn{Table: tableName, Column: name}
			}
			return fv, nil
		}, nil
	case *IntLiteral:
		v := reflect.ValueOf(e.Value)
		return func(reflect.Value) (reflect.Value, error) { return v, nil }, nil
	case *FloatLiteral:
		v := reflect.ValueOf(e.Value)
		return func(reflect.Value) (reflect.Value, error) { return v, nil }, nil
	default:
		return nil, &NotImplemented{Feature: "arithmetic expression"}
	}
}

func compilePredicate(expr Expr, tmeta TableMeta) (predicate, error) {
	switch e := expr.(type) {
	case *BinaryExpr:
		switch e.Op {
		case "AND":
			left, err := compilePredicate(e.Left, tmeta)
			if err != nil {
				return nil, err
			}
			right, err := compilePredicate(e.Right, tmeta)
			if err != nil {
				return nil, err
			}
			return func(row reflect.Value) (bool, error) {
				l, err := left(row)
				if err != nil || !l {
					return false, err
				}
				return right(row)
			}, nil
		case "OR":
			left, err := compilePredicate(e.Left, tmeta)
			if err != nil {
				return nil, err
			}
			right, err := compilePredicate(e.Right, tmeta)
			if err != nil {
				return nil, err
			}
			return func(row reflect.Value) (bool, error) {
				l, err := left(row)
				if err != nil {
					return false, err
				}
				if l {
					return true, nil
				}
				return right(row)
			}, nil
		case "=", "<>", "<", "<=", ">", ">=":
			leftEval, err := compileValueExpr(e.Left, tmeta)
			if err != nil {
				return nil, err
			}
			rightEval, err := compileValueExpr(e.Right, tmeta)
			if err != nil {
				return nil, err
			}
			op := e.Op
			return func(row reflect.Value) (bool, error) {
				l, err := leftEval(row)
				if err != nil {
					return false, err
				}
				r, err := rightEval(row)
				if err != nil {
					return false, err
				}
				return compare(op, l, r)
			}, nil
		default:
			return nil, &NotImplemented{Feature: "arithmetic expression"}
		}
	case *NotExpr:
		inner, err := compilePredicate(e.Operand, tmeta)
		if err != nil {
			return nil, err
		}
		return func(row reflect.Value) (bool, error) {
			v, err := inner(row)
			if err != nil {
				return false, err
			}
			return !v, nil
		}, nil
	case *IsNullExpr:
		eval, err := compileValueExpr(e.Operand, tmeta)
		if err != nil {
			return nil, err
		}
		negated := e.Negated
		return func(row reflect.Value) (bool, error) {
			v, err := eval(row)
			if err != nil {
				return false, err
			}
			isNull := isNilable(v.Kind()) && v.IsNil()
			if negated {
				return !isNull, nil
			}
			return isNull, nil
		}, nil
	default:
		return nil, &NotImplemented{Feature: "predicate expression"}
	}
}

func isNilable(k reflect.Kind) bool {
	switch k {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return true
	}
	return false
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func numericFloat(v reflect.Value) float64 {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint())
	case reflect.Float32, reflect.Float64:
		return v.Float()
	}
	return 0
}

func compare(op string, l, r reflect.Value) (bool, error) {
	switch {
	case isNumericKind(l.Kind()) && isNumericKind(r.Kind()):
		lf, rf := numericFloat(l), numericFloat(r)
		return applyOp(op, cmp3(lf, rf))
	case l.Kind() == reflect.String && r.Kind() == reflect.String:
		ls, rs := l.String(), r.String()
		var c int
		switch {
		case ls < rs:
			c = -1
		case ls > rs:
			c = 1
		}
		return applyOp(op, c)
	default:
		if op == "=" || op == "<>" {
			eq := l.IsValid() && r.IsValid() && l.Type() == r.Type() && l.Comparable() && l.Interface() == r.Interface()
			if op == "<>" {
				eq = !eq
			}
			return eq, nil
		}
		return false, &NotImplemented{Feature: "ordering comparison between incompatible types"}
	}
}

func cmp3(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func applyOp(op string, c int) (bool, error) {
	switch op {
	case "=":
		return c == 0, nil
	case "<>":
		return c != 0, nil
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return false, &NotImplemented{Feature: "comparison operator " + op}
}

// assign stores v into field, converting between compatible numeric kinds
// (including the i64-literal -> i32-attribute narrowing the surrounding
// spec calls out) and failing loudly rather than panicking on anything
// reflect.Value.Set would reject.
func assign(field, v reflect.Value) error {
	if !v.IsValid() {
		return &NotImplemented{Feature: "null value assignment"}
	}
	if v.Type().AssignableTo(field.Type()) {
		field.Set(v)
		return nil
	}
	if v.Type().ConvertibleTo(field.Type()) && (isNumericKind(v.Kind()) && isNumericKind(field.Kind())) {
		field.Set(v.Convert(field.Type()))
		return nil
	}
	return &NotImplemented{Feature: "coercion from " + v.Type().String() + " to " + field.Type().String()}
}
