package stereodb

import (
	"reflect"

	dbsql "github.com/kant2002/stereodb-go/sql"
)

// tableRowReader adapts a read-only TableHandle to the non-generic
// dbsql.RowReader the sql package's planner compiles against.
type tableRowReader[K comparable, V any] struct {
	handle *TableHandle[K, V]
}

func (r *tableRowReader[K, V]) Ids() func(yield func(any) bool) {
	inner := r.handle.GetIds()
	return func(yield func(any) bool) {
		inner(func(k K) bool { return yield(any(k)) })
	}
}

func (r *tableRowReader[K, V]) Get(key any) (any, bool) {
	k, ok := key.(K)
	if !ok {
		return nil, false
	}
	v, ok := r.handle.Get(k)
	if !ok {
		return nil, false
	}
	return v, true
}

// tableRowWriter extends tableRowReader with Set, backed by a mutable
// TableHandle.
type tableRowWriter[K comparable, V any] struct {
	tableRowReader[K, V]
}

func (w *tableRowWriter[K, V]) Set(row any) error {
	v, ok := row.(V)
	if !ok {
		return &ColumnTypeError{Table: w.handle.table.name, Want: reflect.TypeOf(*new(V)), Got: reflect.TypeOf(row)}
	}
	return w.handle.Set(v)
}

func (t *Table[K, V]) bindRead(snap *engineState) dbsql.RowReader {
	raw := snap.tables[t.name]
	h := &TableHandle[K, V]{table: t, readOnly: true, snapshot: raw.(*tableState[K, V])}
	return &tableRowReader[K, V]{handle: h}
}

func (t *Table[K, V]) bindWrite(ws *writeState) dbsql.RowWriter {
	h := &TableHandle[K, V]{table: t, readOnly: false, wstate: ws}
	return &tableRowWriter[K, V]{tableRowReader: tableRowReader[K, V]{handle: h}}
}

// schemaAdapter exposes an Engine's registered tables as a dbsql.Schema
// without leaking the engine's generic schema type S into the sql
// package.
type schemaAdapter struct {
	tables map[string]registrableTable
}

func (a *schemaAdapter) Table(name string) (dbsql.TableMeta, bool) {
	rt, ok := a.tables[name]
	if !ok {
		return nil, false
	}
	return rt.meta(), true
}

type txReaderAdapter struct {
	tables map[string]registrableTable
	snap   *engineState
}

func (a *txReaderAdapter) Table(name string) (dbsql.RowReader, bool) {
	rt, ok := a.tables[name]
	if !ok {
		return nil, false
	}
	return rt.bindRead(a.snap), true
}

type txWriterAdapter struct {
	tables map[string]registrableTable
	wstate *writeState
}

func (a *txWriterAdapter) Table(name string) (dbsql.RowWriter, bool) {
	rt, ok := a.tables[name]
	if !ok {
		return nil, false
	}
	return rt.bindWrite(a.wstate), true
}

// ColumnTypeError is returned when a compiled UPDATE plan hands a table a
// row value of the wrong Go type — it would indicate a planner/schema
// mismatch rather than anything a caller's SQL text controls.
type ColumnTypeError struct {
	Table string
	Want  reflect.Type
	Got   reflect.Type
}

func (e *ColumnTypeError) Error() string {
	return "stereodb: table " + e.Table + " expected row type " + e.Want.String() + ", got " + e.Got.String()
}

// ExecuteSql parses, plans and runs query against engine. A SELECT
// compiles to a read plan and returns its projected rows as R; an UPDATE
// compiles to a write plan, mutates in place, and returns a nil slice.
// Parse and plan errors surface before any transaction opens; execution
// errors abandon the transaction they were raised in.
func ExecuteSql[S, R any](engine *Engine[S], query string) ([]R, error) {
	stmt, err := dbsql.Parse(query)
	if err != nil {
		return nil, err
	}

	schema := &schemaAdapter{tables: engine.tables}
	resultType := reflect.TypeOf(*new(R))
	plan, err := dbsql.Compile(stmt, schema, resultType)
	if err != nil {
		return nil, err
	}

	switch plan.Kind {
	case dbsql.PlanRead:
		return ReadTransaction(engine, func(rc *ReadContext[S]) ([]R, error) {
			tx := &txReaderAdapter{tables: engine.tables, snap: rc.snap}
			rows, err := plan.Read(tx)
			if err != nil {
				return nil, err
			}
			out := make([]R, 0, len(rows))
			for _, row := range rows {
				r, ok := row.(R)
				if !ok {
					return nil, &ColumnTypeError{Table: "<result>", Want: resultType, Got: reflect.TypeOf(row)}
				}
				out = append(out, r)
			}
			return out, nil
		})
	case dbsql.PlanWrite:
		_, err := WriteTransaction(engine, func(wc *WriteContext[S]) (struct{}, error) {
			tx := &txWriterAdapter{tables: engine.tables, wstate: wc.wstate}
			return struct{}{}, plan.Write(tx)
		})
		return nil, err
	default:
		return nil, &dbsql.NotImplemented{Feature: "plan kind"}
	}
}

// ExplainSelect parses query (which must be a SELECT) and returns a
// one-line description of its compiled shape, without running it or
// opening a transaction.
func ExplainSelect[S any](engine *Engine[S], query string) (string, error) {
	stmt, err := dbsql.Parse(query)
	if err != nil {
		return "", err
	}
	schema := &schemaAdapter{tables: engine.tables}
	return dbsql.ExplainSelect(stmt, schema)
}
