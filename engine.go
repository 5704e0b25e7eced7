package stereodb

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	dbsql "github.com/kant2002/stereodb-go/sql"
)

// registrableTable is the non-generic contract a schema-struct field must
// satisfy to be discovered by NewEngine's reflection pass. Every
// *Table[K, V] satisfies it regardless of K and V, which is what lets
// NewEngine walk an arbitrary schema struct without knowing any table's
// concrete types.
type registrableTable interface {
	Name() string
	emptyState() any
	freeze()
	rowCount(state any) int
	meta() *tableDescriptor
	bindRead(snap *engineState) dbsql.RowReader
	bindWrite(ws *writeState) dbsql.RowWriter
}

func (t *Table[K, V]) freeze() { t.served.Store(true) }

func (t *Table[K, V]) rowCount(raw any) int {
	return len(raw.(*tableState[K, V]).rows)
}

// engineState is one atomically-published generation of every table's
// data. A reader pins a *engineState at transaction start and reads
// through it for the rest of its transaction, which is what makes
// cross-table reads consistent without per-table locking.
type engineState struct {
	tables map[string]any // table name -> *tableState[K, V]
}

// writeState accumulates the working copies a write transaction has
// touched so far. Tables it never calls UseMutableTable on are left
// untouched and simply carried forward from base at publication time.
type writeState struct {
	base    *engineState
	working map[string]any // table name -> *tableState[K, V]
}

// ReadContext is handed to a ReadTransaction callback. It pins the
// engine's published state at construction time; every UseTable call
// within the same callback sees that one snapshot.
type ReadContext[S any] struct {
	engine *Engine[S]
	schema S
	snap   *engineState
}

// Schema returns the engine's schema instance, letting a callback reach
// tables it didn't receive as a parameter.
func (rc *ReadContext[S]) Schema() S { return rc.schema }

// WriteContext is handed to a WriteTransaction callback. UseMutableTable
// calls against it lazily clone each touched table's working copy from
// the base snapshot captured when the write transaction began.
type WriteContext[S any] struct {
	engine *Engine[S]
	schema S
	wstate *writeState
}

// Schema returns the engine's schema instance.
func (wc *WriteContext[S]) Schema() S { return wc.schema }

// Engine owns every table and index of one schema instance for its
// entire lifetime; tables and indexes are fixed at construction and
// never added or removed afterward.
type Engine[S any] struct {
	schema S
	tables map[string]registrableTable

	state    atomic.Pointer[engineState]
	writerMu sync.Mutex
	closed   atomic.Bool

	cfg Config
}

// DuplicateTableError is returned by NewEngine when two schema fields
// register the same table name.
type DuplicateTableError struct {
	Table string
}

func (e *DuplicateTableError) Error() string {
	return fmt.Sprintf("stereodb: duplicate table name %q in schema", e.Table)
}

// NewEngine builds the schema instance with build, discovers every
// *Table[K, V] field on it by reflection, and binds an engine around the
// result. Tables are sealed (AddValueIndex/AddRangeScanIndex start
// failing) the moment construction completes.
func NewEngine[S any](build func() S, opts ...Option) (*Engine[S], error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	schema := build()
	tables := make(map[string]registrableTable)
	initial := &engineState{tables: make(map[string]any)}

	v := reflect.ValueOf(schema)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() == reflect.Struct {
		for i := 0; i < v.NumField(); i++ {
			fv := v.Field(i)
			if !fv.CanInterface() {
				continue
			}
			rt, ok := fv.Interface().(registrableTable)
			if !ok {
				continue
			}
			name := rt.Name()
			if _, dup := tables[name]; dup {
				return nil, &DuplicateTableError{Table: name}
			}
			tables[name] = rt
			initial.tables[name] = rt.emptyState()
			rt.freeze()
		}
	}

	e := &Engine[S]{
		schema: schema,
		tables: tables,
		cfg:    cfg,
	}
	e.state.Store(initial)
	return e, nil
}

// Stats reports the current row count of every registered table, keyed
// by table name. It takes a consistent snapshot the same way a read
// transaction would, but without the ceremony of opening one.
func (e *Engine[S]) Stats() map[string]int {
	snap := e.state.Load()
	out := make(map[string]int, len(e.tables))
	for name, rt := range e.tables {
		out[name] = rt.rowCount(snap.tables[name])
	}
	return out
}

// Close marks the engine closed; subsequent ReadTransaction/
// WriteTransaction calls fail with ErrEngineClosed. Already-open
// transactions are unaffected. Close never blocks and may be called more
// than once.
func (e *Engine[S]) Close() error {
	e.closed.Store(true)
	return nil
}

// ReadTransaction runs fn against a read-only snapshot of the engine's
// current state. It may run concurrently with any number of other read
// transactions and with nothing else blocking it, including an
// in-progress write transaction (which operates on its own copy).
func ReadTransaction[S, T any](e *Engine[S], fn func(*ReadContext[S]) (T, error)) (T, error) {
	var zero T
	if e.closed.Load() {
		return zero, ErrEngineClosed
	}
	rc := &ReadContext[S]{
		engine: e,
		schema: e.schema,
		snap:   e.state.Load(),
	}
	result, err := fn(rc)
	if err != nil {
		return zero, &CallbackFailure{Inner: err}
	}
	return result, nil
}

// WriteTransaction runs fn against a mutable working copy of the
// engine's current state. At most one write transaction runs at a time
// across the whole engine; if fn returns an error, nothing it mutated is
// published and the engine's observable state is unchanged.
func WriteTransaction[S, T any](e *Engine[S], fn func(*WriteContext[S]) (T, error)) (T, error) {
	var zero T
	if e.closed.Load() {
		return zero, ErrEngineClosed
	}

	e.writerMu.Lock()
	defer e.writerMu.Unlock()

	base := e.state.Load()
	ws := &writeState{base: base, working: make(map[string]any)}
	wc := &WriteContext[S]{engine: e, schema: e.schema, wstate: ws}

	result, err := fn(wc)
	if err != nil {
		e.cfg.Logger.Printf("write transaction abandoned: %v", err)
		return zero, &CallbackFailure{Inner: err}
	}

	next := &engineState{tables: make(map[string]any, len(base.tables))}
	for name, st := range base.tables {
		if touched, ok := ws.working[name]; ok {
			next.tables[name] = touched
		} else {
			next.tables[name] = st
		}
	}
	e.state.Store(next)
	return result, nil
}

// Read is the no-result convenience form of ReadTransaction, for
// callbacks that only need to fail or succeed.
func (e *Engine[S]) Read(fn func(*ReadContext[S]) error) error {
	_, err := ReadTransaction(e, func(rc *ReadContext[S]) (struct{}, error) {
		return struct{}{}, fn(rc)
	})
	return err
}

// Write is the no-result convenience form of WriteTransaction.
func (e *Engine[S]) Write(fn func(*WriteContext[S]) error) error {
	_, err := WriteTransaction(e, func(wc *WriteContext[S]) (struct{}, error) {
		return struct{}{}, fn(wc)
	})
	return err
}
