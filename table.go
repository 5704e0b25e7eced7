package stereodb

import (
	"sync"
	"sync/atomic"
)

// Table is the primary store for one entity type: a mapping from a
// comparable primary key K to a row value V, plus whatever secondary
// indexes were attached with AddValueIndex/AddRangeScanIndex before the
// table was registered with an engine by NewEngine.
//
// Table itself holds no data outside of a transaction — all reads and
// writes flow through a ReadContext/WriteContext via UseTable, which binds
// a Table to the published snapshot (readers) or the in-progress working
// copy (writers) for one transaction.
type Table[K comparable, V any] struct {
	name    string
	keyFunc func(V) K

	indexDefs []indexDef[K, V]

	// served flags this table as registered with an engine (NewEngine
	// sets it); AddValueIndex/AddRangeScanIndex refuse to run once it
	// flips, matching the "schema-construction-time only" contract.
	served *atomic.Bool

	descriptorOnce sync.Once
	descriptor     *tableDescriptor
}

// NewTable constructs a table whose rows are keyed by keyFunc(v). Tables
// are meant to be registered as exported fields of a schema struct passed
// to NewEngine; they do nothing useful before that.
func NewTable[K comparable, V any](name string, keyFunc func(V) K) *Table[K, V] {
	return &Table[K, V]{
		name:    name,
		keyFunc: keyFunc,
		served:  new(atomic.Bool),
	}
}

// Name returns the table's schema-assigned name.
func (t *Table[K, V]) Name() string { return t.name }

func (t *Table[K, V]) checkMutable() error {
	if t.served.Load() {
		return &SchemaFrozenError{Table: t.name}
	}
	return nil
}

// tableState is the immutable (from a reader's point of view) snapshot of
// one table's rows, key order and index contents. Writers obtain a private
// clone before mutating; readers only ever see a tableState reachable from
// a published *engineState.
type tableState[K comparable, V any] struct {
	rows        map[K]V
	order       []K
	indexStates []any // parallel to Table.indexDefs
}

func (t *Table[K, V]) emptyState() any {
	states := make([]any, len(t.indexDefs))
	for i, def := range t.indexDefs {
		states[i] = def.empty()
	}
	return &tableState[K, V]{
		rows:        make(map[K]V),
		order:       nil,
		indexStates: states,
	}
}

func (ts *tableState[K, V]) clone() *tableState[K, V] {
	rows := make(map[K]V, len(ts.rows))
	for k, v := range ts.rows {
		rows[k] = v
	}
	order := append([]K(nil), ts.order...)
	states := make([]any, len(ts.indexStates))
	for i, s := range ts.indexStates {
		states[i] = cloneIndexState(s)
	}
	return &tableState[K, V]{rows: rows, order: order, indexStates: states}
}

// setRow implements invariants I1/I2: it replaces rows[k] wholesale and
// keeps every attached index consistent, removing the old row's entries
// before adding the new ones.
func (t *Table[K, V]) setRow(ts *tableState[K, V], v V) {
	k := t.keyFunc(v)
	if old, ok := ts.rows[k]; ok {
		for i, def := range t.indexDefs {
			ts.indexStates[i] = def.remove(ts.indexStates[i], k, old)
		}
	} else {
		ts.order = append(ts.order, k)
	}
	ts.rows[k] = v
	for i, def := range t.indexDefs {
		ts.indexStates[i] = def.insert(ts.indexStates[i], k, v)
	}
}

// deleteRow removes the row for k and all of its index entries. Reports
// whether a row was actually present.
func (t *Table[K, V]) deleteRow(ts *tableState[K, V], k K) bool {
	old, ok := ts.rows[k]
	if !ok {
		return false
	}
	for i, def := range t.indexDefs {
		ts.indexStates[i] = def.remove(ts.indexStates[i], k, old)
	}
	delete(ts.rows, k)
	for i, kk := range ts.order {
		if kk == k {
			ts.order = append(ts.order[:i], ts.order[i+1:]...)
			break
		}
	}
	return true
}

// TableHandle is the bound view of a Table for the duration of one
// transaction: UseTable for readers, UseMutableTable for writers. Both are
// free functions (not methods) because Go methods cannot introduce type
// parameters beyond their receiver's — K and V are already fixed by the
// Table passed in, but the handle also needs to know which transaction
// snapshot to read through, so it is produced by binding a Table to a
// ReadContext/WriteContext rather than by a method on either side.
type TableHandle[K comparable, V any] struct {
	table    *Table[K, V]
	readOnly bool

	// exactly one of snapshot/wstate is set.
	snapshot *tableState[K, V]
	wstate   *writeState
}

// Get returns the row for k and whether it was present. Never fails —
// missing keys are absences, not errors, in both transaction modes.
func (h *TableHandle[K, V]) Get(k K) (V, bool) {
	st := h.state()
	v, ok := st.rows[k]
	return v, ok
}

// TryGet is Get with a boolean-first return, matching the flat
// (present?, value) shape spec.md names alongside Get.
func (h *TableHandle[K, V]) TryGet(k K) (bool, V) {
	v, ok := h.Get(k)
	return ok, v
}

// GetIds returns a lazy, finite, non-restartable sequence over the
// table's keys in the order they were first inserted (stable within one
// transaction, per spec.md's "implementation-defined but stable" clause).
func (h *TableHandle[K, V]) GetIds() func(yield func(K) bool) {
	st := h.state()
	order := st.order
	return func(yield func(K) bool) {
		for _, k := range order {
			if !yield(k) {
				return
			}
		}
	}
}

// Set establishes rows[keyFunc(v)] = v and updates every attached index,
// available only through a write transaction's handle.
func (h *TableHandle[K, V]) Set(v V) error {
	if h.readOnly {
		return &ReadOnlyViolation{Table: h.table.name}
	}
	h.table.setRow(h.working(), v)
	return nil
}

// Delete removes the row for k and its index entries, available only
// through a write transaction's handle.
func (h *TableHandle[K, V]) Delete(k K) error {
	if h.readOnly {
		return &ReadOnlyViolation{Table: h.table.name}
	}
	h.table.deleteRow(h.working(), k)
	return nil
}

func (h *TableHandle[K, V]) state() *tableState[K, V] {
	if h.snapshot != nil {
		return h.snapshot
	}
	return h.table.working(h.wstate)
}

func (h *TableHandle[K, V]) working() *tableState[K, V] {
	return h.table.working(h.wstate)
}

// working returns this table's mutable working copy for the write
// transaction described by ws, cloning lazily from ws's base snapshot on
// first touch.
func (t *Table[K, V]) working(ws *writeState) *tableState[K, V] {
	if existing, ok := ws.working[t.name]; ok {
		return existing.(*tableState[K, V])
	}
	base := ws.base.tables[t.name].(*tableState[K, V])
	clone := base.clone()
	ws.working[t.name] = clone
	return clone
}

// UseTable binds table to the read-only snapshot pinned by rc at the start
// of its transaction.
func UseTable[K comparable, V any, S any](rc *ReadContext[S], table *Table[K, V]) *TableHandle[K, V] {
	raw := rc.snap.tables[table.name]
	return &TableHandle[K, V]{table: table, readOnly: true, snapshot: raw.(*tableState[K, V])}
}

// UseMutableTable binds table to the working copy of the write transaction
// described by wc, producing a handle whose Set/Delete are live.
func UseMutableTable[K comparable, V any, S any](wc *WriteContext[S], table *Table[K, V]) *TableHandle[K, V] {
	return &TableHandle[K, V]{table: table, readOnly: false, wstate: wc.wstate}
}
