package stereodb

import (
	"cmp"
	"sort"
)

// indexDef is the table-internal, type-erased-by-name maintenance contract
// every attached index implements. It is generic over K and V (same as its
// owning Table) but erases its own secondary-key type IK behind `any`,
// which is how a single Table[K,V] can hold indexes with different
// secondary-key types without a second type parameter on Table itself.
type indexDef[K comparable, V any] interface {
	name() string
	empty() any
	insert(state any, k K, v V) any
	remove(state any, k K, v V) any
}

func cloneIndexState(raw any) any {
	switch st := raw.(type) {
	case *valueIndexState[any]:
		return st.clone()
	case *rangeIndexState[any]:
		return st.clone()
	default:
		panic("stereodb: unknown index state type")
	}
}

// ---- value index ----

type valueIndexState[K comparable] struct {
	buckets map[any][]K
}

func (s *valueIndexState[K]) clone() *valueIndexState[K] {
	buckets := make(map[any][]K, len(s.buckets))
	for k, v := range s.buckets {
		buckets[k] = append([]K(nil), v...)
	}
	return &valueIndexState[K]{buckets: buckets}
}

type valueIndexDef[IK comparable, K comparable, V any] struct {
	indexName string
	extractor func(V) IK
}

func (d *valueIndexDef[IK, K, V]) name() string { return d.indexName }

func (d *valueIndexDef[IK, K, V]) empty() any {
	return &valueIndexState[any]{buckets: make(map[any][]any)}
}

func (d *valueIndexDef[IK, K, V]) insert(state any, k K, v V) any {
	st := state.(*valueIndexState[any])
	key := any(d.extractor(v))
	st.buckets[key] = append(st.buckets[key], k)
	return st
}

func (d *valueIndexDef[IK, K, V]) remove(state any, k K, v V) any {
	st := state.(*valueIndexState[any])
	key := any(d.extractor(v))
	st.buckets[key] = removeKey(st.buckets[key], any(k))
	if len(st.buckets[key]) == 0 {
		delete(st.buckets, key)
	}
	return st
}

func removeKey[K comparable](ks []K, target K) []K {
	for i, k := range ks {
		if k == target {
			return append(ks[:i], ks[i+1:]...)
		}
	}
	return ks
}

// ValueIndex is a hash-style secondary index: extractor(V) -> IK, with
// Find materializing every row whose extracted value equals the queried
// key. Attached with AddValueIndex at schema-construction time.
type ValueIndex[IK comparable, K comparable, V any] struct {
	def *valueIndexDef[IK, K, V]
	pos int
}

// AddValueIndex attaches a new value index to t, deriving the secondary
// key from each row with extractor. Must run before t is registered with
// an engine by NewEngine; returns a *SchemaFrozenError otherwise.
func AddValueIndex[IK comparable, K comparable, V any](t *Table[K, V], name string, extractor func(V) IK) (*ValueIndex[IK, K, V], error) {
	if err := t.checkMutable(); err != nil {
		return nil, err
	}
	def := &valueIndexDef[IK, K, V]{indexName: name, extractor: extractor}
	t.indexDefs = append(t.indexDefs, def)
	return &ValueIndex[IK, K, V]{def: def, pos: len(t.indexDefs) - 1}, nil
}

// Find returns every row whose extracted secondary key equals value. Order
// is unspecified, matching spec.md's value-index contract.
func (idx *ValueIndex[IK, K, V]) Find(h *TableHandle[K, V], value IK) []V {
	st := h.state()
	ix := st.indexStates[idx.pos].(*valueIndexState[any])
	pks := ix.buckets[any(value)]
	out := make([]V, 0, len(pks))
	for _, k := range pks {
		if v, ok := st.rows[k.(K)]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Count is Find without materializing rows.
func (idx *ValueIndex[IK, K, V]) Count(h *TableHandle[K, V], value IK) int {
	st := h.state()
	ix := st.indexStates[idx.pos].(*valueIndexState[any])
	return len(ix.buckets[any(value)])
}

// ---- range index ----

type rangeEntry[K comparable] struct {
	key any
	pks []K
}

type rangeIndexState[K comparable] struct {
	compare func(a, b any) int
	entries []rangeEntry[K]
}

func (s *rangeIndexState[K]) clone() *rangeIndexState[K] {
	entries := make([]rangeEntry[K], len(s.entries))
	for i, e := range s.entries {
		entries[i] = rangeEntry[K]{key: e.key, pks: append([]K(nil), e.pks...)}
	}
	return &rangeIndexState[K]{compare: s.compare, entries: entries}
}

func (s *rangeIndexState[K]) find(key any) int {
	return sort.Search(len(s.entries), func(i int) bool {
		return s.compare(s.entries[i].key, key) >= 0
	})
}

func (s *rangeIndexState[K]) insert(key any, k K) {
	i := s.find(key)
	if i < len(s.entries) && s.compare(s.entries[i].key, key) == 0 {
		s.entries[i].pks = append(s.entries[i].pks, k)
		return
	}
	s.entries = append(s.entries, rangeEntry[K]{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = rangeEntry[K]{key: key, pks: []K{k}}
}

func (s *rangeIndexState[K]) remove(key any, k K) {
	i := s.find(key)
	if i >= len(s.entries) || s.compare(s.entries[i].key, key) != 0 {
		return
	}
	s.entries[i].pks = removeKey(s.entries[i].pks, k)
	if len(s.entries[i].pks) == 0 {
		s.entries = append(s.entries[:i], s.entries[i+1:]...)
	}
}

type rangeIndexDef[IK cmp.Ordered, K comparable, V any] struct {
	indexName string
	extractor func(V) IK
}

func (d *rangeIndexDef[IK, K, V]) name() string { return d.indexName }

func (d *rangeIndexDef[IK, K, V]) empty() any {
	return &rangeIndexState[any]{compare: compareOrdered[IK]}
}

func (d *rangeIndexDef[IK, K, V]) insert(state any, k K, v V) any {
	st := state.(*rangeIndexState[any])
	st.insert(any(d.extractor(v)), k)
	return st
}

func (d *rangeIndexDef[IK, K, V]) remove(state any, k K, v V) any {
	st := state.(*rangeIndexState[any])
	st.remove(any(d.extractor(v)), k)
	return st
}

func compareOrdered[IK cmp.Ordered](a, b any) int {
	return cmp.Compare(a.(IK), b.(IK))
}

// RangeIndex is an ordered secondary index supporting bounded range scans.
// Attached with AddRangeScanIndex at schema-construction time.
type RangeIndex[IK cmp.Ordered, K comparable, V any] struct {
	def *rangeIndexDef[IK, K, V]
	pos int
}

// AddRangeScanIndex attaches a new range-scan index to t, deriving the
// secondary key from each row with extractor. Must run before t is
// registered with an engine by NewEngine; returns a *SchemaFrozenError
// otherwise.
func AddRangeScanIndex[IK cmp.Ordered, K comparable, V any](t *Table[K, V], name string, extractor func(V) IK) (*RangeIndex[IK, K, V], error) {
	if err := t.checkMutable(); err != nil {
		return nil, err
	}
	def := &rangeIndexDef[IK, K, V]{indexName: name, extractor: extractor}
	t.indexDefs = append(t.indexDefs, def)
	return &RangeIndex[IK, K, V]{def: def, pos: len(t.indexDefs) - 1}, nil
}

// Range returns rows whose extracted secondary key lies between lo and hi
// (each bound inclusive or exclusive as requested), ascending by that key.
func (idx *RangeIndex[IK, K, V]) Range(h *TableHandle[K, V], lo IK, loInclusive bool, hi IK, hiInclusive bool) []V {
	st := h.state()
	ix := st.indexStates[idx.pos].(*rangeIndexState[any])

	start := sort.Search(len(ix.entries), func(i int) bool {
		c := ix.compare(ix.entries[i].key, any(lo))
		if loInclusive {
			return c >= 0
		}
		return c > 0
	})

	var out []V
	for i := start; i < len(ix.entries); i++ {
		c := ix.compare(ix.entries[i].key, any(hi))
		if c > 0 || (c == 0 && !hiInclusive) {
			break
		}
		for _, k := range ix.entries[i].pks {
			if v, ok := st.rows[k.(K)]; ok {
				out = append(out, v)
			}
		}
	}
	return out
}
