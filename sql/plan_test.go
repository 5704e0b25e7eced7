package sql

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type planTestRow struct {
	Id    int
	Name  string
	Score int32
}

type planTestResult struct {
	Id    int
	Name  string
	Score int32
}

type fakeColumn struct {
	name string
	typ  reflect.Type
}

func (c *fakeColumn) Name() string       { return c.name }
func (c *fakeColumn) Type() reflect.Type { return c.typ }

type fakeTable struct {
	name      string
	rowType   reflect.Type
	keyType   reflect.Type
	keyColumn string
	cols      map[string]ColumnMeta
	order     []ColumnMeta
}

func newFakeTable(name string, rowType reflect.Type, keyColumn string) *fakeTable {
	ft := &fakeTable{name: name, rowType: rowType, keyType: reflect.TypeOf(0), keyColumn: keyColumn, cols: map[string]ColumnMeta{}}
	for i := 0; i < rowType.NumField(); i++ {
		f := rowType.Field(i)
		c := &fakeColumn{name: f.Name, typ: f.Type}
		ft.cols[f.Name] = c
		ft.order = append(ft.order, c)
	}
	return ft
}

func (f *fakeTable) Name() string         { return f.name }
func (f *fakeTable) RowType() reflect.Type { return f.rowType }
func (f *fakeTable) KeyType() reflect.Type { return f.keyType }
func (f *fakeTable) KeyColumn() string     { return f.keyColumn }
func (f *fakeTable) Columns() []ColumnMeta { return f.order }
func (f *fakeTable) Column(name string) (ColumnMeta, bool) {
	c, ok := f.cols[name]
	return c, ok
}

type fakeSchema struct {
	tables map[string]TableMeta
}

func (s *fakeSchema) Table(name string) (TableMeta, bool) {
	t, ok := s.tables[name]
	return t, ok
}

type fakeReader struct {
	rows  map[int]planTestRow
	order []int
}

func (r *fakeReader) Ids() func(yield func(any) bool) {
	return func(yield func(any) bool) {
		for _, id := range r.order {
			if !yield(id) {
				return
			}
		}
	}
}

func (r *fakeReader) Get(key any) (any, bool) {
	id, ok := key.(int)
	if !ok {
		return nil, false
	}
	v, ok := r.rows[id]
	return v, ok
}

type fakeWriter struct {
	*fakeReader
}

func (w *fakeWriter) Set(row any) error {
	v := row.(planTestRow)
	if _, exists := w.rows[v.Id]; !exists {
		w.order = append(w.order, v.Id)
	}
	w.rows[v.Id] = v
	return nil
}

type fakeTxReader struct {
	tables map[string]*fakeReader
}

func (t *fakeTxReader) Table(name string) (RowReader, bool) {
	r, ok := t.tables[name]
	return r, ok
}

type fakeTxWriter struct {
	tables map[string]*fakeWriter
}

func (t *fakeTxWriter) Table(name string) (RowWriter, bool) {
	w, ok := t.tables[name]
	return w, ok
}

func newFixture() (*fakeSchema, *fakeReader) {
	reader := &fakeReader{
		rows: map[int]planTestRow{
			1: {Id: 1, Name: "alpha", Score: 10},
			2: {Id: 2, Name: "beta", Score: 20},
			3: {Id: 3, Name: "gamma", Score: 30},
		},
		order: []int{1, 2, 3},
	}
	schema := &fakeSchema{tables: map[string]TableMeta{
		"Widgets": newFakeTable("Widgets", reflect.TypeOf(planTestRow{}), "Id"),
	}}
	return schema, reader
}

func TestCompile_SelectProjectsAndFilters(t *testing.T) {
	schema, reader := newFixture()
	stmt, err := Parse("SELECT Id, Name FROM Widgets WHERE Score >= 20")
	require.NoError(t, err)

	plan, err := Compile(stmt, schema, reflect.TypeOf(planTestResult{}))
	require.NoError(t, err)
	assert.Equal(t, PlanRead, plan.Kind)

	tx := &fakeTxReader{tables: map[string]*fakeReader{"Widgets": reader}}
	rows, err := plan.Read(tx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "beta", rows[0].(planTestResult).Name)
	assert.Equal(t, "gamma", rows[1].(planTestResult).Name)
}

func TestCompile_SelectPreservesGetIdsOrder(t *testing.T) {
	schema, reader := newFixture()
	stmt, err := Parse("SELECT Id FROM Widgets")
	require.NoError(t, err)

	plan, err := Compile(stmt, schema, reflect.TypeOf(planTestResult{}))
	require.NoError(t, err)

	tx := &fakeTxReader{tables: map[string]*fakeReader{"Widgets": reader}}
	rows, err := plan.Read(tx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 1, rows[0].(planTestResult).Id)
	assert.Equal(t, 2, rows[1].(planTestResult).Id)
	assert.Equal(t, 3, rows[2].(planTestResult).Id)
}

func TestCompile_UnknownTable(t *testing.T) {
	schema, _ := newFixture()
	stmt, err := Parse("SELECT Id FROM Nope")
	require.NoError(t, err)

	_, err = Compile(stmt, schema, reflect.TypeOf(planTestResult{}))
	require.Error(t, err)
	var unknown *UnknownTable
	assert.ErrorAs(t, err, &unknown)
}

func TestCompile_UnknownColumn(t *testing.T) {
	schema, _ := newFixture()
	stmt, err := Parse("SELECT Nope FROM Widgets")
	require.NoError(t, err)

	_, err = Compile(stmt, schema, reflect.TypeOf(planTestResult{}))
	require.Error(t, err)
	var unknown *UnknownColumn
	assert.ErrorAs(t, err, &unknown)
}

func TestCompile_ColumnBindingError(t *testing.T) {
	schema, _ := newFixture()
	stmt, err := Parse("SELECT Id FROM Widgets")
	require.NoError(t, err)

	type wantsMissingField struct {
		Id      int
		Missing string
	}
	_, err = Compile(stmt, schema, reflect.TypeOf(wantsMissingField{}))
	require.Error(t, err)
	var bindErr *ColumnBindingError
	assert.ErrorAs(t, err, &bindErr)
}

func TestCompile_ArithmeticProjectionNotImplemented(t *testing.T) {
	schema, _ := newFixture()
	stmt, err := Parse("SELECT Id + 1 FROM Widgets")
	require.NoError(t, err)

	_, err = Compile(stmt, schema, reflect.TypeOf(planTestResult{}))
	require.Error(t, err)
	var notImpl *NotImplemented
	assert.ErrorAs(t, err, &notImpl)
}

func TestCompile_UpdateSetsMatchingRows(t *testing.T) {
	schema, reader := newFixture()
	stmt, err := Parse("UPDATE Widgets SET Score = 5 WHERE Score > 15")
	require.NoError(t, err)

	plan, err := Compile(stmt, schema, nil)
	require.NoError(t, err)
	assert.Equal(t, PlanWrite, plan.Kind)

	writer := &fakeWriter{fakeReader: reader}
	tx := &fakeTxWriter{tables: map[string]*fakeWriter{"Widgets": writer}}
	require.NoError(t, plan.Write(tx))

	assert.Equal(t, int32(10), writer.rows[1].Score)
	assert.Equal(t, int32(5), writer.rows[2].Score)
	assert.Equal(t, int32(5), writer.rows[3].Score)
}

func TestCompile_UpdateRejectsKeyColumnAssignment(t *testing.T) {
	schema, _ := newFixture()
	stmt, err := Parse("UPDATE Widgets SET Id = Name WHERE Score > 0")
	require.NoError(t, err)

	_, err = Compile(stmt, schema, nil)
	require.Error(t, err)
	var bindErr *ColumnBindingError
	assert.ErrorAs(t, err, &bindErr)
}

func TestCompile_UpdateUnknownColumn(t *testing.T) {
	schema, _ := newFixture()
	stmt, err := Parse("UPDATE Widgets SET Nope = 1")
	require.NoError(t, err)

	_, err = Compile(stmt, schema, nil)
	require.Error(t, err)
	var unknown *UnknownColumn
	assert.ErrorAs(t, err, &unknown)
}
