package stereodb

import (
	"reflect"

	dbsql "github.com/kant2002/stereodb-go/sql"
)

// columnDescriptor is the reflection-derived sql.ColumnMeta for one
// exported field of a row type.
type columnDescriptor struct {
	fieldName string
	fieldType reflect.Type
}

func (c *columnDescriptor) Name() string       { return c.fieldName }
func (c *columnDescriptor) Type() reflect.Type { return c.fieldType }

// tableDescriptor is the reflection-derived sql.TableMeta for one Table,
// built once and cached on first access (NewEngine calls meta() for
// nothing, so the lazy sync.Once also means a table that ExecuteSql
// never touches never pays for it).
type tableDescriptor struct {
	tableName string
	rowType   reflect.Type
	keyType   reflect.Type
	keyColumn string
	columns   map[string]dbsql.ColumnMeta
	ordered   []dbsql.ColumnMeta
}

func (d *tableDescriptor) Name() string             { return d.tableName }
func (d *tableDescriptor) RowType() reflect.Type     { return d.rowType }
func (d *tableDescriptor) KeyType() reflect.Type     { return d.keyType }
func (d *tableDescriptor) KeyColumn() string         { return d.keyColumn }
func (d *tableDescriptor) Columns() []dbsql.ColumnMeta { return d.ordered }

func (d *tableDescriptor) Column(name string) (dbsql.ColumnMeta, bool) {
	c, ok := d.columns[name]
	return c, ok
}

func buildTableDescriptor[K comparable, V any](name string) *tableDescriptor {
	var zeroK K
	var zeroV V
	rowType := reflect.TypeOf(zeroV)
	keyType := reflect.TypeOf(zeroK)

	desc := &tableDescriptor{
		tableName: name,
		rowType:   rowType,
		keyType:   keyType,
		columns:   make(map[string]dbsql.ColumnMeta),
	}

	if rowType != nil && rowType.Kind() == reflect.Struct {
		for i := 0; i < rowType.NumField(); i++ {
			f := rowType.Field(i)
			if !f.IsExported() {
				continue
			}
			col := &columnDescriptor{fieldName: f.Name, fieldType: f.Type}
			desc.columns[f.Name] = col
			desc.ordered = append(desc.ordered, col)
		}
	}

	if col, ok := desc.columns["Id"]; ok && keyType != nil && col.Type() == keyType {
		desc.keyColumn = "Id"
	}
	return desc
}

// meta returns t's cached schema metadata, building it on first use.
func (t *Table[K, V]) meta() *tableDescriptor {
	t.descriptorOnce.Do(func() {
		t.descriptor = buildTableDescriptor[K, V](t.name)
	})
	return t.descriptor
}
