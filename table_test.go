package stereodb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	Id    int
	Name  string
	Group string
}

func widgetSchema() (*Engine[widgetSchemaS], *ValueIndex[string, int, widget]) {
	var byGroup *ValueIndex[string, int, widget]
	engine, err := NewEngine(func() widgetSchemaS {
		t := NewTable[int, widget]("Widgets", func(w widget) int { return w.Id })
		idx, err := AddValueIndex(t, "by_group", func(w widget) string { return w.Group })
		if err != nil {
			panic(err)
		}
		byGroup = idx
		return widgetSchemaS{Widgets: t}
	})
	if err != nil {
		panic(err)
	}
	return engine, byGroup
}

type widgetSchemaS struct {
	Widgets *Table[int, widget]
}

func TestTable_SetGetDelete(t *testing.T) {
	engine, _ := widgetSchema()

	err := engine.Write(func(wc *WriteContext[widgetSchemaS]) error {
		h := UseMutableTable(wc, wc.Schema().Widgets)
		return h.Set(widget{Id: 1, Name: "first", Group: "a"})
	})
	require.NoError(t, err)

	err = engine.Read(func(rc *ReadContext[widgetSchemaS]) error {
		h := UseTable(rc, rc.Schema().Widgets)
		v, ok := h.Get(1)
		assert.True(t, ok)
		assert.Equal(t, "first", v.Name)

		_, ok = h.Get(2)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)

	err = engine.Write(func(wc *WriteContext[widgetSchemaS]) error {
		h := UseMutableTable(wc, wc.Schema().Widgets)
		return h.Delete(1)
	})
	require.NoError(t, err)

	err = engine.Read(func(rc *ReadContext[widgetSchemaS]) error {
		h := UseTable(rc, rc.Schema().Widgets)
		_, ok := h.Get(1)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestTable_ReadOnlyViolation(t *testing.T) {
	engine, _ := widgetSchema()

	err := engine.Read(func(rc *ReadContext[widgetSchemaS]) error {
		h := UseTable(rc, rc.Schema().Widgets)
		return h.Set(widget{Id: 1})
	})
	require.Error(t, err)

	var violation *ReadOnlyViolation
	assert.ErrorAs(t, err, &violation)
}

func TestTable_GetIdsOrderIsStableWithinTransaction(t *testing.T) {
	engine, _ := widgetSchema()

	err := engine.Write(func(wc *WriteContext[widgetSchemaS]) error {
		h := UseMutableTable(wc, wc.Schema().Widgets)
		for _, id := range []int{3, 1, 2} {
			if err := h.Set(widget{Id: id}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	err = engine.Read(func(rc *ReadContext[widgetSchemaS]) error {
		h := UseTable(rc, rc.Schema().Widgets)
		var seen []int
		for id := range h.GetIds() {
			seen = append(seen, id)
		}
		assert.Equal(t, []int{3, 1, 2}, seen)
		return nil
	})
	require.NoError(t, err)
}

func TestTable_SetReplacesRowWhollyAndMaintainsIndex(t *testing.T) {
	engine, byGroup := widgetSchema()

	err := engine.Write(func(wc *WriteContext[widgetSchemaS]) error {
		h := UseMutableTable(wc, wc.Schema().Widgets)
		return h.Set(widget{Id: 1, Name: "first", Group: "a"})
	})
	require.NoError(t, err)

	err = engine.Write(func(wc *WriteContext[widgetSchemaS]) error {
		h := UseMutableTable(wc, wc.Schema().Widgets)
		return h.Set(widget{Id: 1, Name: "second", Group: "b"})
	})
	require.NoError(t, err)

	err = engine.Read(func(rc *ReadContext[widgetSchemaS]) error {
		h := UseTable(rc, rc.Schema().Widgets)
		assert.Empty(t, byGroup.Find(h, "a"))
		found := byGroup.Find(h, "b")
		require.Len(t, found, 1)
		assert.Equal(t, "second", found[0].Name)
		return nil
	})
	require.NoError(t, err)
}

func TestTable_FailedWriteTransactionLeavesNoTrace(t *testing.T) {
	engine, _ := widgetSchema()

	err := engine.Write(func(wc *WriteContext[widgetSchemaS]) error {
		h := UseMutableTable(wc, wc.Schema().Widgets)
		if err := h.Set(widget{Id: 1}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	var cbErr *CallbackFailure
	require.ErrorAs(t, err, &cbErr)

	err = engine.Read(func(rc *ReadContext[widgetSchemaS]) error {
		h := UseTable(rc, rc.Schema().Widgets)
		_, ok := h.Get(1)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}
