package sql

import (
	"fmt"
	"strings"
)

// ExplainSelect describes the shape a SELECT statement would compile to:
// the source table, whether a predicate is present, and the projected
// columns — nothing about cost, since there is no optimizer to cost
// anything (the planner always does a full GetIds() scan).
func ExplainSelect(stmt Statement, schema Schema) (string, error) {
	sel, ok := stmt.(*SelectStatement)
	if !ok {
		return "", &NotImplemented{Feature: "ExplainSelect for a non-SELECT statement"}
	}

	var b strings.Builder
	if sel.From == "" {
		b.WriteString("scan <none>")
	} else {
		if _, ok := schema.Table(sel.From); !ok {
			return "", &UnknownTable{Name: sel.From}
		}
		fmt.Fprintf(&b, "scan %s", sel.From)
	}

	if sel.Where != nil {
		b.WriteString(" filter(predicate)")
	}

	b.WriteString(" project(")
	for i, col := range sel.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		name := col.Alias
		if name == "" {
			if id, ok := col.Expr.(*Ident); ok {
				name = id.Name
			} else {
				name = "<expr>"
			}
		}
		b.WriteString(name)
	}
	b.WriteString(")")

	return b.String(), nil
}
