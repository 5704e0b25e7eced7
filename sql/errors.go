package sql

import "fmt"

// ParseError reports a lexer or parser failure at a rune offset into the
// source query.
type ParseError struct {
	Position int
	Message  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("sql: parse error at position %d: %s", e.Position, e.Message)
}

// UnknownTable is returned when a FROM or UPDATE target names a table the
// schema does not have.
type UnknownTable struct {
	Name string
}

func (e *UnknownTable) Error() string {
	return fmt.Sprintf("sql: unknown table %q", e.Name)
}

// UnknownColumn is returned when a projected, filtered or assigned
// identifier does not name an attribute of the resolved table's row type.
type UnknownColumn struct {
	Table  string
	Column string
}

func (e *UnknownColumn) Error() string {
	return fmt.Sprintf("sql: table %q has no column %q", e.Table, e.Column)
}

// ColumnBindingError is returned when a result record field cannot be
// filled by any projected expression or same-named source attribute.
type ColumnBindingError struct {
	Field string
}

func (e *ColumnBindingError) Error() string {
	return fmt.Sprintf("sql: result field %q cannot be bound to a projected column", e.Field)
}

// NotImplemented is returned for grammar that parses but that this core
// does not compile: arithmetic in projection or SET value position.
type NotImplemented struct {
	Feature string
}

func (e *NotImplemented) Error() string {
	return fmt.Sprintf("sql: %s is not implemented", e.Feature)
}
