// Package stereodb is an in-process, memory-resident key-value store for
// user-defined entity tables with optional secondary indexes. It exposes
// two transaction modes — parallel read-only snapshots and serialized
// read-write transactions — and publishes the effects of a write
// transaction atomically across every table and index it touched.
//
// A small SQL frontend (package sql, wired up here via ExecuteSql) compiles
// a closed dialect of SELECT and UPDATE against the same typed schema.
package stereodb
