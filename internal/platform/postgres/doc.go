// Package postgres provides PostgreSQL-specific implementations for the data
// storage interfaces defined in the internal/store package.
//
// Stores accept a store.DBTX so the same code runs against a *sql.DB or a
// *sql.Tx; Transactor binds all of them to one transaction. Rows read for a
// read-modify-write are locked with SELECT ... FOR UPDATE. The schema is
// managed by goose migrations embedded in the binary.
package postgres
