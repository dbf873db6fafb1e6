// Package memory is an in-process implementation of the store interfaces
// with the same transactional guarantees as the PostgreSQL backend: writes
// of a unit of work are staged and become visible together on commit, a
// user's units of work are serialized on a per-user lock, and review-state
// writes are guarded by their version.
//
// It backs the server when database.driver is "memory" and the service tests.
package memory
