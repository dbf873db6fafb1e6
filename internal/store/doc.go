// Package store defines the persistence boundary of the scheduler.
//
// Interfaces here abstract the underlying storage from the scheduling rules.
// Writes that must be atomic are grouped through a Transactor, which hands a
// unit of work a Stores value whose members all share one transaction.
package store
