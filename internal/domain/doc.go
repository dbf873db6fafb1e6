// Package domain contains the core business entities of the vocabulary
// scheduler: users and their scheduler configuration, vocabulary items,
// per-item review states, lessons and the immutable exercise records that
// drive review-state transitions.
//
// Entities here carry validation but no persistence or scheduling logic.
// The scheduling rules themselves live in the srs subpackage.
package domain
