// Package lesson implements lesson completion: the single transactional
// entry point that turns the exercises of one learning session into
// persisted exercise records and recomputed review schedules.
//
// A completion either applies entirely or leaves no trace. Completions of
// the same user serialize on the user's row lock; review states are
// additionally written under a version guard so no update can be lost.
package lesson
