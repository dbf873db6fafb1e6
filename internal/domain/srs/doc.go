// Package srs implements the Leitner-box spaced repetition rules.
//
// NextBin moves an item between bins according to an exercise result,
// Offset and NextReviewAt turn a bin into a review interval, and Classify
// partitions review states into due and not-due sets. Everything here is
// pure: no I/O, no clocks, no shared state.
package srs
