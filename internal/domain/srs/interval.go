package srs

import (
	"fmt"
	"math"
	"time"

	"github.com/phrazzld/lexis-api/internal/domain"
)

// maxOffsetNanos is 2^63 as a float64; any product at or above it does not
// fit a time.Duration.
const maxOffsetNanos = float64(math.MaxInt64)

// Fibonacci returns fib(n) with fib(0)=0 and fib(1)=1.
// n is bounded by the configured bin count, so overflow is not a concern in practice.
func Fibonacci(n int) int64 {
	if n <= 0 {
		return 0
	}
	var a, b int64 = 0, 1
	for i := 1; i < n; i++ {
		a, b = b, a+b
	}
	return b
}

// growth returns the sequence multiplier for a bin under the given algorithm.
func growth(algorithm domain.Algorithm, bin int) (int64, error) {
	switch algorithm {
	case domain.AlgorithmFibonacci:
		return Fibonacci(bin + 2), nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
}

// Offset returns the time between a review and the next one for an item in bin:
//
//	intervalStart × fib(bin+2) × intervalFactor
//
// The smallest offset (bin 0) is intervalStart itself, and offsets grow
// strictly with the bin.
func Offset(bin int, cfg domain.SchedulerConfig) (time.Duration, error) {
	if err := cfg.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if bin < 0 || bin > cfg.TopBin() {
		return 0, fmt.Errorf("%w: bin %d outside [0, %d]", ErrInvalidState, bin, cfg.TopBin())
	}

	g, err := growth(cfg.Algorithm, bin)
	if err != nil {
		return 0, err
	}

	hours := float64(cfg.IntervalStartHours) * float64(g) * cfg.Factor()
	nanos := hours * float64(time.Hour)
	if math.IsNaN(nanos) || nanos >= maxOffsetNanos {
		return 0, fmt.Errorf("%w: %.0f hours for bin %d", ErrIntervalOverflow, hours, bin)
	}
	return time.Duration(nanos), nil
}

// NextReviewAt computes when an item in bin should next be reviewed,
// given the time of the review that put it there.
func NextReviewAt(bin int, lastReview time.Time, cfg domain.SchedulerConfig) (time.Time, error) {
	offset, err := Offset(bin, cfg)
	if err != nil {
		return time.Time{}, err
	}
	return lastReview.Add(offset), nil
}
