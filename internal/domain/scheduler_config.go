package domain

import (
	"fmt"
)

// Algorithm identifies the interval growth sequence used by the scheduler.
type Algorithm string

// Supported scheduling algorithms
const (
	AlgorithmFibonacci Algorithm = "fibonacci"
)

// Scheduler configuration defaults, applied to newly created users.
const (
	DefaultMaxBins            = 7
	DefaultIntervalStartHours = 23
	DefaultAlgorithm          = AlgorithmFibonacci

	// MinMaxBins is the smallest bin count the state machine can operate with.
	MinMaxBins = 2
)

// ParseAlgorithm converts a string into an Algorithm, rejecting unknown identifiers.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(s); a {
	case AlgorithmFibonacci:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAlgorithm, s)
	}
}

// Valid reports whether a is a known algorithm.
func (a Algorithm) Valid() bool {
	_, err := ParseAlgorithm(string(a))
	return err == nil
}

// SchedulerConfig holds the per-user parameters of the Leitner scheduler.
// It is owned by the user profile and never modified by the scheduling engine.
type SchedulerConfig struct {
	MaxBins            int       `json:"maxBins"`
	Algorithm          Algorithm `json:"algorithm"`
	IntervalStartHours int       `json:"intervalStart"`
	// IntervalFactor stretches every interval; nil means 1.0.
	IntervalFactor *float64 `json:"intervalFactor,omitempty"`
}

// DefaultSchedulerConfig returns the configuration given to new users.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxBins:            DefaultMaxBins,
		Algorithm:          DefaultAlgorithm,
		IntervalStartHours: DefaultIntervalStartHours,
	}
}

// Factor returns the effective interval factor.
func (c SchedulerConfig) Factor() float64 {
	if c.IntervalFactor == nil {
		return 1.0
	}
	return *c.IntervalFactor
}

// Validate checks the invariants the scheduling engine relies on.
// The narrower ranges accepted from profile updates are enforced at the API boundary.
func (c SchedulerConfig) Validate() error {
	if c.MaxBins < MinMaxBins {
		return NewValidationError("maxBins", fmt.Sprintf("must be at least %d", MinMaxBins), nil)
	}
	if !c.Algorithm.Valid() {
		return NewValidationError("algorithm", "is not supported", ErrInvalidAlgorithm)
	}
	if c.IntervalStartHours <= 0 {
		return NewValidationError("intervalStart", "must be positive", nil)
	}
	if c.IntervalFactor != nil && *c.IntervalFactor <= 0 {
		return NewValidationError("intervalFactor", "must be positive", nil)
	}
	return nil
}

// TopBin returns the highest bin index allowed by the configuration.
func (c SchedulerConfig) TopBin() int {
	return c.MaxBins - 1
}
