package srs

import (
	"errors"
	"fmt"
	"time"

	"github.com/phrazzld/lexis-api/internal/domain"
)

// Common errors
var (
	ErrNilState         = errors.New("review state cannot be nil")
	ErrInvalidResult    = domain.ErrInvalidExerciseResult
	ErrInvalidState     = domain.ErrBinOutOfRange
	ErrInvalidConfig    = errors.New("invalid scheduler config")
	ErrUnknownAlgorithm = domain.ErrInvalidAlgorithm
	ErrIntervalOverflow = errors.New("review interval overflows")
	ErrReviewOutOfOrder = errors.New("review precedes the last recorded review")
)

// Service applies exercise outcomes to review states.
type Service interface {
	// Apply returns the state that results from one exercise finishing at reviewedAt.
	// The input state is not modified. A reviewedAt before the state's last
	// review fails with ErrReviewOutOfOrder; schedules only move forward.
	Apply(
		state *domain.ReviewState,
		result domain.ExerciseResult,
		reviewedAt time.Time,
		cfg domain.SchedulerConfig,
	) (*domain.ReviewState, error)
}

// defaultService is the standard implementation of the Service interface
type defaultService struct{}

// NewDefaultService creates a new SRS service.
func NewDefaultService() Service {
	return &defaultService{}
}

// Apply implements Service.Apply by running the state machine and
// recomputing the next review from the new bin.
func (s *defaultService) Apply(
	state *domain.ReviewState,
	result domain.ExerciseResult,
	reviewedAt time.Time,
	cfg domain.SchedulerConfig,
) (*domain.ReviewState, error) {
	if state == nil {
		return nil, ErrNilState
	}
	if state.LastReviewTime != nil && reviewedAt.Before(*state.LastReviewTime) {
		return nil, fmt.Errorf("%w: item %d reviewed at %s, last review %s", ErrReviewOutOfOrder,
			state.ItemID, reviewedAt.UTC().Format(time.RFC3339), state.LastReviewTime.UTC().Format(time.RFC3339))
	}

	bin, err := NextBin(state.Bin, result, cfg.MaxBins)
	if err != nil {
		return nil, err
	}

	next, err := NextReviewAt(bin, reviewedAt, cfg)
	if err != nil {
		return nil, err
	}

	newState := state.Clone()
	newState.Bin = bin
	last := reviewedAt
	newState.LastReviewTime = &last
	newState.NextReviewAt = &next
	newState.UpdatedAt = reviewedAt

	return newState, nil
}
