package srs

import (
	"fmt"

	"github.com/phrazzld/lexis-api/internal/domain"
)

// NextBin is the Leitner state machine: it returns the bin an item moves to
// after one exercise.
//
//   - success advances one bin, saturating at the top bin (maxBins-1)
//   - fail demotes to bin 0
//   - hint leaves the bin unchanged
//
// A current bin outside [0, maxBins-1] means the persisted state is corrupt;
// NextBin reports ErrInvalidState instead of clamping it.
func NextBin(bin int, result domain.ExerciseResult, maxBins int) (int, error) {
	if maxBins < domain.MinMaxBins {
		return 0, fmt.Errorf("%w: maxBins %d", ErrInvalidConfig, maxBins)
	}
	if bin < 0 || bin > maxBins-1 {
		return 0, fmt.Errorf("%w: bin %d outside [0, %d]", ErrInvalidState, bin, maxBins-1)
	}

	switch result {
	case domain.ExerciseResultSuccess:
		return min(bin+1, maxBins-1), nil
	case domain.ExerciseResultFail:
		return 0, nil
	case domain.ExerciseResultHint:
		return bin, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidResult, result)
	}
}
