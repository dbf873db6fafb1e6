package srs

import (
	"sort"
	"time"

	"github.com/phrazzld/lexis-api/internal/domain"
)

// Classify partitions review states into due and not-due counts per bin.
// The result always has one entry per bin in [0, maxBins-1], ordered by bin.
// A state whose bin is outside that range is reported as ErrInvalidState.
func Classify(states []*domain.ReviewState, maxBins int, asOf time.Time) ([]domain.BinCount, error) {
	if maxBins < domain.MinMaxBins {
		return nil, ErrInvalidConfig
	}

	bins := make([]domain.BinCount, maxBins)
	for i := range bins {
		bins[i].Bin = i
	}

	for _, st := range states {
		if err := st.CheckBin(maxBins); err != nil {
			return nil, err
		}
		if st.IsDue(asOf) {
			bins[st.Bin].Due++
		} else {
			bins[st.Bin].NotDue++
		}
	}

	return bins, nil
}

// DueItems returns the ids of the due states, most overdue first.
// Never-scheduled items come before everything else; ties break on item id
// so the order is stable across calls. A limit <= 0 means no limit.
func DueItems(states []*domain.ReviewState, asOf time.Time, limit int) []int64 {
	due := make([]*domain.ReviewState, 0, len(states))
	for _, st := range states {
		if st.IsDue(asOf) {
			due = append(due, st)
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		a, b := due[i].NextReviewAt, due[j].NextReviewAt
		switch {
		case a == nil && b == nil:
			return due[i].ItemID < due[j].ItemID
		case a == nil:
			return true
		case b == nil:
			return false
		case !a.Equal(*b):
			return a.Before(*b)
		default:
			return due[i].ItemID < due[j].ItemID
		}
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	ids := make([]int64, len(due))
	for i, st := range due {
		ids[i] = st.ItemID
	}
	return ids
}
