package domain

import (
	"fmt"
	"time"
)

// ReviewState tracks a user's Leitner position for a single vocabulary item.
// NextReviewAt is only ever derived from Bin and LastReviewTime by a transition.
type ReviewState struct {
	UserID         int64      `json:"userId"`
	ItemID         int64      `json:"itemId"`
	Bin            int        `json:"bin"`
	LastReviewTime *time.Time `json:"lastReviewTime,omitempty"`
	NextReviewAt   *time.Time `json:"nextReviewAt,omitempty"`
	// Version increments on every persisted write and guards concurrent updates.
	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewReviewState creates the state of an item the user has never exercised.
// It is not persisted until the first transition is applied.
func NewReviewState(userID, itemID int64, now time.Time) *ReviewState {
	return &ReviewState{
		UserID:    userID,
		ItemID:    itemID,
		Bin:       0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsNew reports whether the state has never been persisted.
func (s *ReviewState) IsNew() bool {
	return s.Version == 0
}

// Clone returns a deep copy of the state.
func (s *ReviewState) Clone() *ReviewState {
	c := *s
	if s.LastReviewTime != nil {
		t := *s.LastReviewTime
		c.LastReviewTime = &t
	}
	if s.NextReviewAt != nil {
		t := *s.NextReviewAt
		c.NextReviewAt = &t
	}
	return &c
}

// CheckBin verifies the bin lies inside the configured range.
func (s *ReviewState) CheckBin(maxBins int) error {
	if s.Bin < 0 || s.Bin > maxBins-1 {
		return fmt.Errorf("%w: item %d has bin %d, allowed [0, %d]",
			ErrBinOutOfRange, s.ItemID, s.Bin, maxBins-1)
	}
	return nil
}

// IsDue reports whether the item should be reviewed at asOf.
// Items that were never scheduled are due immediately.
func (s *ReviewState) IsDue(asOf time.Time) bool {
	return s.NextReviewAt == nil || !s.NextReviewAt.After(asOf)
}
