package domain

import (
	"time"
)

// User is the scheduler's view of a learner: an identity plus the
// scheduling parameters chosen in their profile.
type User struct {
	ID              int64           `json:"id"`
	SchedulerConfig SchedulerConfig `json:"schedulerConfig"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Validate checks if the User has valid data.
func (u *User) Validate() error {
	if u.ID <= 0 {
		return NewValidationError("userId", "must be positive", ErrInvalidID)
	}
	return u.SchedulerConfig.Validate()
}
