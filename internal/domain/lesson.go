package domain

import (
	"fmt"
	"time"
)

// LessonKind selects which items a lesson draws from.
type LessonKind string

// Possible lesson kinds
const (
	LessonKindNew     LessonKind = "new"
	LessonKindLearned LessonKind = "learned"
	LessonKindAll     LessonKind = "all"
)

// ParseLessonKind converts a string into a LessonKind.
func ParseLessonKind(s string) (LessonKind, error) {
	switch k := LessonKind(s); k {
	case LessonKindNew, LessonKindLearned, LessonKindAll:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidLessonKind, s)
	}
}

// Lesson groups the exercises of one learning session.
// Lessons are created by the lesson generator; once CompletedAt is set the
// lesson's exercise set is frozen.
type Lesson struct {
	ID               int64      `json:"id"`
	UserID           int64      `json:"userId"`
	LearningLanguage string     `json:"learningLanguage"`
	Kind             LessonKind `json:"kind"`
	StartTime        time.Time  `json:"startTime"`
	EndTime          *time.Time `json:"endTime,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

// IsCompleted reports whether the lesson no longer accepts exercises.
func (l *Lesson) IsCompleted() bool {
	return l.CompletedAt != nil
}

// Complete freezes the lesson. lastEnd is the latest exercise end time and
// becomes the lesson end time unless one was already recorded.
func (l *Lesson) Complete(lastEnd, now time.Time) {
	if l.EndTime == nil {
		end := lastEnd
		l.EndTime = &end
	}
	completed := now
	l.CompletedAt = &completed
}
