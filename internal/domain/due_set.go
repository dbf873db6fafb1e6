package domain

import (
	"time"
)

// BinCount holds the due and not-due item counts of one bin.
type BinCount struct {
	Bin    int `json:"bin"`
	Due    int `json:"due"`
	NotDue int `json:"notDue"`
}

// DueSummary partitions a user's items for one language into due and not-due, per bin.
type DueSummary struct {
	UserID       int64      `json:"userId"`
	LanguageCode string     `json:"languageCode"`
	AsOf         time.Time  `json:"asOf"`
	Bins         []BinCount `json:"bins"`
	TotalDue     int        `json:"totalDue"`
	TotalNotDue  int        `json:"totalNotDue"`
}
