package domain

// VocabularyItem is the read-only catalog view of a lemma.
// The catalog itself is maintained elsewhere; the scheduler only resolves
// item ids and filters by language.
type VocabularyItem struct {
	ID           int64  `json:"id"`
	LanguageCode string `json:"languageCode"`
	Lemma        string `json:"lemma"`
}
