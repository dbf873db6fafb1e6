package mocks

import (
	"context"

	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/service/dueset"
)

// MockDueSetService implements dueset.Service for testing
type MockDueSetService struct {
	ClassifyFn      func(ctx context.Context, q dueset.Query) (*domain.DueSummary, error)
	DueCandidatesFn func(ctx context.Context, q dueset.Query, limit int) ([]int64, error)

	Summary    *domain.DueSummary
	Candidates []int64
	Err        error
}

var _ dueset.Service = (*MockDueSetService)(nil)

// Classify implements the dueset.Service interface
func (m *MockDueSetService) Classify(ctx context.Context, q dueset.Query) (*domain.DueSummary, error) {
	if m.ClassifyFn != nil {
		return m.ClassifyFn(ctx, q)
	}
	return m.Summary, m.Err
}

// DueCandidates implements the dueset.Service interface
func (m *MockDueSetService) DueCandidates(ctx context.Context, q dueset.Query, limit int) ([]int64, error) {
	if m.DueCandidatesFn != nil {
		return m.DueCandidatesFn(ctx, q, limit)
	}
	return m.Candidates, m.Err
}
