package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/lexis-api/internal/service/lesson"
)

// MockLessonService implements lesson.Service for testing
type MockLessonService struct {
	// CompleteFn overrides the default response when set
	CompleteFn func(ctx context.Context, req lesson.CompleteRequest) (*lesson.CompleteResult, error)

	// Default response values
	Result *lesson.CompleteResult
	Err    error

	// Call tracking for verification
	CompleteCalls struct {
		mu       sync.Mutex
		Count    int
		Requests []lesson.CompleteRequest
	}
}

var _ lesson.Service = (*MockLessonService)(nil)

// Complete implements the lesson.Service interface
func (m *MockLessonService) Complete(ctx context.Context, req lesson.CompleteRequest) (*lesson.CompleteResult, error) {
	m.CompleteCalls.mu.Lock()
	m.CompleteCalls.Count++
	m.CompleteCalls.Requests = append(m.CompleteCalls.Requests, req)
	m.CompleteCalls.mu.Unlock()

	if m.CompleteFn != nil {
		return m.CompleteFn(ctx, req)
	}
	return m.Result, m.Err
}

// LastRequest returns the most recent request passed to Complete.
func (m *MockLessonService) LastRequest() (lesson.CompleteRequest, bool) {
	m.CompleteCalls.mu.Lock()
	defer m.CompleteCalls.mu.Unlock()
	if len(m.CompleteCalls.Requests) == 0 {
		return lesson.CompleteRequest{}, false
	}
	return m.CompleteCalls.Requests[len(m.CompleteCalls.Requests)-1], true
}

// Reset clears the call tracking state
func (m *MockLessonService) Reset() {
	m.CompleteCalls.mu.Lock()
	m.CompleteCalls.Count = 0
	m.CompleteCalls.Requests = nil
	m.CompleteCalls.mu.Unlock()
}

// LessonOption configures a MockLessonService
type LessonOption func(*MockLessonService)

// WithCompleteResult sets the default result returned by Complete
func WithCompleteResult(result *lesson.CompleteResult) LessonOption {
	return func(m *MockLessonService) {
		m.Result = result
	}
}

// WithCompleteError sets the default error returned by Complete
func WithCompleteError(err error) LessonOption {
	return func(m *MockLessonService) {
		m.Err = err
	}
}

// NewMockLessonService creates a new MockLessonService with the given options
func NewMockLessonService(opts ...LessonOption) *MockLessonService {
	m := &MockLessonService{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}
