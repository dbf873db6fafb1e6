package mocks

import (
	"context"

	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/service"
)

// MockSchedulerConfigService implements service.SchedulerConfigService for testing
type MockSchedulerConfigService struct {
	GetFn       func(ctx context.Context, userID int64) (domain.SchedulerConfig, error)
	UpdateFn    func(ctx context.Context, userID int64, update service.SchedulerConfigUpdate) (domain.SchedulerConfig, error)
	ProvisionFn func(ctx context.Context, userID int64) (domain.SchedulerConfig, bool, error)

	Config  domain.SchedulerConfig
	Created bool
	Err     error
}

var _ service.SchedulerConfigService = (*MockSchedulerConfigService)(nil)

// Get implements the service.SchedulerConfigService interface
func (m *MockSchedulerConfigService) Get(ctx context.Context, userID int64) (domain.SchedulerConfig, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, userID)
	}
	return m.Config, m.Err
}

// Update implements the service.SchedulerConfigService interface
func (m *MockSchedulerConfigService) Update(
	ctx context.Context,
	userID int64,
	update service.SchedulerConfigUpdate,
) (domain.SchedulerConfig, error) {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, userID, update)
	}
	return m.Config, m.Err
}

// Provision implements the service.SchedulerConfigService interface
func (m *MockSchedulerConfigService) Provision(ctx context.Context, userID int64) (domain.SchedulerConfig, bool, error) {
	if m.ProvisionFn != nil {
		return m.ProvisionFn(ctx, userID)
	}
	return m.Config, m.Created, m.Err
}
