package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
	"github.com/phrazzld/lexis-api/internal/store"
)

const (
	opGetSchedulerConfig    = "get_scheduler_config"
	opUpdateSchedulerConfig = "update_scheduler_config"
	opProvisionUser         = "provision_user"
)

// SchedulerConfigUpdate is a profile update of the scheduling parameters.
// The accepted ranges are narrower than what the engine can operate with.
type SchedulerConfigUpdate struct {
	MaxBins        int      `validate:"min=5,max=20"`
	Algorithm      string   `validate:"required,oneof=fibonacci"`
	IntervalStart  int      `validate:"min=1,max=24"`
	IntervalFactor *float64 `validate:"omitempty,gt=0,lte=10"`
}

// SchedulerConfigService reads and updates users' scheduler configuration.
type SchedulerConfigService interface {
	// Get returns the user's current configuration.
	Get(ctx context.Context, userID int64) (domain.SchedulerConfig, error)

	// Update validates and stores a new configuration. A maxBins that would
	// leave any of the user's review states above the top bin is rejected
	// with ErrValidation.
	Update(ctx context.Context, userID int64, update SchedulerConfigUpdate) (domain.SchedulerConfig, error)

	// Provision creates the user with the default configuration if it does
	// not exist yet. It reports whether the user was created.
	Provision(ctx context.Context, userID int64) (domain.SchedulerConfig, bool, error)
}

// SchedulerConfigServiceImpl implements the SchedulerConfigService interface
type SchedulerConfigServiceImpl struct {
	tx        store.Transactor
	users     store.UserStore
	defaults  domain.SchedulerConfig
	validator *validator.Validate
	logger    *slog.Logger
}

var _ SchedulerConfigService = (*SchedulerConfigServiceImpl)(nil)

// NewSchedulerConfigService creates a new SchedulerConfigService. Updates run
// through tx; reads and provisioning use users directly. defaults is the
// configuration given to provisioned users.
func NewSchedulerConfigService(
	tx store.Transactor,
	users store.UserStore,
	defaults domain.SchedulerConfig,
	logger *slog.Logger,
) *SchedulerConfigServiceImpl {
	if tx == nil {
		panic("transactor cannot be nil")
	}
	if users == nil {
		panic("users store cannot be nil")
	}
	if err := defaults.Validate(); err != nil {
		panic(fmt.Sprintf("invalid default scheduler config: %v", err))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SchedulerConfigServiceImpl{
		tx:        tx,
		users:     users,
		defaults:  defaults,
		validator: validator.New(),
		logger:    logger.With(slog.String("component", "scheduler_config_service")),
	}
}

// Get implements SchedulerConfigService.Get.
func (s *SchedulerConfigServiceImpl) Get(ctx context.Context, userID int64) (domain.SchedulerConfig, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.logStoreError(ctx, "failed to retrieve user", userID, err)
		return domain.SchedulerConfig{}, Wrap(opGetSchedulerConfig, err)
	}
	return user.SchedulerConfig, nil
}

// Update implements SchedulerConfigService.Update.
func (s *SchedulerConfigServiceImpl) Update(
	ctx context.Context,
	userID int64,
	update SchedulerConfigUpdate,
) (domain.SchedulerConfig, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := s.validator.Struct(update); err != nil {
		return domain.SchedulerConfig{}, NewServiceError(opUpdateSchedulerConfig, ErrValidation, "invalid scheduler config", err)
	}
	algorithm, err := domain.ParseAlgorithm(update.Algorithm)
	if err != nil {
		return domain.SchedulerConfig{}, NewServiceError(opUpdateSchedulerConfig, ErrValidation, "unsupported algorithm", err)
	}
	cfg := domain.SchedulerConfig{
		MaxBins:            update.MaxBins,
		Algorithm:          algorithm,
		IntervalStartHours: update.IntervalStart,
		IntervalFactor:     update.IntervalFactor,
	}
	if err := cfg.Validate(); err != nil {
		return domain.SchedulerConfig{}, NewServiceError(opUpdateSchedulerConfig, ErrValidation, "invalid scheduler config", err)
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, st store.Stores) error {
		if _, err := st.Users.GetForUpdate(ctx, userID); err != nil {
			return err
		}
		top, err := st.ReviewStates.MaxBin(ctx, userID)
		if err != nil {
			return fmt.Errorf("find highest bin: %w", err)
		}
		if top > cfg.TopBin() {
			return NewServiceError(opUpdateSchedulerConfig, ErrValidation,
				fmt.Sprintf("maxBins must be at least %d: review states already reach bin %d", top+1, top),
				domain.ErrBinOutOfRange)
		}
		return st.Users.UpdateSchedulerConfig(ctx, userID, cfg)
	})
	if err != nil {
		var se *ServiceError
		if !errors.As(err, &se) {
			s.logStoreError(ctx, "failed to update scheduler config", userID, err)
		}
		return domain.SchedulerConfig{}, Wrap(opUpdateSchedulerConfig, err)
	}

	log.Info("scheduler config updated",
		slog.Int64("user_id", userID),
		slog.Int("max_bins", cfg.MaxBins),
		slog.Int("interval_start", cfg.IntervalStartHours))
	return cfg, nil
}

// Provision implements SchedulerConfigService.Provision.
func (s *SchedulerConfigServiceImpl) Provision(ctx context.Context, userID int64) (domain.SchedulerConfig, bool, error) {
	user := &domain.User{ID: userID, SchedulerConfig: s.defaults}
	err := s.users.Create(ctx, user)
	switch {
	case err == nil:
		logger.FromContextOrDefault(ctx, s.logger).Info("user provisioned", slog.Int64("user_id", userID))
		return s.defaults, true, nil
	case errors.Is(err, store.ErrUserExists):
		cfg, err := s.Get(ctx, userID)
		return cfg, false, err
	case domain.IsValidationError(err):
		return domain.SchedulerConfig{}, false, NewServiceError(opProvisionUser, ErrValidation, "invalid user id", err)
	default:
		s.logStoreError(ctx, "failed to provision user", userID, err)
		return domain.SchedulerConfig{}, false, Wrap(opProvisionUser, err)
	}
}

// logStoreError logs a store failure; unknown users are an expected outcome
// and stay at debug level.
func (s *SchedulerConfigServiceImpl) logStoreError(ctx context.Context, msg string, userID int64, err error) {
	level := slog.LevelError
	if errors.Is(err, store.ErrUserNotFound) {
		level = slog.LevelDebug
	}
	logger.FromContextOrDefault(ctx, s.logger).Log(ctx, level, msg,
		slog.Int64("user_id", userID),
		slog.String("error", err.Error()))
}
