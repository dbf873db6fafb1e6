// Package dueset answers read-only questions about which of a user's items
// are due for review: per-bin statistics and lesson candidates.
package dueset

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/domain/srs"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
	"github.com/phrazzld/lexis-api/internal/service"
	"github.com/phrazzld/lexis-api/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	opClassify   = "classify_due"
	opCandidates = "due_candidates"
)

var tracer = otel.Tracer("lexis/dueset")

// queriesTotal counts due-set queries by operation and outcome
var queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lexis_dueset_queries_total",
	Help: "Due-set queries by operation and outcome",
}, []string{"operation", "outcome"})

// Query identifies the items to classify.
type Query struct {
	UserID       int64
	LanguageCode string
	AsOf         time.Time
}

// Service classifies a user's review states as due or not due.
// Calls take no locks and write nothing, so identical inputs yield identical
// outputs while no completion intervenes.
type Service interface {
	// Classify returns due and not-due counts for every bin of the user's
	// configured range.
	Classify(ctx context.Context, q Query) (*domain.DueSummary, error)

	// DueCandidates returns up to limit due item ids, most overdue first.
	DueCandidates(ctx context.Context, q Query, limit int) ([]int64, error)
}

type serviceImpl struct {
	users  store.UserStore
	states store.ReviewStateStore
	logger *slog.Logger
}

// NewService creates a due-set service reading from the given stores.
func NewService(users store.UserStore, states store.ReviewStateStore, logger *slog.Logger) Service {
	if users == nil {
		panic("users store cannot be nil")
	}
	if states == nil {
		panic("review state store cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &serviceImpl{
		users:  users,
		states: states,
		logger: logger.With(slog.String("component", "dueset_service")),
	}
}

// Classify implements Service.Classify.
func (s *serviceImpl) Classify(ctx context.Context, q Query) (*domain.DueSummary, error) {
	ctx, span := startSpan(ctx, "dueset.Classify", q)
	defer span.End()

	cfg, states, err := s.load(ctx, opClassify, q)
	if err != nil {
		return nil, s.fail(ctx, span, opClassify, err)
	}

	bins, err := srs.Classify(states, cfg.MaxBins, q.AsOf)
	if err != nil {
		return nil, s.fail(ctx, span, opClassify, err)
	}

	summary := &domain.DueSummary{
		UserID:       q.UserID,
		LanguageCode: q.LanguageCode,
		AsOf:         q.AsOf,
		Bins:         bins,
	}
	for _, b := range bins {
		summary.TotalDue += b.Due
		summary.TotalNotDue += b.NotDue
	}

	queriesTotal.WithLabelValues(opClassify, "ok").Inc()
	span.SetStatus(codes.Ok, "")
	logger.FromContextOrDefault(ctx, s.logger).Debug("classified due items",
		slog.Int64("user_id", q.UserID),
		slog.String("language", q.LanguageCode),
		slog.Int("due", summary.TotalDue),
		slog.Int("not_due", summary.TotalNotDue))
	return summary, nil
}

// DueCandidates implements Service.DueCandidates.
func (s *serviceImpl) DueCandidates(ctx context.Context, q Query, limit int) ([]int64, error) {
	ctx, span := startSpan(ctx, "dueset.DueCandidates", q)
	defer span.End()

	if limit <= 0 {
		return nil, s.fail(ctx, span, opCandidates,
			service.NewServiceError(opCandidates, service.ErrValidation, "limit must be positive", nil))
	}
	cfg, states, err := s.load(ctx, opCandidates, q)
	if err != nil {
		return nil, s.fail(ctx, span, opCandidates, err)
	}
	for _, st := range states {
		if err := st.CheckBin(cfg.MaxBins); err != nil {
			return nil, s.fail(ctx, span, opCandidates, err)
		}
	}

	ids := srs.DueItems(states, q.AsOf, limit)
	queriesTotal.WithLabelValues(opCandidates, "ok").Inc()
	span.SetStatus(codes.Ok, "")
	return ids, nil
}

// load validates the query and reads the user's config and states.
func (s *serviceImpl) load(
	ctx context.Context,
	op string,
	q Query,
) (domain.SchedulerConfig, []*domain.ReviewState, error) {
	if q.UserID <= 0 {
		return domain.SchedulerConfig{}, nil,
			service.NewServiceError(op, service.ErrValidation, "userId must be positive", domain.ErrInvalidID)
	}
	if strings.TrimSpace(q.LanguageCode) == "" {
		return domain.SchedulerConfig{}, nil,
			service.NewServiceError(op, service.ErrValidation, "language code is required", nil)
	}
	if q.AsOf.IsZero() {
		return domain.SchedulerConfig{}, nil,
			service.NewServiceError(op, service.ErrValidation, "reference time is required", nil)
	}

	user, err := s.users.GetByID(ctx, q.UserID)
	if err != nil {
		return domain.SchedulerConfig{}, nil, fmt.Errorf("get user: %w", err)
	}
	states, err := s.states.ListByUserLanguage(ctx, q.UserID, q.LanguageCode)
	if err != nil {
		return domain.SchedulerConfig{}, nil, fmt.Errorf("list review states: %w", err)
	}
	return user.SchedulerConfig, states, nil
}

func (s *serviceImpl) fail(ctx context.Context, span trace.Span, op string, err error) error {
	err = service.Wrap(op, err)
	category := service.Category(err)
	queriesTotal.WithLabelValues(op, outcome(category)).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome(category))

	log := logger.FromContextOrDefault(ctx, s.logger)
	if category == service.ErrInvalidState || category == service.ErrPersistence {
		log.Error("due-set query failed", slog.String("operation", op), slog.String("error", err.Error()))
	} else {
		log.Debug("due-set query rejected", slog.String("operation", op), slog.String("error", err.Error()))
	}
	return err
}

func outcome(category error) string {
	switch category {
	case service.ErrValidation:
		return "validation"
	case service.ErrNotFound:
		return "not_found"
	case service.ErrInvalidState:
		return "invalid_state"
	default:
		return "persistence"
	}
}

func startSpan(ctx context.Context, name string, q Query) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int64("lexis.user_id", q.UserID),
		attribute.String("lexis.language", q.LanguageCode),
	))
}
