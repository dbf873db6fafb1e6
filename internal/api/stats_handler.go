package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/lexis-api/internal/api/shared"
	"github.com/phrazzld/lexis-api/internal/service/dueset"
)

// StatsHandler serves review statistics.
type StatsHandler struct {
	dueSet dueset.Service
	now    func() time.Time
	logger *slog.Logger
}

// NewStatsHandler creates a new StatsHandler
func NewStatsHandler(dueSet dueset.Service, logger *slog.Logger) *StatsHandler {
	if dueSet == nil {
		panic("due-set service cannot be nil for StatsHandler")
	}
	if logger == nil {
		panic("logger cannot be nil for StatsHandler")
	}
	return &StatsHandler{
		dueSet: dueSet,
		now:    time.Now,
		logger: logger.With(slog.String("component", "stats_handler")),
	}
}

// GetDueStats handles GET /api/stats/due.
// It returns due and not-due counts per bin for one language.
func (h *StatsHandler) GetDueStats(w http.ResponseWriter, r *http.Request) {
	log := logFromRequest(r, h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	q, err := parseDueQuery(r, userID, h.now)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	summary, err := h.dueSet.Classify(r.Context(), q)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to compute due statistics")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, summary)
}
