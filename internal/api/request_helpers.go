package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/phrazzld/lexis-api/internal/api/shared"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
)

// Candidate list bounds for GET /api/lessons/candidates.
const (
	DefaultCandidateLimit = 20
	MaxCandidateLimit     = 200
)

// getUserIDFromContext extracts the authenticated user's id from the request
// context, where the authentication middleware placed it.
func getUserIDFromContext(r *http.Request) (int64, bool) {
	return shared.UserIDFromContext(r.Context())
}

// requireUserID returns the authenticated user id or writes a 401 response.
func requireUserID(w http.ResponseWriter, r *http.Request, log *slog.Logger) (int64, bool) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		log.Warn("user ID not found or invalid in request context")
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return 0, false
	}
	return userID, true
}

// getLanguage reads the required language query parameter.
func getLanguage(r *http.Request) (string, error) {
	lang := strings.TrimSpace(r.URL.Query().Get("language"))
	if lang == "" {
		return "", domain.NewValidationError("language", "is required", nil)
	}
	return lang, nil
}

// getAsOf reads the optional as_of query parameter (RFC 3339). now is used
// when the parameter is absent.
func getAsOf(r *http.Request, now func() time.Time) (time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, domain.NewValidationError("as_of", "must be an RFC 3339 timestamp", nil)
	}
	return t.UTC(), nil
}

// getLimit reads the optional limit query parameter.
func getLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return DefaultCandidateLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > MaxCandidateLimit {
		return 0, domain.NewValidationError("limit", "must be between 1 and "+strconv.Itoa(MaxCandidateLimit), nil)
	}
	return limit, nil
}

func logFromRequest(r *http.Request, fallback *slog.Logger) *slog.Logger {
	return logger.FromContextOrDefault(r.Context(), fallback)
}
