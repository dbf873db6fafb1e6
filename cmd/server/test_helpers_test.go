package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/phrazzld/lexis-api/internal/config"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-secret-that-is-at-least-32-characters"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:            8080,
			LogLevel:        "debug",
			ShutdownTimeout: 5 * time.Second,
		},
		Database: config.DatabaseConfig{
			Driver:       config.DriverMemory,
			MaxOpenConns: 1,
		},
		Auth: config.AuthConfig{JWTSecret: testJWTSecret},
		Scheduler: config.SchedulerConfig{
			CompletionTimeout:    5 * time.Second,
			DefaultMaxBins:       7,
			DefaultIntervalStart: 23,
		},
	}
}

// testServer is an application on the memory backend behind an httptest server.
type testServer struct {
	t   *testing.T
	app *application
	srv *httptest.Server
	buf *logger.TestLogBuffer
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()

	buf, log := logger.NewTestLogger(t)
	app, err := newApplication(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(app.cleanup)

	srv := httptest.NewServer(app.setupRouter())
	t.Cleanup(srv.Close)

	return &testServer{t: t, app: app, srv: srv, buf: buf}
}

// seedItems adds catalog items in the given language.
func (ts *testServer) seedItems(lang string, ids ...int64) {
	ts.t.Helper()
	items := ts.app.backend.Stores().Items
	for _, id := range ids {
		require.NoError(ts.t, items.Create(context.Background(), &domain.VocabularyItem{
			ID:           id,
			LanguageCode: lang,
			Lemma:        "lemma",
		}))
	}
}

func (ts *testServer) token(userID int64) string {
	ts.t.Helper()
	tok, err := ts.app.jwtService.GenerateToken(context.Background(), userID, time.Hour)
	require.NoError(ts.t, err)
	return tok
}

// do sends a request as userID (0 means unauthenticated) and returns the
// status code and raw body.
func (ts *testServer) do(method, path string, userID int64, body any) (int, []byte) {
	ts.t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(ts.t, err)
			reader = bytes.NewReader(raw)
		}
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	require.NoError(ts.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID > 0 {
		req.Header.Set("Authorization", "Bearer "+ts.token(userID))
	}

	resp, err := ts.srv.Client().Do(req)
	require.NoError(ts.t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(ts.t, err)
	return resp.StatusCode, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}
