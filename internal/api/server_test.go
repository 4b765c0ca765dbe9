package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapseek/internal/history"
)

type brokenHistory struct{}

func (brokenHistory) List(context.Context) ([]history.Entry, error) {
	return nil, errors.New("database is locked")
}
func (brokenHistory) Clear(context.Context) error { return errors.New("database is locked") }

func newServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	cfg.Logger = log.New(io.Discard, "", 0)
	return New(cfg)
}

func do(t *testing.T, s *Server, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestPing(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := newServer(t, Config{Clock: func() time.Time { return now }})
	now = now.Add(90 * time.Second)
	rec := do(t, s, http.MethodGet, "/ping", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "1m30s", body["uptime"])
}

func TestHistoryListAndClear(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "h.db"), 10)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, history.NewEntry("/d/a.png", "https://x/a", time.UnixMilli(1))))
	require.NoError(t, store.Append(ctx, history.NewEntry("/d/b.jpg", "https://x/b", time.UnixMilli(2))))

	s := newServer(t, Config{History: store})
	rec := do(t, s, http.MethodGet, "/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	var entries []history.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "b.jpg", entries[0].Filename, "newest first")

	rec = do(t, s, http.MethodDelete, "/history", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, s, http.MethodGet, "/history", nil)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestHistoryErrors(t *testing.T) {
	s := newServer(t, Config{History: brokenHistory{}})
	rec := do(t, s, http.MethodGet, "/history", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "database is locked")
	rec = do(t, s, http.MethodDelete, "/history", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNoDownloadRoute(t *testing.T) {
	s := newServer(t, Config{})
	req := httptest.NewRequest(http.MethodPost, "/download", strings.NewReader(`{"sourceUrl":"https://x/a.png"}`))
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, "/history", strings.NewReader(`{}`))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
