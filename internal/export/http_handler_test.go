package export

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/tripsync/internal/domain"
	"github.com/rpattn/tripsync/internal/transform"
)

func TestHandlerListsAndServesExportFiles(t *testing.T) {
	dir := t.TempDir()
	service := NewService(transform.NewPipeline(domain.Profile{}), nil, WithExportDirectory(dir), WithClock(fixedNow))
	_, err := service.Process(context.Background(), trips(t, `{"id": 1, "status": "Active"}`))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	handler := NewHTTPHandler(service)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/exports", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Files []FileInfo `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Files, 1)
	assert.Equal(t, "trip_tickets.2024-05-01.200405.csv", body.Files[0].Name)
	assert.Equal(t, string(domain.KindTripTicket), body.Files[0].Kind)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/exports/files/trip_tickets.2024-05-01.200405.csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "id,status")
}

func TestHandlerRefusesNonExportFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secrets.csv"), []byte("x"), 0o644))
	handler := NewHTTPHandler(NewService(transform.NewPipeline(domain.Profile{}), nil, WithExportDirectory(dir)))

	for _, path := range []string{"/exports/files/secrets.csv", "/exports/files/trip_tickets.missing.csv", "/exports/files/"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.NotEqual(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/exports", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerReportsMissingFolder(t *testing.T) {
	handler := NewHTTPHandler(NewService(transform.NewPipeline(domain.Profile{}), nil))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/exports", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}
