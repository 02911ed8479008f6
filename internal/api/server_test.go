package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadscope/internal/store"
	"github.com/threadscope/pkg/models"
)

func seedVerdicts(t *testing.T) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	st.AddThread(models.Message{ID: "t1"}, models.Message{ID: "t1-r1"})
	st.AddThread(models.Message{ID: "t2"}, models.Message{ID: "t2-r1"})
	require.NoError(t, st.UpsertVerdict(context.Background(), "t1", models.DriftVerdict{
		HasDrift: true,
		Topics:   []models.Topic{{Label: "billing"}},
		Status:   models.StatusAnalyzed,
	}))
	return st
}

func TestListVerdictsEndpoint(t *testing.T) {
	server := NewServer(0, nil, nil, seedVerdicts(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/verdicts?status=pending", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Verdicts []models.DriftVerdict `json:"verdicts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Verdicts, 1)
	assert.Equal(t, "t2", body.Verdicts[0].ThreadID)
	assert.Equal(t, models.StatusPending, body.Verdicts[0].Status)
}

func TestListVerdictsEndpointAll(t *testing.T) {
	server := NewServer(0, nil, nil, seedVerdicts(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/verdicts", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Verdicts []models.DriftVerdict `json:"verdicts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Verdicts, 2)
}

func TestListVerdictsEndpointBadStatus(t *testing.T) {
	server := NewServer(0, nil, nil, seedVerdicts(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/verdicts?status=bogus", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetVerdictEndpoint(t *testing.T) {
	server := NewServer(0, nil, nil, seedVerdicts(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/verdicts/t1", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var v models.DriftVerdict
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.True(t, v.HasDrift)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/verdicts/missing", nil)
	rec = httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
