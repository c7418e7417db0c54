package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/agrimet-labs/climate-hazard-etl/internal/adapter/http"
	"github.com/agrimet-labs/climate-hazard-etl/internal/manifest"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockBatches struct {
	counts manifest.Counts
	err    error
}

func (m *mockBatches) Status(_ context.Context, _ string) (manifest.Counts, error) {
	return m.counts, m.err
}

func newTestServer(readyErr error, batches *mockBatches) *httpadapter.Server {
	if batches == nil {
		batches = &mockBatches{}
	}
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, batches, slog.Default())
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv := newTestServer(fmt.Errorf("manifest unreachable"), nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "manifest unreachable", body["error"])
}

type batchStatusBody struct {
	BatchID string          `json:"batch_id"`
	Counts  manifest.Counts `json:"counts"`
	Done    bool            `json:"done"`
}

func TestBatchStatusReturnsCounts(t *testing.T) {
	batches := &mockBatches{counts: manifest.Counts{Pending: 2, Complete: 5, Failed: 1}}
	srv := newTestServer(nil, batches)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/batches/abc-123", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body batchStatusBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "abc-123", body.BatchID)
	assert.Equal(t, 2, body.Counts.Pending)
	assert.Equal(t, 5, body.Counts.Complete)
	assert.False(t, body.Done)
}

func TestBatchStatusReportsDoneWhenNothingPending(t *testing.T) {
	batches := &mockBatches{counts: manifest.Counts{Complete: 5, Failed: 1}}
	srv := newTestServer(nil, batches)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/batches/abc-123", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body batchStatusBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Done)
}

func TestBatchStatusReturns404WhenUnknown(t *testing.T) {
	batches := &mockBatches{err: fmt.Errorf("batch nope not found")}
	srv := newTestServer(nil, batches)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/batches/nope", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
