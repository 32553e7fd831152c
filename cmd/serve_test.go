package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visibility-cli/internal/audit"
	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/store"
)

// stubStore serves canned runs for handler tests.
type stubStore struct {
	runs    map[string]*model.Run
	listErr error
}

func (s *stubStore) CreateRun(context.Context, model.BrandIdentity) (*model.Run, error) {
	return nil, eris.New("not implemented")
}

func (s *stubStore) UpdateRunStatus(context.Context, string, model.RunStatus) error { return nil }

func (s *stubStore) UpdateRunResult(context.Context, string, *model.RunResult) error { return nil }

func (s *stubStore) GetRun(_ context.Context, id string) (*model.Run, error) {
	run, ok := s.runs[id]
	if !ok {
		return nil, eris.Errorf("run not found: %s", id)
	}
	return run, nil
}

func (s *stubStore) ListRuns(context.Context, store.RunFilter) ([]model.Run, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []model.Run
	for _, r := range s.runs {
		out = append(out, *r)
	}
	return out, nil
}

func (s *stubStore) Migrate(context.Context) error { return nil }
func (s *stubStore) Close() error                  { return nil }

func testRun() *model.Run {
	return &model.Run{
		ID:        "run-1",
		Brand:     model.BrandIdentity{Name: "Acme"},
		Status:    model.RunStatusComplete,
		Result:    &model.RunResult{Visibility: model.RunVisibility{AveragePercentage: 50.0}},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newRouter(&stubStore{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestPostAuditRunsSynchronously(t *testing.T) {
	var captured audit.Request
	runAudit := func(_ context.Context, req audit.Request) (*audit.Result, error) {
		captured = req
		return &audit.Result{
			RunID:      "run-1",
			Visibility: model.RunVisibility{AveragePercentage: 66.7},
		}, nil
	}
	router := newRouter(&stubStore{}, runAudit)

	body := bytes.NewBufferString(`{
		"brand": {"name": "Acme", "aliases": ["ACME Inc"]},
		"budget": 12,
		"include_responses": true
	}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/audits", body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Acme", captured.Brand.Name)
	assert.Equal(t, []string{"ACME Inc"}, captured.Brand.Aliases)
	assert.Equal(t, 12, captured.Budget)
	assert.True(t, captured.IncludeResponses)

	var resp audit.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.RunID)
	assert.InDelta(t, 66.7, resp.Visibility.AveragePercentage, 0.001)
}

func TestPostAuditRejectsBadBody(t *testing.T) {
	router := newRouter(&stubStore{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/audits", bytes.NewBufferString("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/audits", bytes.NewBufferString(`{"brand": {"name": ""}}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "name is required")
}

func TestPostAuditMapsErrorsToStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation error", eris.New("allocate: budget 3 out of range [6, 100]"), http.StatusBadRequest},
		{"downstream failure", eris.New("audit: create run: connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runAudit := func(context.Context, audit.Request) (*audit.Result, error) {
				return nil, tt.err
			}
			router := newRouter(&stubStore{}, runAudit)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/audits",
				bytes.NewBufferString(`{"brand": {"name": "Acme"}}`)))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestGetRun(t *testing.T) {
	router := newRouter(&stubStore{runs: map[string]*model.Run{"run-1": testRun()}}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/run-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var run model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, "Acme", run.Brand.Name)
}

func TestGetRunNotFound(t *testing.T) {
	router := newRouter(&stubStore{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRuns(t *testing.T) {
	router := newRouter(&stubStore{runs: map[string]*model.Run{"run-1": testRun()}}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs?status=complete&limit=10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Runs []model.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Runs, 1)
	assert.Equal(t, "run-1", resp.Runs[0].ID)
}

func TestListRunsEmptyIsArray(t *testing.T) {
	router := newRouter(&stubStore{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runs":[]}`, rec.Body.String())
}
