package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/asyncjob/internal/storage/memory"
	"github.com/JakeFAU/asyncjob/internal/store"
)

type listResponse struct {
	Jobs []runDTO `json:"jobs"`
}

type getResponse struct {
	Job runDTO `json:"job"`
}

func seededStore(t *testing.T) (*memory.RunStore, uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	repo := memory.NewRunStore()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	done := uuid.New()
	require.NoError(t, repo.UpsertRunStart(ctx, done, "Backup", base))
	require.NoError(t, repo.CompleteRun(ctx, done, base.Add(time.Minute), store.RunSuccess, nil))

	running := uuid.New()
	require.NoError(t, repo.UpsertRunStart(ctx, running, "Download", base.Add(time.Hour)))
	require.NoError(t, repo.UpdateRunProgress(ctx, running, 0.25, 1024, "Processing...", base.Add(time.Hour+time.Second)))
	return repo, done, running
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := NewServer(memory.NewRunStore(), zap.NewNop())
	rec := get(t, srv.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyzWithoutRepository(t *testing.T) {
	t.Parallel()

	srv := NewServer(nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv.Handler(), "/readyz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv.Handler(), "/api/jobs").Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	t.Parallel()

	srv := NewServer(memory.NewRunStore(), zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := NewServer(memory.NewRunStore(), zap.NewNop())
	get(t, srv.Handler(), "/healthz")
	rec := get(t, srv.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "asyncjob_http_requests_total")
}

func TestListJobs(t *testing.T) {
	t.Parallel()

	repo, done, running := seededStore(t)
	srv := NewServer(repo, zap.NewNop())

	rec := get(t, srv.Handler(), "/api/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	var body listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Jobs, 2)
	assert.Equal(t, running.String(), body.Jobs[0].ID)
	assert.Equal(t, done.String(), body.Jobs[1].ID)

	rec = get(t, srv.Handler(), "/api/jobs?status=success")
	require.Equal(t, http.StatusOK, rec.Code)
	body = listResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Jobs, 1)
	assert.Equal(t, "Backup", body.Jobs[0].Title)
	assert.NotNil(t, body.Jobs[0].FinishedAt)

	rec = get(t, srv.Handler(), "/api/jobs?limit=1&offset=1")
	require.Equal(t, http.StatusOK, rec.Code)
	body = listResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Jobs, 1)
	assert.Equal(t, done.String(), body.Jobs[0].ID)
}

func TestListJobsRejectsBadQuery(t *testing.T) {
	t.Parallel()

	srv := NewServer(memory.NewRunStore(), zap.NewNop())
	for _, target := range []string{
		"/api/jobs?status=paused",
		"/api/jobs?limit=0",
		"/api/jobs?limit=abc",
		"/api/jobs?offset=-1",
	} {
		assert.Equal(t, http.StatusBadRequest, get(t, srv.Handler(), target).Code, target)
	}
}

func TestGetJob(t *testing.T) {
	t.Parallel()

	repo, done, running := seededStore(t)
	srv := NewServer(repo, zap.NewNop())

	rec := get(t, srv.Handler(), "/api/jobs/"+running.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var body getResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "running", body.Job.Status)
	require.NotNil(t, body.Job.Fraction)
	assert.InDelta(t, 0.25, *body.Job.Fraction, 1e-9)
	assert.Equal(t, int64(1024), body.Job.BytesDone)
	assert.Equal(t, "Processing...", body.Job.Stage)

	rec = get(t, srv.Handler(), "/api/jobs/"+done.String())
	require.Equal(t, http.StatusOK, rec.Code)
	body = getResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "success", body.Job.Status)
	assert.Nil(t, body.Job.Fraction)
}

func TestGetJobErrors(t *testing.T) {
	t.Parallel()

	srv := NewServer(memory.NewRunStore(), zap.NewNop())
	assert.Equal(t, http.StatusBadRequest, get(t, srv.Handler(), "/api/jobs/not-a-uuid").Code)
	assert.Equal(t, http.StatusNotFound, get(t, srv.Handler(), "/api/jobs/"+uuid.NewString()).Code)
}

type failingRepo struct {
	store.RunRepository
}

func (failingRepo) GetRun(context.Context, uuid.UUID) (store.JobRun, error) {
	return store.JobRun{}, errors.New("db down")
}

func (failingRepo) ListRuns(context.Context, *store.RunStatus, int, int) ([]store.JobRun, error) {
	return nil, errors.New("db down")
}

func TestRepositoryFailures(t *testing.T) {
	t.Parallel()

	srv := NewServer(failingRepo{}, zap.NewNop())
	assert.Equal(t, http.StatusInternalServerError, get(t, srv.Handler(), "/api/jobs").Code)
	assert.Equal(t, http.StatusInternalServerError, get(t, srv.Handler(), "/api/jobs/"+uuid.NewString()).Code)
}

func TestParseLimitOffsetCapsLimit(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/api/jobs?limit=100000&offset=3", nil)
	limit, offset, err := parseLimitOffset(req, defaultJobLimit, maxJobLimit)
	require.NoError(t, err)
	assert.Equal(t, maxJobLimit, limit)
	assert.Equal(t, 3, offset)
}
