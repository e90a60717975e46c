package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/xfeed/internal/config"
	"github.com/thebtf/xfeed/internal/curation"
	gormdb "github.com/thebtf/xfeed/internal/db/gorm"
	"github.com/thebtf/xfeed/internal/reputation"
	"github.com/thebtf/xfeed/pkg/models"
)

var requestTime = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

type unreachableStore struct {
	*reputation.MemoryStore
}

func (unreachableStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

type pooledStore struct {
	*reputation.MemoryStore
	info gormdb.HealthInfo
}

func (s pooledStore) HealthCheck(context.Context) *gormdb.HealthInfo {
	info := s.info
	return &info
}

type corruptStore struct {
	*reputation.MemoryStore
}

func (corruptStore) Get(_ context.Context, author string) (*models.ReputationRecord, error) {
	return nil, fmt.Errorf("%w: author %q", reputation.ErrCorruptRecord, author)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Storage.Driver = config.DriverMemory
	cfg.DefaultFeedSize = 10
	return cfg
}

func newTestService(t *testing.T, store reputation.Store, opts ...Option) *Service {
	t.Helper()
	if store == nil {
		store = reputation.NewMemoryStore(0)
	}
	opts = append([]Option{WithEngineOptions(curation.WithIDGenerator(func() string { return "cycle-test" }))}, opts...)
	return NewService("test", testConfig(), store, zerolog.Nop(), opts...)
}

func do(t *testing.T, s *Service, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func sampleRequest() CurateRequest {
	return CurateRequest{
		Now:  requestTime,
		Seed: 42,
		Candidates: []models.Candidate{
			{ID: "1", Author: "alice", Text: "A careful walk through the allocator internals", Timestamp: requestTime.Add(-time.Hour)},
			{ID: "2", Author: "bob", Text: "Hot take with nothing behind it", Timestamp: requestTime.Add(-2 * time.Hour)},
			{ID: "3", Author: "carol", Text: "The oracle never saw this one", Timestamp: requestTime.Add(-3 * time.Hour)},
		},
		Oracle: json.RawMessage(`[
			{"id": "1", "score": 9, "rigor": 8, "factors": ["mechanism"]},
			{"id": "2", "score": 3, "rigor": 2, "factors": ["vague"]}
		]`),
	}
}

func decodeResult(t *testing.T, rr *httptest.ResponseRecorder) models.CurationResult {
	t.Helper()
	var result models.CurationResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	return result
}

func TestHandleHealth(t *testing.T) {
	rr := do(t, newTestService(t, nil), http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestHandleHealth_StoreUnreachable(t *testing.T) {
	s := newTestService(t, unreachableStore{reputation.NewMemoryStore(0)})
	rr := do(t, s, http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "connection refused")
}

func TestHandleHealth_PoolHealth(t *testing.T) {
	tests := []struct {
		name       string
		info       gormdb.HealthInfo
		wantCode   int
		wantStatus string
	}{
		{"healthy", gormdb.HealthInfo{Status: "healthy", OpenConnections: 2}, http.StatusOK, `"status":"ok"`},
		{"degraded", gormdb.HealthInfo{Status: "degraded", Warning: "connection pool heavily utilized"}, http.StatusOK, `"status":"degraded"`},
		{"unhealthy", gormdb.HealthInfo{Status: "unhealthy", Error: "dial tcp: refused"}, http.StatusServiceUnavailable, `"status":"degraded"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(t, pooledStore{MemoryStore: reputation.NewMemoryStore(0), info: tt.info})
			rr := do(t, s, http.MethodGet, "/api/health", nil)

			assert.Equal(t, tt.wantCode, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.wantStatus)
			assert.Contains(t, rr.Body.String(), `"store":{`)
			assert.Contains(t, rr.Body.String(), `"status":"`+tt.info.Status+`"`)
		})
	}
}

func TestHandleCurate(t *testing.T) {
	store := reputation.NewMemoryStore(0)
	s := newTestService(t, store)

	rr := do(t, s, http.MethodPost, "/api/curate", sampleRequest())
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	result := decodeResult(t, rr)
	assert.Equal(t, "cycle-test", result.CycleID)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "1", result.Entries[0].Candidate.ID)
	assert.Equal(t, 1, result.Defects.MissingScore)
	assert.True(t, result.ReputationCommitted)

	for _, author := range []string{"alice", "bob"} {
		rec, err := store.Get(context.Background(), author)
		require.NoError(t, err)
		require.NotNil(t, rec, author)
		assert.Equal(t, 1, rec.Observations)
	}
}

func TestHandleCurate_OracleResponsesInProse(t *testing.T) {
	req := sampleRequest()
	req.Oracle = nil
	req.OracleResponses = []string{
		"Sure! Here you go:\n```json\n[{\"id\": \"1\", \"score\": 9, \"rigor\": 8}]\n```",
		"[{\"id\": \"2\", \"score\": 3, \"rigor\": 2}, {\"id\": \"3\", \"score\": 42, \"rigor\": 2}]",
	}

	rr := do(t, newTestService(t, nil), http.MethodPost, "/api/curate", req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	result := decodeResult(t, rr)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, 1, result.Defects.MalformedScore)
}

func TestHandleCurate_NoOracleArrayCountsMissingScores(t *testing.T) {
	req := sampleRequest()
	req.Oracle = nil
	req.OracleResponses = []string{"I could not score these posts."}

	rr := do(t, newTestService(t, nil), http.MethodPost, "/api/curate", req)
	require.Equal(t, http.StatusOK, rr.Code)

	result := decodeResult(t, rr)
	assert.Empty(t, result.Entries)
	assert.Equal(t, 3, result.Defects.MissingScore)
}

func TestHandleCurate_Rejects(t *testing.T) {
	s := newTestService(t, nil)

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/curate", bytes.NewBufferString("{not json"))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("negative feed size", func(t *testing.T) {
		req := sampleRequest()
		req.FeedSize = -1
		rr := do(t, s, http.MethodPost, "/api/curate", req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "feed size")
	})

	t.Run("wrong content type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/curate", bytes.NewBufferString("id=1"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
	})
}

func TestHandleGetAuthor(t *testing.T) {
	s := newTestService(t, nil)

	rr := do(t, s, http.MethodGet, "/api/authors/alice", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/curate", sampleRequest()).Code)

	rr = do(t, s, http.MethodGet, "/api/authors/@Alice", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp AuthorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Record)
	assert.Equal(t, "alice", resp.Record.Author)
	assert.Equal(t, 1, resp.Assessment.Samples)
	assert.Equal(t, models.StatusUnknown, resp.Assessment.Status)
}

func TestHandleGetAuthor_Corrupt(t *testing.T) {
	s := newTestService(t, corruptStore{reputation.NewMemoryStore(0)})
	rr := do(t, s, http.MethodGet, "/api/authors/alice", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandleReclassify(t *testing.T) {
	s := newTestService(t, nil)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/curate", sampleRequest()).Code)

	rr := do(t, s, http.MethodPost, "/api/authors/reclassify", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var report reputation.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, 2, report.Authors)
}

func TestAuthToken(t *testing.T) {
	s := newTestService(t, nil, WithAuthToken("s3cret"))

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/health", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/api/authors/alice", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/authors/alice", nil, "X-Auth-Token", "s3cret").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/authors/alice", nil, "Authorization", "Bearer s3cret").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/api/authors/alice", nil, "X-Auth-Token", "guess").Code)
}

func TestRateLimit(t *testing.T) {
	s := newTestService(t, nil, WithRateLimit(0, 1))

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/curate", sampleRequest()).Code)
	rr := do(t, s, http.MethodPost, "/api/curate", sampleRequest())
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/authors/alice", nil).Code)
}

func TestSetConfig(t *testing.T) {
	s := newTestService(t, nil)

	bad := testConfig()
	bad.Exploration.Rate = 2
	s.SetConfig(bad)
	assert.Equal(t, 0.1, s.Config().Exploration.Rate)

	good := testConfig()
	good.RelevanceThreshold = 2
	s.SetConfig(good)
	assert.Equal(t, 2.0, s.Config().RelevanceThreshold)

	// Bob's 3 now clears the lowered threshold.
	rr := do(t, s, http.MethodPost, "/api/curate", sampleRequest())
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeResult(t, rr).Entries, 2)
}
