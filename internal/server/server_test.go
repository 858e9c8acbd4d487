package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/semsyncd/internal/embeddings"
	"github.com/fyrsmithlabs/semsyncd/internal/syncer"
)

// fakeService returns scripted results and records the requests it saw.
type fakeService struct {
	syncResult    syncer.Result
	syncErr       error
	searchResults []syncer.SearchResult
	searchErr     error
	lastSync      syncer.Request
	lastSearch    syncer.SearchRequest
}

func (f *fakeService) Sync(_ context.Context, req syncer.Request) (syncer.Result, error) {
	f.lastSync = req
	return f.syncResult, f.syncErr
}

func (f *fakeService) Search(_ context.Context, req syncer.SearchRequest) ([]syncer.SearchResult, error) {
	f.lastSearch = req
	return f.searchResults, f.searchErr
}

func newTestServer(t *testing.T, service *fakeService, cfg Config) *Server {
	t.Helper()
	s, err := New(service, zap.NewNop(), cfg)
	require.NoError(t, err)
	return s
}

func doJSON(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestHandleSync_Success(t *testing.T) {
	service := &fakeService{syncResult: syncer.Result{Success: true, PointsWritten: 2, Message: "synced 2 points"}}
	s := newTestServer(t, service, Config{})

	rec := doJSON(s, http.MethodPost, "/v1/sync",
		`{"account_id":"acct_1","kind":"business_rule","entity_id":42,"fields":{"description":"refunds within 30 days"}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var result syncer.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.PointsWritten)
	assert.Equal(t, "acct_1", service.lastSync.AccountID)
	assert.Equal(t, syncer.KindBusinessRule, service.lastSync.Kind)
}

func TestHandleSync_ErrorCodes(t *testing.T) {
	cases := []struct {
		code   syncer.ErrorCode
		status int
	}{
		{syncer.CodeInvalidRequest, http.StatusBadRequest},
		{syncer.CodeEmbeddingFailed, http.StatusBadGateway},
		{syncer.CodeStoreFailed, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			service := &fakeService{
				syncResult: syncer.Result{Success: false, Message: "sync failed", ErrorCode: tc.code},
				syncErr:    fmt.Errorf("boom"),
			}
			s := newTestServer(t, service, Config{})

			rec := doJSON(s, http.MethodPost, "/v1/sync", `{"account_id":"acct_1"}`)

			assert.Equal(t, tc.status, rec.Code)
			var result syncer.Result
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
			assert.Equal(t, tc.code, result.ErrorCode)
		})
	}
}

func TestHandleSync_MalformedBody(t *testing.T) {
	s := newTestServer(t, &fakeService{}, Config{})

	rec := doJSON(s, http.MethodPost, "/v1/sync", `{not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSync_DefaultAccount(t *testing.T) {
	service := &fakeService{syncResult: syncer.Result{Success: true}}
	s := newTestServer(t, service, Config{DefaultAccountID: "acct_fallback"})

	doJSON(s, http.MethodPost, "/v1/sync",
		`{"kind":"business_rule","entity_id":1,"fields":{"description":"x"}}`)

	assert.Equal(t, "acct_fallback", service.lastSync.AccountID)
}

func TestHandleSearch_Success(t *testing.T) {
	service := &fakeService{searchResults: []syncer.SearchResult{{EntityID: 42, ChunkIndex: 0, Score: 0.9}}}
	s := newTestServer(t, service, Config{})

	rec := doJSON(s, http.MethodPost, "/v1/search",
		`{"account_id":"acct_1","kind":"business_rule","query_text":"refunds","limit":5,"score_threshold":0.5}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, int64(42), resp.Results[0].EntityID)
	assert.Equal(t, float32(0.5), service.lastSearch.ScoreThreshold)
}

func TestHandleSearch_DefaultThreshold(t *testing.T) {
	service := &fakeService{}
	s := newTestServer(t, service, Config{DefaultScoreThreshold: 0.4})

	doJSON(s, http.MethodPost, "/v1/search",
		`{"account_id":"acct_1","kind":"business_rule","query_text":"refunds"}`)

	assert.Equal(t, float32(0.4), service.lastSearch.ScoreThreshold)
}

func TestHandleSearch_Errors(t *testing.T) {
	t.Run("validation is 400", func(t *testing.T) {
		service := &fakeService{searchErr: fmt.Errorf("%w: query_text is required", syncer.ErrValidation)}
		s := newTestServer(t, service, Config{})

		rec := doJSON(s, http.MethodPost, "/v1/search", `{"account_id":"acct_1","kind":"business_rule"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("downstream failure is 502", func(t *testing.T) {
		service := &fakeService{searchErr: fmt.Errorf("%w: rate limited", embeddings.ErrEmbeddingFailed)}
		s := newTestServer(t, service, Config{})

		rec := doJSON(s, http.MethodPost, "/v1/search",
			`{"account_id":"acct_1","kind":"business_rule","query_text":"refunds"}`)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, &fakeService{}, Config{})

	rec := doJSON(s, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeService{}, Config{})

	rec := doJSON(s, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(nil, zap.NewNop(), Config{})
	require.Error(t, err)

	_, err = New(&fakeService{}, nil, Config{})
	require.Error(t, err)
}
