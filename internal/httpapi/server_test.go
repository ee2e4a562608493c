package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moad/internal/breaker"
	"moad/internal/mixture"
	"moad/internal/quota"
	"moad/internal/schedule"
	"moad/pkg/types"
)

// fakeService implements Service with scripted responses.
type fakeService struct {
	resp  types.QueryResponse
	err   error
	ready bool
	reset int
}

func (f *fakeService) RunQuery(ctx context.Context, req types.QueryRequest) (types.QueryResponse, error) {
	if f.err != nil {
		return types.QueryResponse{}, f.err
	}
	return f.resp, nil
}

func (f *fakeService) ListModels() types.ModelsResponse {
	return types.ModelsResponse{
		Models:       []types.ModelProfile{{ID: "small", ContextWindow: 8192}},
		DefaultModel: "small",
	}
}

func (f *fakeService) Status() types.StatusResponse {
	return types.StatusResponse{MainModel: "small"}
}

func (f *fakeService) ResetLimits() { f.reset++ }
func (f *fakeService) Ready() bool  { return f.ready }

func postQuery(t *testing.T, h http.Handler, body, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestQueryOK(t *testing.T) {
	svc := &fakeService{resp: types.QueryResponse{RunID: "r1", Answer: "42", TotalTokens: 7, DurationMs: 12}, ready: true}
	h := NewMux(svc, nil)

	rec := postQuery(t, h, `{"query":"meaning of life"}`, "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp types.QueryResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "r1", resp.RunID)
	assert.Equal(t, "42", resp.Answer)
	assert.Equal(t, 7, resp.TotalTokens)
}

func TestQueryValidation(t *testing.T) {
	h := NewMux(&fakeService{}, nil)

	assert.Equal(t, http.StatusUnsupportedMediaType, postQuery(t, h, `{"query":"q"}`, "").Code)
	assert.Equal(t, http.StatusBadRequest, postQuery(t, h, `{not json`, "application/json").Code)
	assert.Equal(t, http.StatusBadRequest, postQuery(t, h, `{"query":"  "}`, "application/json").Code)
}

func TestQueryErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"overloaded", schedule.ErrOverloaded("small"), http.StatusTooManyRequests},
		{"daily cap", quota.ErrDailyCapExceeded("small"), http.StatusTooManyRequests},
		{"circuit open", breaker.ErrCircuitOpen("small:complete"), http.StatusServiceUnavailable},
		{"terminal", mixture.ErrTerminal("synthesis exhausted fallback chain", nil), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewMux(&fakeService{err: tc.err}, nil)
			rec := postQuery(t, h, `{"query":"q"}`, "application/json")
			require.Equal(t, tc.status, rec.Code)
			var er types.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&er))
			assert.Equal(t, tc.status, er.Code)
		})
	}
}

func TestTerminalErrorHidesInternals(t *testing.T) {
	h := NewMux(&fakeService{err: mixture.ErrTerminal("synthesis exhausted fallback chain", nil)}, nil)
	rec := postQuery(t, h, `{"query":"q"}`, "application/json")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "fallback chain")
}

func TestModelsEndpoint(t *testing.T) {
	h := NewMux(&fakeService{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp types.ModelsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Models, 1)
	assert.Equal(t, "small", resp.DefaultModel)
}

func TestStatusEndpoint(t *testing.T) {
	h := NewMux(&fakeService{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp types.StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "small", resp.MainModel)
}

func TestResetLimitsEndpoint(t *testing.T) {
	svc := &fakeService{}
	h := NewMux(svc, nil)
	req := httptest.NewRequest(http.MethodPost, "/reset-limits", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.reset)
}

func TestHealthAndReadiness(t *testing.T) {
	svc := &fakeService{}
	h := NewMux(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	svc.ready = true
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEventsDisabled(t *testing.T) {
	h := NewMux(&fakeService{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
