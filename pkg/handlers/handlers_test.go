package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/loadpulse/loadpulse/pkg/broker"
	"github.com/loadpulse/loadpulse/pkg/controllers"
	"github.com/loadpulse/loadpulse/pkg/handlers"
	"github.com/loadpulse/loadpulse/pkg/resources"
	"github.com/loadpulse/loadpulse/pkg/routes"
	"github.com/loadpulse/loadpulse/pkg/timeseries"
	"github.com/loadpulse/loadpulse/pkg/types"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	logger := newTestLogger()
	c := controllers.New(broker.NewRegistry(), broker.NewRunFlag(), broker.NewLiveBroker(logger), timeseries.New(), logger)
	h := handlers.New(c, resources.NewRuntimeSampler(), logger)

	e := echo.New()
	routes.Setup(e, h)
	return e
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) types.APIResponse {
	t.Helper()
	var resp types.APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestHealthReturnsSuccess(t *testing.T) {
	e := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Error("expected success=true")
	}
}

func TestStartLoadTestReturnsTestID(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	e := setupTestServer(t)

	body, _ := json.Marshal(map[string]any{
		"target_url":       target.URL,
		"num_requests":     5,
		"concurrent_users": 2,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/load-test", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Fatalf("expected success=true, got %+v", resp)
	}
}

func TestStartLoadTestRejectsInvalidConfig(t *testing.T) {
	e := setupTestServer(t)

	body, _ := json.Marshal(map[string]any{"target_url": "not-a-url", "num_requests": 5})
	req := httptest.NewRequest(http.MethodPost, "/api/load-test", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an invalid target_url, got %d", rec.Code)
	}
}

func TestGetTestNotFoundReturns404(t *testing.T) {
	e := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/tests/does-not-exist", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListTestsAfterStartIncludesTheNewTest(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	e := setupTestServer(t)

	body, _ := json.Marshal(map[string]any{"target_url": target.URL, "num_requests": 3, "concurrent_users": 1})
	req := httptest.NewRequest(http.MethodPost, "/api/load-test", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	time.Sleep(50 * time.Millisecond)

	req2 := httptest.NewRequest(http.MethodGet, "/api/tests", nil)
	rec2 := httptest.NewRecorder()
	e.ServeHTTP(rec2, req2)

	resp := decodeResponse(t, rec2)
	list, ok := resp.Data.([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("expected exactly one tracked test, got %+v", resp.Data)
	}
}

func TestRuntimeMetricsReturnsSnapshot(t *testing.T) {
	e := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
