package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/loadpulse/loadpulse/pkg/broker"
	"github.com/loadpulse/loadpulse/pkg/timeseries"
	"github.com/loadpulse/loadpulse/pkg/types"
)

func newController() *Controller {
	return New(broker.NewRegistry(), broker.NewRunFlag(), broker.NewLiveBroker(nil), timeseries.New(), nil)
}

func waitTerminal(t *testing.T, c *Controller, id string) types.TestResult {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		result, ok := c.Registry.Get(id)
		if ok && result.Status.IsTerminal() {
			return result
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("test did not reach a terminal status in time")
	return types.TestResult{}
}

func TestControllerStartLoadCompletesAndReleasesFlag(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newController()
	id, err := c.StartLoad(context.Background(), server.URL, 20, 4)
	if err != nil {
		t.Fatalf("StartLoad: %v", err)
	}

	result := waitTerminal(t, c, id)
	if result.Status != types.StatusCompleted {
		t.Fatalf("expected completed, got %s (error=%s)", result.Status, result.Error)
	}
	if result.Metrics == nil || result.Metrics.RequestsCompleted != 20 {
		t.Fatalf("expected 20 completed requests, got %+v", result.Metrics)
	}
	if c.RunFlag.IsRunning() {
		t.Error("expected run flag to be released after completion")
	}
}

func TestControllerSecondStartRejectedWhileRunning(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(block)

	c := newController()
	_, err := c.StartLoad(context.Background(), server.URL, 5, 1)
	if err != nil {
		t.Fatalf("StartLoad: %v", err)
	}

	_, err = c.StartLoad(context.Background(), server.URL, 5, 1)
	if err == nil {
		t.Fatal("expected the second start to be rejected while the first is running")
	}
}

func TestControllerStartAPIMismatchReachesErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newController()
	tests := []types.ApiTest{{Name: "t1", Method: types.MethodGET, URL: server.URL, ExpectedStatus: http.StatusOK}}
	id, err := c.StartAPI(context.Background(), tests, 2)
	if err != nil {
		t.Fatalf("StartAPI: %v", err)
	}

	result := waitTerminal(t, c, id)
	if result.Status != types.StatusError {
		t.Fatalf("expected error status on status mismatch, got %s", result.Status)
	}
}

func TestControllerStartAPIFromFileLoadFailureIsTerminalWithoutSpawning(t *testing.T) {
	c := newController()
	id, err := c.StartAPIFromFile(context.Background(), "/nonexistent/suite.json", 1)
	if err != nil {
		t.Fatalf("StartAPIFromFile: %v", err)
	}

	result, ok := c.Registry.Get(id)
	if !ok {
		t.Fatal("expected a registered result even on suite load failure")
	}
	if result.Status != types.StatusError || result.Progress != 0 {
		t.Fatalf("expected terminal error at progress 0, got %+v", result)
	}
	if c.RunFlag.IsRunning() {
		t.Error("expected run flag released after a preflight failure")
	}
}

func TestControllerStartAPIFromFileParsesSuite(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f, err := os.CreateTemp(t.TempDir(), "suite-*.json")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	suite := []types.ApiTest{{Name: "health", Method: types.MethodGET, URL: server.URL, ExpectedStatus: http.StatusOK}}
	if err := json.NewEncoder(f).Encode(suite); err != nil {
		t.Fatalf("encode suite: %v", err)
	}
	f.Close()

	c := newController()
	id, err := c.StartAPIFromFile(context.Background(), f.Name(), 1)
	if err != nil {
		t.Fatalf("StartAPIFromFile: %v", err)
	}

	result := waitTerminal(t, c, id)
	if result.Status != types.StatusCompleted {
		t.Fatalf("expected completed, got %s (error=%s)", result.Status, result.Error)
	}
}

func TestControllerStartStressRespectsDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newController()
	id, err := c.StartStress(context.Background(), server.URL, 1, 4, "")
	if err != nil {
		t.Fatalf("StartStress: %v", err)
	}

	result := waitTerminal(t, c, id)
	if result.Status != types.StatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if result.Metrics == nil || result.Metrics.RequestsCompleted == 0 {
		t.Fatal("expected at least one request to have completed during the stress window")
	}
}
