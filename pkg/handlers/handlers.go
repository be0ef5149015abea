// Package handlers implements the control-plane HTTP endpoints on
// echo/v5, each responding with the uniform types.APIResponse envelope.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/loadpulse/loadpulse/pkg/broker"
	"github.com/loadpulse/loadpulse/pkg/controllers"
	"github.com/loadpulse/loadpulse/pkg/resources"
	"github.com/loadpulse/loadpulse/pkg/types"
)

// Handler wires the control plane's dependencies into one struct, the
// same shape as the teacher's Handler{svc, logger}.
type Handler struct {
	controller *controllers.Controller
	sampler    resources.Sampler
	logger     *slog.Logger
}

// New builds a Handler.
func New(controller *controllers.Controller, sampler resources.Sampler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{controller: controller, sampler: sampler, logger: logger}
}

func ok(c *echo.Context, status int, message string, data any) error {
	return (*c).JSON(status, types.APIResponse{Success: true, Message: message, Data: data})
}

func fail(c *echo.Context, status int, message string) error {
	return (*c).JSON(status, types.APIResponse{Success: false, Message: message})
}

// Health reports the process as up; there is no external dependency to
// probe since this service holds no persistent connections.
func (h *Handler) Health(c *echo.Context) error {
	return ok(c, http.StatusOK, "healthy", nil)
}

// ListTests returns every tracked TestResult, most-recently-inserted last.
func (h *Handler) ListTests(c *echo.Context) error {
	return ok(c, http.StatusOK, "tests listed", h.controller.Registry.List())
}

// GetTest looks up one TestResult by id.
func (h *Handler) GetTest(c *echo.Context) error {
	id := (*c).Param("id")
	result, found := h.controller.Registry.Get(id)
	if !found {
		return fail(c, http.StatusNotFound, "test not found")
	}
	return ok(c, http.StatusOK, "test found", result)
}

// loadTestRequest is the inbound JSON body of POST /api/load-test.
type loadTestRequest struct {
	TargetURL       string `json:"target_url"`
	NumRequests     int    `json:"num_requests"`
	ConcurrentUsers int    `json:"concurrent_users"`
}

// StartLoadTest begins a load test and returns its test_id immediately.
func (h *Handler) StartLoadTest(c *echo.Context) error {
	var req loadTestRequest
	if err := (*c).Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	id, err := h.controller.StartLoad((*c).Request().Context(), req.TargetURL, req.NumRequests, req.ConcurrentUsers)
	if err != nil {
		return h.respondStartError(c, err)
	}
	return ok(c, http.StatusAccepted, "load test started", map[string]string{"test_id": id})
}

// stressTestRequest is the inbound JSON body of POST /api/stress-test.
type stressTestRequest struct {
	TargetURL       string `json:"target_url"`
	SitemapPath     string `json:"sitemap_path"`
	DurationSecs    int    `json:"duration_secs"`
	ConcurrentUsers int    `json:"concurrent_users"`
}

// StartStressTest begins a stress test and returns its test_id immediately.
func (h *Handler) StartStressTest(c *echo.Context) error {
	var req stressTestRequest
	if err := (*c).Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	id, err := h.controller.StartStress((*c).Request().Context(), req.TargetURL, req.DurationSecs, req.ConcurrentUsers, req.SitemapPath)
	if err != nil {
		return h.respondStartError(c, err)
	}
	return ok(c, http.StatusAccepted, "stress test started", map[string]string{"test_id": id})
}

// apiTestRequest is the inbound JSON body of POST /api/api-test: either
// an inline suite or a path to one loaded server-side.
type apiTestRequest struct {
	Tests           []types.ApiTest `json:"tests,omitempty"`
	SuitePath       string          `json:"suite_path,omitempty"`
	ConcurrentUsers int             `json:"concurrent_users"`
}

// StartAPITest begins an API-assertion test and returns its test_id immediately.
func (h *Handler) StartAPITest(c *echo.Context) error {
	var req apiTestRequest
	if err := (*c).Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	ctx := (*c).Request().Context()
	var (
		id  string
		err error
	)
	if req.SuitePath != "" {
		id, err = h.controller.StartAPIFromFile(ctx, req.SuitePath, req.ConcurrentUsers)
	} else {
		id, err = h.controller.StartAPI(ctx, req.Tests, req.ConcurrentUsers)
	}
	if err != nil {
		return h.respondStartError(c, err)
	}
	return ok(c, http.StatusAccepted, "api test started", map[string]string{"test_id": id})
}

// RuntimeMetrics surfaces ambient process health via pkg/resources.
func (h *Handler) RuntimeMetrics(c *echo.Context) error {
	return ok(c, http.StatusOK, "runtime metrics", h.sampler.Sample())
}

// ServeWS upgrades the connection into the single-slot live-telemetry
// viewer, replaying retained time-series history on attach.
func (h *Handler) ServeWS(c *echo.Context) error {
	history := h.controller.Tracker.History()
	points := make([]broker.Envelope, 0)
	if len(history) > 0 {
		points = append(points, broker.NewTimeSeriesHistory(history))
	}

	err := h.controller.Live.Attach((*c).Response(), (*c).Request(), points)
	if err != nil {
		if errors.Is(err, broker.ErrAlreadyAttached) {
			return fail(c, http.StatusConflict, "a viewer is already attached")
		}
		h.logger.Error("websocket upgrade failed", "error", err)
		return fail(c, http.StatusInternalServerError, "failed to upgrade connection")
	}
	return nil
}

// respondStartError maps a controller start error to its HTTP status,
// keyed on the carried AppError.Kind.
func (h *Handler) respondStartError(c *echo.Context, err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Kind {
		case types.ErrorKindTestAlreadyRunning:
			return fail(c, http.StatusConflict, err.Error())
		case types.ErrorKindConfigInvalid:
			return fail(c, http.StatusBadRequest, err.Error())
		}
	}
	return fail(c, http.StatusBadRequest, err.Error())
}
