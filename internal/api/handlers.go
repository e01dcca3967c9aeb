package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hyperengineering/tether/internal/engine"
	tethersync "github.com/hyperengineering/tether/internal/sync"
	"github.com/hyperengineering/tether/internal/validation"
)

// MaxSyncChanges is the maximum change records per sync request.
const MaxSyncChanges = 1000

// Handler implements the API handlers
type Handler struct {
	engine        *engine.Engine
	apiKey        string
	version       string
	retentionDays int
}

// NewHandler creates a new Handler backed by the sync engine.
func NewHandler(e *engine.Engine, apiKey, version string, retentionDays int) *Handler {
	return &Handler{
		engine:        e,
		apiKey:        apiKey,
		version:       version,
		retentionDays: retentionDays,
	}
}

// healthResponse is the body of GET /api/v1/health.
type healthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	TotalDevices int64  `json:"total_devices"`
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.engine.GetMetrics(r.Context())
	if err != nil {
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	resp := healthResponse{
		Status:       "healthy",
		Version:      h.version,
		TotalDevices: metrics.TotalDevices,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// syncRequest is the body of POST /devices/{device_id}/sync.
type syncRequest struct {
	Changes     []tethersync.ChangeRecord `json:"changes"`
	RemoteState tethersync.RemoteState    `json:"remote_state"`
	Strategy    string                    `json:"strategy,omitempty"`
}

// Sync handles POST /api/v1/devices/{device_id}/sync
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	deviceID := chi.URLParam(r, "device_id")

	// 1. Parse request
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err))
		return
	}

	// 2. Validate
	var c validation.Collector
	c.Add(validation.ValidateDeviceID("device_id", deviceID))
	c.Add(validation.ValidateStrategy("strategy", req.Strategy))
	if len(req.Changes) > MaxSyncChanges {
		c.Add(&validation.ValidationError{
			Field:   "changes",
			Message: fmt.Sprintf("exceeds maximum of %d records", MaxSyncChanges),
		})
	}
	if c.HasErrors() {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", c.Errors())
		return
	}

	// 3. Run the sync round
	result, err := h.engine.Sync(r.Context(), deviceID, req.Changes, req.RemoteState, tethersync.Strategy(req.Strategy))
	if err != nil {
		slog.Error("sync request failed",
			"component", "api",
			"action", "sync_failed",
			"device_id", deviceID,
			"error", err,
		)
		MapEngineError(w, r, err)
		return
	}

	// 4. Write response
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)

	slog.Info("sync served",
		"component", "api",
		"action", "sync",
		"device_id", deviceID,
		"operation_id", result.OperationID,
		"changes", len(req.Changes),
		"conflicts", result.Conflicts,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// rollbackRequest is the body of POST /devices/{device_id}/rollback.
type rollbackRequest struct {
	OperationID string `json:"operation_id"`
}

// Rollback handles POST /api/v1/devices/{device_id}/rollback
func (h *Handler) Rollback(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "device_id")

	var req rollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err))
		return
	}

	var c validation.Collector
	c.Add(validation.ValidateDeviceID("device_id", deviceID))
	c.Add(validation.ValidateRequired("operation_id", req.OperationID))
	if req.OperationID != "" {
		c.Add(validation.ValidateULID("operation_id", req.OperationID))
	}
	if c.HasErrors() {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", c.Errors())
		return
	}

	result, err := h.engine.Rollback(r.Context(), deviceID, req.OperationID)
	if err != nil {
		MapEngineError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// Status handles GET /api/v1/devices/{device_id}/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "device_id")

	if err := validation.ValidateDeviceID("device_id", deviceID); err != nil {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", []validation.ValidationError{*err})
		return
	}

	state, err := h.engine.GetStatus(r.Context(), deviceID)
	if err != nil {
		MapEngineError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}

// historyResponse is the body of GET /devices/{device_id}/history.
type historyResponse struct {
	DeviceID   string                 `json:"device_id"`
	Operations []tethersync.Operation `json:"operations"`
}

// History handles GET /api/v1/devices/{device_id}/history
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "device_id")

	if err := validation.ValidateDeviceID("device_id", deviceID); err != nil {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", []validation.ValidationError{*err})
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			WriteProblem(w, r, http.StatusBadRequest, "invalid limit parameter: must be an integer >= 1")
			return
		}
		limit = n
	}

	operations, err := h.engine.GetHistory(r.Context(), deviceID, limit)
	if err != nil {
		MapEngineError(w, r, err)
		return
	}
	if operations == nil {
		operations = []tethersync.Operation{}
	}

	resp := historyResponse{DeviceID: deviceID, Operations: operations}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Metrics handles GET /api/v1/metrics
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.engine.GetMetrics(r.Context())
	if err != nil {
		MapEngineError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(metrics)
}

// pruneRequest is the optional body of POST /maintenance/prune.
type pruneRequest struct {
	RetentionDays int `json:"retention_days,omitempty"`
}

// pruneResponse is the body of POST /maintenance/prune.
type pruneResponse struct {
	Pruned        int64 `json:"pruned"`
	RetentionDays int   `json:"retention_days"`
}

// Prune handles POST /api/v1/maintenance/prune
func (h *Handler) Prune(w http.ResponseWriter, r *http.Request) {
	retentionDays := h.retentionDays

	// Body is optional; an empty body keeps the configured retention.
	var req pruneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.RetentionDays != 0 {
		if req.RetentionDays < 1 {
			WriteProblem(w, r, http.StatusBadRequest, "retention_days must be >= 1")
			return
		}
		retentionDays = req.RetentionDays
	}

	pruned, err := h.engine.PruneHistory(r.Context(), retentionDays)
	if err != nil {
		MapEngineError(w, r, err)
		return
	}

	resp := pruneResponse{Pruned: pruned, RetentionDays: retentionDays}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
