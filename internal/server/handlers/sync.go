package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iudanet/fieldsync/pkg/api"
)

// SyncManager определяет интерфейс слоя обработки батчей
type SyncManager interface {
	ProcessBatch(ctx context.Context, req *api.SyncRequest) (*api.SyncResponse, error)
	Changes(ctx context.Context, clientID string, since int64) (*api.ChangesResponse, error)
	Status(ctx context.Context, clientID string) (*api.StatusResponse, error)
	Ping(ctx context.Context, req *api.PingRequest) (*api.PingResponse, error)
}

// SyncHandler handles the four sync endpoints.
type SyncHandler struct {
	logger  *slog.Logger
	manager SyncManager
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(logger *slog.Logger, manager SyncManager) *SyncHandler {
	return &SyncHandler{
		logger:  logger,
		manager: manager,
	}
}

// Batch обрабатывает POST /sync/batch
// Принимает батч операций от клиента, возвращает подтверждения,
// классифицированные ошибки и change feed с курсора клиента
func (h *SyncHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req api.SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Failed to decode batch request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	if req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "client_id is required")
		return
	}

	h.logger.Info("Batch request",
		"client_id", req.ClientID,
		"operations", len(req.Operations),
		"since", req.LastSyncTimestamp)

	resp, err := h.manager.ProcessBatch(r.Context(), &req)
	if err != nil {
		h.logger.Error("Failed to process batch", "error", err, "client_id", req.ClientID)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to process batch")
		return
	}

	writeJSON(h.logger, w, http.StatusOK, resp)
}

// Changes обрабатывает GET /sync/changes/{client_id}?since=N
// Возвращает чужие изменения с указанного курсора, не применяя ничего
func (h *SyncHandler) Changes(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("client_id")
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "client_id is required")
		return
	}

	var since int64
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		var err error
		since, err = strconv.ParseInt(sinceStr, 10, 64)
		if err != nil || since < 0 {
			h.logger.Warn("Invalid since parameter", "since", sinceStr)
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid since parameter")
			return
		}
	}

	resp, err := h.manager.Changes(r.Context(), clientID, since)
	if err != nil {
		h.logger.Error("Failed to read changes", "error", err, "client_id", clientID)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read changes")
		return
	}

	writeJSON(h.logger, w, http.StatusOK, resp)
}

// Status обрабатывает GET /sync/status/{client_id}
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("client_id")
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "client_id is required")
		return
	}

	resp, err := h.manager.Status(r.Context(), clientID)
	if err != nil {
		h.logger.Error("Failed to read status", "error", err, "client_id", clientID)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read status")
		return
	}

	writeJSON(h.logger, w, http.StatusOK, resp)
}

// Ping обрабатывает POST /sync/ping
func (h *SyncHandler) Ping(w http.ResponseWriter, r *http.Request) {
	var req api.PingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Failed to decode ping request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	if req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "client_id is required")
		return
	}

	resp, err := h.manager.Ping(r.Context(), &req)
	if err != nil {
		h.logger.Error("Failed to process ping", "error", err, "client_id", req.ClientID)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to process ping")
		return
	}

	writeJSON(h.logger, w, http.StatusOK, resp)
}

func writeJSON(logger *slog.Logger, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{
		Error:   code,
		Message: message,
	})
}
