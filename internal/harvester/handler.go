package harvester

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mkushnerov/tg-harvester/internal/models"
	"github.com/mkushnerov/tg-harvester/internal/repository"
)

// Exporter renders snapshots as a tabular stream for the export endpoint.
type Exporter interface {
	Write(w io.Writer, rows []models.UserSnapshot) error
}

// Handler handles HTTP requests for the harvester service.
type Handler struct {
	manager  *RunManager
	users    *repository.UsersRepository
	exporter Exporter
}

// NewHandler creates a handler with the given manager and users repository.
func NewHandler(manager *RunManager, users *repository.UsersRepository, exporter Exporter) *Handler {
	return &Handler{
		manager:  manager,
		users:    users,
		exporter: exporter,
	}
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// StartHarvest handles POST /api/v1/harvest
func (h *Handler) StartHarvest(w http.ResponseWriter, r *http.Request) {
	var req HarvestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := h.manager.Start(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyRunning):
			respondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, ErrUnknownAccount), errors.Is(err, ErrNoAccounts):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusAccepted, run)
}

// CancelHarvest handles DELETE /api/v1/harvest/current
func (h *Handler) CancelHarvest(w http.ResponseWriter, r *http.Request) {
	requester := r.URL.Query().Get("requester")
	if requester == "" {
		respondError(w, http.StatusBadRequest, "requester query param is required")
		return
	}

	if err := h.manager.Cancel(requester); err != nil {
		switch {
		case errors.Is(err, ErrRunStillActive):
			respondError(w, http.StatusConflict, err.Error())
		default:
			respondError(w, http.StatusNotFound, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "harvest cleared",
	})
}

// HarvestStatus handles GET /api/v1/harvest/status
func (h *Handler) HarvestStatus(w http.ResponseWriter, r *http.Request) {
	requester := r.URL.Query().Get("requester")
	if requester == "" {
		respondError(w, http.StatusBadRequest, "requester query param is required")
		return
	}

	run := h.manager.Current(requester)
	if run == nil {
		respondJSON(w, http.StatusOK, map[string]string{
			"status": "idle",
		})
		return
	}

	status := "running"
	if run.Done {
		status = "completed"
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": status,
		"run":    run,
	})
}

// SearchUsers handles GET /api/v1/users/search
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	if term == "" {
		respondError(w, http.StatusBadRequest, "q query param is required")
		return
	}

	limit := queryInt(r, "limit", 50)
	users, err := h.users.Search(r.Context(), term, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(users),
		"users": users,
	})
}

// UserStats handles GET /api/v1/users/stats
func (h *Handler) UserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.users.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// ExportUsers handles GET /api/v1/users/export
func (h *Handler) ExportUsers(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	users, err := h.users.All(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="users.csv"`)
	if err := h.exporter.Write(w, users); err != nil {
		// headers are already out, nothing to do but log via middleware
		return
	}
}

// helper functions

func queryInt(r *http.Request, key string, defaultVal int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return defaultVal
	}
	return v
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
