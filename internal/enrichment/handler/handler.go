package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/contactops/contact-pipeline/internal/enrichment/scheduler"
	apperrors "github.com/contactops/contact-pipeline/pkg/errors"
	"github.com/contactops/contact-pipeline/pkg/logger"
)

type Handler struct {
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
}

func New(s *scheduler.Scheduler) *Handler {
	return &Handler{
		scheduler: s,
		logger:    slog.Default().With("component", "enrichment-handler"),
	}
}

// Trigger handles POST /geocode-addresses: it runs one enrichment batch on
// demand and reports the aggregate counts. No request body is required.
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	report, err := h.scheduler.Run(ctx)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("enrichment run failed",
			"status_code", statusCode,
			"error", err,
		)
		h.writeJSON(w, statusCode, map[string]string{"error": err.Error()})
		return
	}

	if report.Processed == 0 {
		h.writeJSON(w, http.StatusOK, map[string]any{
			"message": "No contacts need geocoding",
			"updated": 0,
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Geocoding batch complete",
		"processed":  report.Processed,
		"successful": report.Successful,
		"failed":     report.Failed,
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}
