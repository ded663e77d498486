package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/contactops/contact-pipeline/internal/webhook/ingestor"
	"github.com/contactops/contact-pipeline/internal/webhook/signature"
	apperrors "github.com/contactops/contact-pipeline/pkg/errors"
	"github.com/contactops/contact-pipeline/pkg/logger"
	"github.com/contactops/contact-pipeline/pkg/metrics"
)

// maxBodySize caps webhook bodies; provider events are small JSON documents.
const maxBodySize = 1 << 20

type Handler struct {
	ingestor *ingestor.Ingestor
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a webhook Handler. m may be nil in tests.
func New(ing *ingestor.Ingestor, m *metrics.Metrics) *Handler {
	return &Handler{
		ingestor: ing,
		metrics:  m,
		logger:   slog.Default().With("component", "webhook-handler"),
	}
}

// Receive handles POST /resend-webhook. Non-2xx responses signal the
// provider to retry delivery.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	// MaxBytesReader makes an oversized body a read error rather than a
	// silent truncation that would fail signature verification downstream.
	rawBody, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "reading request body")
		return
	}
	hdr := signature.Headers{
		ID:        r.Header.Get("svix-id"),
		Timestamp: r.Header.Get("svix-timestamp"),
		Signature: r.Header.Get("svix-signature"),
	}

	res, err := h.ingestor.Ingest(ctx, rawBody, hdr)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Warn("webhook rejected",
			"status_code", statusCode,
			"error", err,
		)
		if h.metrics != nil {
			if statusCode == http.StatusUnauthorized {
				h.metrics.SignatureFailures.Inc()
			}
			h.metrics.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		}
		h.writeError(w, statusCode, err.Error())
		return
	}

	if h.metrics != nil {
		h.metrics.WebhookEventsTotal.WithLabelValues(string(res.EventType), "accepted").Inc()
		h.metrics.TrackingRecordsTotal.Inc()
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"event_type": res.EventType,
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

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
