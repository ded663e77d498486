// Package ingestor orchestrates one webhook delivery end to end: signature
// verification, payload parsing, contact resolution, event mapping, and
// persistence of the resulting tracking record.
package ingestor

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/contactops/contact-pipeline/internal/tracking"
	"github.com/contactops/contact-pipeline/internal/webhook"
	"github.com/contactops/contact-pipeline/internal/webhook/mapper"
	"github.com/contactops/contact-pipeline/internal/webhook/signature"
	apperrors "github.com/contactops/contact-pipeline/pkg/errors"
	"github.com/contactops/contact-pipeline/pkg/kafka"
	"github.com/contactops/contact-pipeline/pkg/tracing"
)

// ContactStore resolves contacts and persists tracking records. The postgres
// repository implements it; tests substitute fakes.
type ContactStore interface {
	FindByProviderMessageID(ctx context.Context, messageID string) (string, error)
	InsertTracking(ctx context.Context, rec tracking.Record) error
}

// EventPublisher fans persisted tracking events out to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Result is returned for a successfully ingested delivery.
type Result struct {
	EventType tracking.EventKind `json:"event_type"`
	ContactID string             `json:"contact_id"`
}

// Ingestor processes webhook deliveries. Each call is independent and
// stateless; concurrent invocations share nothing beyond the store's own
// transactional guarantees.
type Ingestor struct {
	secret    string
	store     ContactStore
	publisher EventPublisher
	logger    *slog.Logger
}

// New creates an Ingestor. publisher may be nil when event fan-out is not
// configured.
func New(secret string, store ContactStore, publisher EventPublisher) *Ingestor {
	return &Ingestor{
		secret:    secret,
		store:     store,
		publisher: publisher,
		logger:    slog.Default().With("component", "ingestor"),
	}
}

// Ingest verifies, parses, maps, and persists one delivery. It never retries:
// the upstream provider re-delivers on non-2xx responses. Duplicate
// deliveries are absorbed by the store's (provider_message_id, event_type)
// dedup key.
func (i *Ingestor) Ingest(ctx context.Context, rawBody []byte, hdr signature.Headers) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "webhook.ingest", hdr.ID)
	defer func() {
		span.End()
		span.Log()
	}()

	if !signature.Verify(rawBody, hdr, i.secret) {
		return nil, apperrors.New(apperrors.ErrUnauthorized, http.StatusUnauthorized,
			"invalid webhook signature")
	}

	env, err := webhook.ParseEnvelope(rawBody)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrBadPayload, http.StatusBadRequest,
			"decoding webhook body: %v", err)
	}
	if env.Data.EmailID == "" {
		return nil, apperrors.New(apperrors.ErrBadPayload, http.StatusBadRequest,
			"missing email_id in payload")
	}
	span.SetAttr("event_type", env.Type)

	contactID, err := i.store.FindByProviderMessageID(ctx, env.Data.EmailID)
	if err != nil {
		return nil, err
	}

	mapped, err := mapper.Map(env)
	if err != nil {
		return nil, err
	}

	rec := tracking.Record{
		ContactID:         contactID,
		ProviderMessageID: env.Data.EmailID,
		EventType:         mapped.Kind,
		EventData:         mapped.Data,
		OccurredAt:        mapped.OccurredAt,
	}
	if err := i.store.InsertTracking(ctx, rec); err != nil {
		return nil, err
	}

	if i.publisher != nil {
		if err := i.publisher.Publish(ctx, kafka.Event{Key: contactID, Value: rec}); err != nil {
			// Fan-out is best-effort: the record is already persisted.
			i.logger.Error("failed to publish tracking event",
				"contact_id", contactID,
				"event_type", mapped.Kind,
				"error", err,
			)
		}
	}

	i.logger.Info("tracking event recorded",
		"contact_id", contactID,
		"event_type", mapped.Kind,
		"message_id", env.Data.EmailID,
	)
	return &Result{EventType: mapped.Kind, ContactID: contactID}, nil
}
