// Package mapper translates provider event kinds into the pipeline's internal
// event taxonomy via a static lookup table, extracting kind-specific fields
// into the tracking record's event data.
package mapper

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/contactops/contact-pipeline/internal/tracking"
	"github.com/contactops/contact-pipeline/internal/webhook"
	apperrors "github.com/contactops/contact-pipeline/pkg/errors"
)

// Mapped is the result of translating one provider event.
type Mapped struct {
	Kind       tracking.EventKind
	Data       map[string]any
	OccurredAt time.Time
}

// entry pairs an internal event kind with the extractor that pulls the
// kind-specific fields out of the payload.
type entry struct {
	kind    tracking.EventKind
	extract func(env *webhook.Envelope, data map[string]any)
}

// table maps every supported provider event kind. Adding a provider kind
// here is the only change needed to support a new event.
var table = map[string]entry{
	"email.sent":             {kind: tracking.EventSent, extract: extractNothing},
	"email.delivered":        {kind: tracking.EventDelivered, extract: extractNothing},
	"email.delivery_delayed": {kind: tracking.EventDelayed, extract: extractDelayed},
	"email.opened":           {kind: tracking.EventOpened, extract: extractOpened},
	"email.clicked":          {kind: tracking.EventClicked, extract: extractClicked},
	"email.bounced":          {kind: tracking.EventBounced, extract: extractBounced},
	"email.complained":       {kind: tracking.EventComplained, extract: extractComplained},
}

// Map translates the envelope's provider event kind into the internal
// taxonomy. Every result carries the common recipient/sender/subject fields
// and an effective timestamp (payload timestamp if present, else the
// envelope's creation time). Unknown kinds return ErrUnknownEventKind; the
// caller must reject the delivery rather than silently drop it.
func Map(env *webhook.Envelope) (*Mapped, error) {
	e, ok := table[env.Type]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrUnknownEventKind, http.StatusBadRequest,
			"unsupported event type %q", env.Type)
	}

	occurredAt := env.CreatedAt
	if env.Data.Timestamp != nil {
		occurredAt = *env.Data.Timestamp
	}

	data := map[string]any{
		"to":        env.Data.To,
		"from":      env.Data.From,
		"subject":   env.Data.Subject,
		"timestamp": occurredAt.Format(time.RFC3339),
	}
	e.extract(env, data)

	return &Mapped{
		Kind:       e.kind,
		Data:       data,
		OccurredAt: occurredAt,
	}, nil
}

func extractNothing(env *webhook.Envelope, data map[string]any) {}

func extractOpened(env *webhook.Envelope, data map[string]any) {
	if env.Data.Open == nil {
		return
	}
	if env.Data.Open.Timestamp != "" {
		data["open_timestamp"] = env.Data.Open.Timestamp
	}
}

func extractClicked(env *webhook.Envelope, data map[string]any) {
	if env.Data.Click == nil {
		return
	}
	data["link"] = env.Data.Click.Link
	if env.Data.Click.Timestamp != "" {
		data["click_timestamp"] = env.Data.Click.Timestamp
	}
}

func extractBounced(env *webhook.Envelope, data map[string]any) {
	if env.Data.Bounce == nil {
		return
	}
	data["bounce_type"] = env.Data.Bounce.Type
	if env.Data.Bounce.Message != "" {
		data["reason"] = env.Data.Bounce.Message
	}
}

func extractComplained(env *webhook.Envelope, data map[string]any) {
	if env.Data.Complaint == nil {
		return
	}
	data["complaint_type"] = env.Data.Complaint.Type
}

// extractDelayed passes the full payload through as the delay reason; the
// provider does not break delay causes into structured fields.
func extractDelayed(env *webhook.Envelope, data map[string]any) {
	var payload map[string]any
	if err := json.Unmarshal(env.RawData, &payload); err != nil {
		return
	}
	data["reason"] = payload
}
