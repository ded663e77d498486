// Package tracking defines the internal email-event taxonomy and the
// append-only tracking record persisted for each observed delivery event.
package tracking

import "time"

// EventKind is the closed set of email lifecycle events the pipeline stores.
type EventKind string

const (
	EventSent       EventKind = "sent"
	EventDelivered  EventKind = "delivered"
	EventDelayed    EventKind = "delayed"
	EventOpened     EventKind = "opened"
	EventClicked    EventKind = "clicked"
	EventBounced    EventKind = "bounced"
	EventComplained EventKind = "complained"
)

// Record is one observed email lifecycle event for a contact. Records are
// append-only; the repository deduplicates on (provider_message_id,
// event_type).
type Record struct {
	ContactID         string         `json:"contact_id"`
	ProviderMessageID string         `json:"provider_message_id"`
	EventType         EventKind      `json:"event_type"`
	EventData         map[string]any `json:"event_data"`
	OccurredAt        time.Time      `json:"occurred_at"`
}
