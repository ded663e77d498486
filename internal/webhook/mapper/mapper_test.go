package mapper

import (
	"errors"
	"testing"
	"time"

	"github.com/contactops/contact-pipeline/internal/tracking"
	"github.com/contactops/contact-pipeline/internal/webhook"
	apperrors "github.com/contactops/contact-pipeline/pkg/errors"
)

func parse(t *testing.T, body string) *webhook.Envelope {
	t.Helper()
	env, err := webhook.ParseEnvelope([]byte(body))
	if err != nil {
		t.Fatalf("parsing envelope: %v", err)
	}
	return env
}

func TestMapKnownKinds(t *testing.T) {
	cases := []struct {
		provider string
		want     tracking.EventKind
	}{
		{"email.sent", tracking.EventSent},
		{"email.delivered", tracking.EventDelivered},
		{"email.delivery_delayed", tracking.EventDelayed},
		{"email.opened", tracking.EventOpened},
		{"email.clicked", tracking.EventClicked},
		{"email.bounced", tracking.EventBounced},
		{"email.complained", tracking.EventComplained},
	}
	for _, tc := range cases {
		t.Run(tc.provider, func(t *testing.T) {
			env := parse(t, `{"type":"`+tc.provider+`","created_at":"2024-01-01T00:00:00Z","data":{"email_id":"m1","to":["a@example.com"],"from":"b@example.com","subject":"hi"}}`)
			mapped, err := Map(env)
			if err != nil {
				t.Fatalf("Map returned error: %v", err)
			}
			if mapped.Kind != tc.want {
				t.Errorf("Kind = %q, want %q", mapped.Kind, tc.want)
			}
			if got := mapped.Data["from"]; got != "b@example.com" {
				t.Errorf("Data[from] = %v, want b@example.com", got)
			}
			if got := mapped.Data["subject"]; got != "hi" {
				t.Errorf("Data[subject] = %v, want hi", got)
			}
		})
	}
}

func TestMapUnknownKind(t *testing.T) {
	env := parse(t, `{"type":"contact.created","created_at":"2024-01-01T00:00:00Z","data":{"email_id":"m1"}}`)
	_, err := Map(env)
	if !errors.Is(err, apperrors.ErrUnknownEventKind) {
		t.Fatalf("error = %v, want ErrUnknownEventKind", err)
	}
}

func TestMapClickedExtractsLink(t *testing.T) {
	env := parse(t, `{"type":"email.clicked","created_at":"2024-01-01T00:00:00Z","data":{"email_id":"m1","click":{"link":"https://example.com/offer","timestamp":"2024-01-01T01:02:03Z"}}}`)
	mapped, err := Map(env)
	if err != nil {
		t.Fatalf("Map returned error: %v", err)
	}
	if got := mapped.Data["link"]; got != "https://example.com/offer" {
		t.Errorf("Data[link] = %v", got)
	}
	if got := mapped.Data["click_timestamp"]; got != "2024-01-01T01:02:03Z" {
		t.Errorf("Data[click_timestamp] = %v", got)
	}
}

func TestMapBouncedExtractsTypeAndReason(t *testing.T) {
	env := parse(t, `{"type":"email.bounced","created_at":"2024-01-01T00:00:00Z","data":{"email_id":"m1","bounce":{"type":"Permanent","message":"mailbox does not exist"}}}`)
	mapped, err := Map(env)
	if err != nil {
		t.Fatalf("Map returned error: %v", err)
	}
	if got := mapped.Data["bounce_type"]; got != "Permanent" {
		t.Errorf("Data[bounce_type] = %v", got)
	}
	if got := mapped.Data["reason"]; got != "mailbox does not exist" {
		t.Errorf("Data[reason] = %v", got)
	}
}

func TestMapComplainedExtractsType(t *testing.T) {
	env := parse(t, `{"type":"email.complained","created_at":"2024-01-01T00:00:00Z","data":{"email_id":"m1","complaint":{"type":"abuse"}}}`)
	mapped, err := Map(env)
	if err != nil {
		t.Fatalf("Map returned error: %v", err)
	}
	if got := mapped.Data["complaint_type"]; got != "abuse" {
		t.Errorf("Data[complaint_type] = %v", got)
	}
}

func TestMapDelayedPassesPayloadAsReason(t *testing.T) {
	env := parse(t, `{"type":"email.delivery_delayed","created_at":"2024-01-01T00:00:00Z","data":{"email_id":"m1","to":["a@example.com"]}}`)
	mapped, err := Map(env)
	if err != nil {
		t.Fatalf("Map returned error: %v", err)
	}
	reason, ok := mapped.Data["reason"].(map[string]any)
	if !ok {
		t.Fatalf("Data[reason] = %T, want map", mapped.Data["reason"])
	}
	if reason["email_id"] != "m1" {
		t.Errorf("reason[email_id] = %v", reason["email_id"])
	}
}

func TestMapTimestampFallback(t *testing.T) {
	t.Run("payload timestamp wins", func(t *testing.T) {
		env := parse(t, `{"type":"email.sent","created_at":"2024-01-01T00:00:00Z","data":{"email_id":"m1","timestamp":"2024-02-02T12:00:00Z"}}`)
		mapped, err := Map(env)
		if err != nil {
			t.Fatalf("Map returned error: %v", err)
		}
		want := time.Date(2024, 2, 2, 12, 0, 0, 0, time.UTC)
		if !mapped.OccurredAt.Equal(want) {
			t.Errorf("OccurredAt = %v, want %v", mapped.OccurredAt, want)
		}
	})
	t.Run("envelope created_at fallback", func(t *testing.T) {
		env := parse(t, `{"type":"email.sent","created_at":"2024-01-01T00:00:00Z","data":{"email_id":"m1"}}`)
		mapped, err := Map(env)
		if err != nil {
			t.Fatalf("Map returned error: %v", err)
		}
		want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		if !mapped.OccurredAt.Equal(want) {
			t.Errorf("OccurredAt = %v, want %v", mapped.OccurredAt, want)
		}
	})
}
