// Package webhook defines the envelope and payload types for inbound
// email-delivery webhook events.
package webhook

import (
	"encoding/json"
	"time"
)

// Envelope is the top-level structure of a webhook delivery. It is built
// per-request from the raw HTTP body and never persisted verbatim. RawData is
// retained alongside the decoded payload so kind-specific mapping can pass
// the original fields through untouched.
type Envelope struct {
	Type      string          `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
	RawData   json.RawMessage `json:"data"`

	Data EventData `json:"-"`
}

// EventData holds the provider's event payload. The common fields are present
// on every event kind; the pointer fields carry kind-specific sub-objects.
type EventData struct {
	EmailID   string         `json:"email_id"`
	To        []string       `json:"to"`
	From      string         `json:"from"`
	Subject   string         `json:"subject"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	Click     *ClickData     `json:"click,omitempty"`
	Open      *OpenData      `json:"open,omitempty"`
	Bounce    *BounceData    `json:"bounce,omitempty"`
	Complaint *ComplaintData `json:"complaint,omitempty"`
}

// ClickData describes a tracked link click.
type ClickData struct {
	Link      string `json:"link"`
	Timestamp string `json:"timestamp"`
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// OpenData describes a tracked open.
type OpenData struct {
	Timestamp string `json:"timestamp"`
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// BounceData describes a delivery bounce.
type BounceData struct {
	Type    string `json:"type"`
	SubType string `json:"subType,omitempty"`
	Message string `json:"message,omitempty"`
}

// ComplaintData describes a spam complaint.
type ComplaintData struct {
	Type    string `json:"type"`
	SubType string `json:"subType,omitempty"`
}

// ParseEnvelope decodes a raw webhook body into an Envelope with both the
// typed payload and the raw data preserved.
func ParseEnvelope(rawBody []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return nil, err
	}
	if len(env.RawData) > 0 {
		if err := json.Unmarshal(env.RawData, &env.Data); err != nil {
			return nil, err
		}
	}
	return &env, nil
}
