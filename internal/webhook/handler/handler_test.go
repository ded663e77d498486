package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/contactops/contact-pipeline/internal/tracking"
	"github.com/contactops/contact-pipeline/internal/webhook/ingestor"
	apperrors "github.com/contactops/contact-pipeline/pkg/errors"
	"github.com/contactops/contact-pipeline/pkg/middleware"
)

const testSecret = "plain-shared-secret"

type fakeStore struct {
	contacts map[string]string
	inserted []tracking.Record
	insErr   error
}

func (f *fakeStore) FindByProviderMessageID(ctx context.Context, messageID string) (string, error) {
	id, ok := f.contacts[messageID]
	if !ok {
		return "", apperrors.Newf(apperrors.ErrContactNotFound, 404, "no contact for %s", messageID)
	}
	return id, nil
}

func (f *fakeStore) InsertTracking(ctx context.Context, rec tracking.Record) error {
	if f.insErr != nil {
		return f.insErr
	}
	f.inserted = append(f.inserted, rec)
	return nil
}

func newTestServer(store *fakeStore) *httptest.Server {
	h := New(ingestor.New(testSecret, store, nil), nil)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /resend-webhook", h.Receive)
	mux.HandleFunc("GET /health", h.Health)
	return httptest.NewServer(middleware.CORS(middleware.WebhookCORSConfig())(mux))
}

func signRequest(req *http.Request, body []byte) {
	id, ts := "msg_1", "1714138540"
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(id + "." + ts + "."))
	mac.Write(body)
	req.Header.Set("svix-id", id)
	req.Header.Set("svix-timestamp", ts)
	req.Header.Set("svix-signature", "v1,"+base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	req.Header.Set("Content-Type", "application/json")
}

func TestReceiveOpenedEvent(t *testing.T) {
	store := &fakeStore{contacts: map[string]string{"m1": "c42"}}
	srv := newTestServer(store)
	defer srv.Close()

	body := []byte(`{"type":"email.opened","created_at":"2024-01-01T00:00:00Z","data":{"email_id":"m1","open":{"timestamp":"2024-01-01T00:00:00Z"}}}`)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/resend-webhook", bytes.NewReader(body))
	signRequest(req, body)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var payload struct {
		Success   bool   `json:"success"`
		EventType string `json:"event_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !payload.Success || payload.EventType != "opened" {
		t.Errorf("payload = %+v", payload)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("inserted %d records, want 1", len(store.inserted))
	}
	if store.inserted[0].EventType != tracking.EventOpened {
		t.Errorf("record event type = %q", store.inserted[0].EventType)
	}
}

func TestReceiveStatusCodes(t *testing.T) {
	cases := []struct {
		name       string
		body       string
		tamper     bool
		wantStatus int
	}{
		{
			name:       "bad signature",
			body:       `{"type":"email.opened","created_at":"2024-01-01T00:00:00Z","data":{"email_id":"m1"}}`,
			tamper:     true,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unknown contact",
			body:       `{"type":"email.opened","created_at":"2024-01-01T00:00:00Z","data":{"email_id":"m404"}}`,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "unknown event type",
			body:       `{"type":"email.scheduled","created_at":"2024-01-01T00:00:00Z","data":{"email_id":"m1"}}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed body",
			body:       `{broken`,
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeStore{contacts: map[string]string{"m1": "c42"}}
			srv := newTestServer(store)
			defer srv.Close()

			body := []byte(tc.body)
			req, _ := http.NewRequest(http.MethodPost, srv.URL+"/resend-webhook", bytes.NewReader(body))
			signRequest(req, body)
			if tc.tamper {
				sig := req.Header.Get("svix-signature")
				req.Header.Set("svix-signature", sig[:len(sig)-1]+"x")
			}

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.wantStatus)
			}
			if len(store.inserted) != 0 {
				t.Errorf("inserted %d records, want 0", len(store.inserted))
			}
		})
	}
}

func TestPreflightAllowsSvixHeaders(t *testing.T) {
	srv := newTestServer(&fakeStore{})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/resend-webhook", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	allowed := resp.Header.Get("Access-Control-Allow-Headers")
	for _, h := range []string{"svix-id", "svix-timestamp", "svix-signature", "Content-Type"} {
		if !contains(allowed, h) {
			t.Errorf("Allow-Headers %q missing %q", allowed, h)
		}
	}
}

func contains(list, item string) bool {
	return bytes.Contains([]byte(list), []byte(item))
}

func TestReceivePersistenceFailure(t *testing.T) {
	store := &fakeStore{
		contacts: map[string]string{"m1": "c42"},
		insErr:   apperrors.Newf(apperrors.ErrRepository, 500, "inserting tracking record: connection reset"),
	}
	srv := newTestServer(store)
	defer srv.Close()

	body := []byte(`{"type":"email.opened","created_at":"2024-01-01T00:00:00Z","data":{"email_id":"m1"}}`)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/resend-webhook", bytes.NewReader(body))
	signRequest(req, body)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if payload.Error == "" {
		t.Error("expected error message in body")
	}
	if len(store.inserted) != 0 {
		t.Errorf("inserted %d records, want 0", len(store.inserted))
	}
}

func TestReceiveOversizedBody(t *testing.T) {
	store := &fakeStore{contacts: map[string]string{"m1": "c42"}}
	srv := newTestServer(store)
	defer srv.Close()

	// One byte over the cap: the read must fail as a bad payload, not get
	// truncated into a signature mismatch.
	body := bytes.Repeat([]byte("a"), 1<<20+1)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/resend-webhook", bytes.NewReader(body))
	signRequest(req, body)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if len(store.inserted) != 0 {
		t.Errorf("inserted %d records, want 0", len(store.inserted))
	}
}
