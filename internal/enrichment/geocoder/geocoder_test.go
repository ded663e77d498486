package geocoder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/contactops/contact-pipeline/pkg/config"
)

func newTestClient(srv *httptest.Server) *Client {
	return New(config.GeocoderConfig{
		BaseURL:   srv.URL,
		UserAgent: "contact-pipeline-test/1.0",
		Timeout:   2 * time.Second,
	})
}

func TestLookupParsesCoordinates(t *testing.T) {
	var gotUA, gotQuery, gotFormat, gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotQuery = r.URL.Query().Get("q")
		gotFormat = r.URL.Query().Get("format")
		gotLimit = r.URL.Query().Get("limit")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"lat":"52.5200066","lon":"13.404954"}]`))
	}))
	defer srv.Close()

	result, ok := newTestClient(srv).Lookup(context.Background(), "Alexanderplatz 1, Berlin")
	if !ok {
		t.Fatal("expected lookup to succeed")
	}
	if result.Latitude != 52.5200066 || result.Longitude != 13.404954 {
		t.Errorf("result = %+v", result)
	}
	if gotUA != "contact-pipeline-test/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotQuery != "Alexanderplatz 1, Berlin" {
		t.Errorf("q = %q", gotQuery)
	}
	if gotFormat != "json" || gotLimit != "1" {
		t.Errorf("format = %q, limit = %q", gotFormat, gotLimit)
	}
}

func TestLookupMisses(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "empty result set",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`[]`))
			},
		},
		{
			name: "non-success status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
		},
		{
			name: "malformed response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"not":"an array"}`))
			},
		},
		{
			name: "unparseable coordinates",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`[{"lat":"north","lon":"east"}]`))
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			if result, ok := newTestClient(srv).Lookup(context.Background(), "somewhere"); ok {
				t.Fatalf("expected miss, got %+v", result)
			}
		})
	}
}

func TestLookupSurvivesUnreachableService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	if result, ok := newTestClient(srv).Lookup(context.Background(), "somewhere"); ok {
		t.Fatalf("expected miss, got %+v", result)
	}
}
