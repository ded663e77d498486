// Package geocoder issues rate-limited free-text lookups against a
// Nominatim-compatible address-resolution service.
package geocoder

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/contactops/contact-pipeline/pkg/config"
)

// Result is a resolved coordinate pair.
type Result struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Client performs single, non-retrying lookups over HTTP. The underlying
// http.Client carries a mandatory timeout so a stalled upstream cannot hang
// the enrichment run.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	logger    *slog.Logger
}

// New creates a geocoder Client from configuration.
func New(cfg config.GeocoderConfig) *Client {
	return &Client{
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: cfg.Timeout},
		logger:    slog.Default().With("component", "geocoder"),
	}
}

// place is the subset of the search response the client reads. The service
// returns coordinates as decimal strings.
type place struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Lookup resolves a free-text address or place name to coordinates. It
// returns (nil, false) on any failure: non-success status, empty result set,
// network or parse errors. Misses are logged, never raised; retry policy
// belongs to the caller.
func (c *Client) Lookup(ctx context.Context, query string) (*Result, bool) {
	u := c.baseURL + "/search?q=" + url.QueryEscape(query) + "&format=json&limit=1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		c.logger.Error("building geocode request", "query", query, "error", err)
		return nil, false
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("geocode request failed", "query", query, "error", err)
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("geocode service returned non-success status",
			"query", query,
			"status", resp.StatusCode,
		)
		return nil, false
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		c.logger.Warn("decoding geocode response", "query", query, "error", err)
		return nil, false
	}
	if len(places) == 0 {
		c.logger.Debug("geocode lookup returned no results", "query", query)
		return nil, false
	}

	lat, latErr := strconv.ParseFloat(places[0].Lat, 64)
	lon, lonErr := strconv.ParseFloat(places[0].Lon, 64)
	if latErr != nil || lonErr != nil {
		c.logger.Warn("geocode response carried unparseable coordinates",
			"query", query,
			"lat", places[0].Lat,
			"lon", places[0].Lon,
		)
		return nil, false
	}

	return &Result{Latitude: lat, Longitude: lon}, true
}
