// Package scheduler drives the batch geocoding job: it selects a bounded
// batch of under-located contacts and walks each one through the
// address-then-city fallback chain, pacing every external lookup.
package scheduler

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/contactops/contact-pipeline/internal/contacts"
	"github.com/contactops/contact-pipeline/internal/enrichment/geocoder"
	"github.com/contactops/contact-pipeline/pkg/kafka"
	"github.com/contactops/contact-pipeline/pkg/metrics"
	"github.com/contactops/contact-pipeline/pkg/tracing"
)

// ContactSource selects enrichment candidates and persists results. The
// postgres repository implements it; tests substitute fakes.
type ContactSource interface {
	ListNeedingGeocode(ctx context.Context, limit int) ([]contacts.Contact, error)
	SaveCoordinates(ctx context.Context, id string, lat, lon float64, at time.Time) error
}

// Pacer spaces successive external lookups.
type Pacer interface {
	Wait(ctx context.Context)
}

// EventPublisher fans successful enrichments out to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Report aggregates the outcome counts of one run.
type Report struct {
	Processed  int `json:"processed"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// EnrichedEvent is published for every contact that gains coordinates.
type EnrichedEvent struct {
	ContactID  string    `json:"contact_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Source     string    `json:"source"`
	GeocodedAt time.Time `json:"geocoded_at"`
}

// Scheduler runs enrichment batches. A run processes its contacts strictly
// sequentially; the external geocoding service is rate-limited, so
// concurrency across contacts is deliberately avoided.
type Scheduler struct {
	store     ContactSource
	geo       geocoder.Lookuper
	pacer     Pacer
	publisher EventPublisher
	batchSize int
	metrics   *metrics.Metrics
	now       func() time.Time
	logger    *slog.Logger
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithPublisher attaches an event publisher for enrichment fan-out.
func WithPublisher(p EventPublisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

// New creates a Scheduler processing at most batchSize contacts per run.
func New(store ContactSource, geo geocoder.Lookuper, pacer Pacer, batchSize int, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:     store,
		geo:       geo,
		pacer:     pacer,
		batchSize: batchSize,
		now:       time.Now,
		logger:    slog.Default().With("component", "enrichment-scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one enrichment batch and returns aggregate counts. Only a
// repository read failure is returned as an error; per-contact failures are
// counted and never abort the batch. A contact that stays unresolved remains
// eligible for the next run.
func (s *Scheduler) Run(ctx context.Context) (Report, error) {
	ctx, span := tracing.StartSpan(ctx, "enrichment.run", strconv.FormatInt(s.now().UnixNano(), 36))
	defer func() {
		span.End()
		span.Log()
	}()

	batch, err := s.store.ListNeedingGeocode(ctx, s.batchSize)
	if err != nil {
		return Report{}, err
	}

	var report Report
	for _, contact := range batch {
		report.Processed++
		if s.enrich(ctx, contact) {
			report.Successful++
		} else {
			report.Failed++
		}
	}

	span.SetAttr("processed", report.Processed)
	span.SetAttr("successful", report.Successful)
	span.SetAttr("failed", report.Failed)

	if s.metrics != nil {
		s.metrics.EnrichmentRunsTotal.Inc()
		s.metrics.EnrichmentBatchSize.Observe(float64(report.Processed))
	}
	s.logger.Info("enrichment run complete",
		"processed", report.Processed,
		"successful", report.Successful,
		"failed", report.Failed,
	)
	return report, nil
}

// enrich walks one contact through the fallback chain: postal address first,
// then the first operating city. Every lookup pays the pace interval
// regardless of outcome. Reports whether coordinates were persisted.
func (s *Scheduler) enrich(ctx context.Context, contact contacts.Contact) bool {
	ctx, span := tracing.StartChildSpan(ctx, "enrichment.contact")
	span.SetAttr("contact_id", contact.ID)
	defer span.End()

	result, source := s.resolve(ctx, contact)
	if result == nil {
		s.logger.Debug("contact left unresolved",
			"contact_id", contact.ID,
			"has_address", contact.CompanyAddress != "",
			"city_count", len(contact.OperatingCities),
		)
		return false
	}

	geocodedAt := s.now().UTC()
	if err := s.store.SaveCoordinates(ctx, contact.ID, result.Latitude, result.Longitude, geocodedAt); err != nil {
		s.logger.Error("persisting geocode result",
			"contact_id", contact.ID,
			"error", err,
		)
		return false
	}
	if s.metrics != nil {
		s.metrics.ContactsGeocoded.Inc()
	}

	if s.publisher != nil {
		event := kafka.Event{
			Key: contact.ID,
			Value: EnrichedEvent{
				ContactID:  contact.ID,
				Latitude:   result.Latitude,
				Longitude:  result.Longitude,
				Source:     source,
				GeocodedAt: geocodedAt,
			},
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			// Fan-out is best-effort: coordinates are already persisted.
			s.logger.Error("failed to publish enrichment event",
				"contact_id", contact.ID,
				"error", err,
			)
		}
	}
	return true
}

// resolve tries the fallback chain and returns the first hit along with the
// query source ("address" or "city"), or nil when every attempt missed.
func (s *Scheduler) resolve(ctx context.Context, contact contacts.Contact) (*geocoder.Result, string) {
	if contact.CompanyAddress != "" {
		s.pacer.Wait(ctx)
		result, ok := s.geo.Lookup(ctx, contact.CompanyAddress)
		s.countLookup("address", ok)
		if ok {
			return result, "address"
		}
	}
	if len(contact.OperatingCities) > 0 {
		s.pacer.Wait(ctx)
		result, ok := s.geo.Lookup(ctx, contact.OperatingCities[0])
		s.countLookup("city", ok)
		if ok {
			return result, "city"
		}
	}
	return nil, ""
}

func (s *Scheduler) countLookup(source string, ok bool) {
	if s.metrics == nil {
		return
	}
	outcome := "miss"
	if ok {
		outcome = "hit"
	}
	s.metrics.GeocodeLookupsTotal.WithLabelValues(source, outcome).Inc()
}
