// Package contacts provides read/write access to contact rows and the
// tracking table. The surrounding CRUD application owns contact creation;
// this pipeline only resolves contacts, appends tracking records, and writes
// geocode results.
package contacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/contactops/contact-pipeline/internal/tracking"
	apperrors "github.com/contactops/contact-pipeline/pkg/errors"
	"github.com/contactops/contact-pipeline/pkg/postgres"
	"github.com/lib/pq"
)

// fkViolation is the postgres error code for foreign-key violations.
const fkViolation = "23503"

// Contact is the pipeline's view of a contact row. Only the fields the
// pipeline reads or writes are represented.
type Contact struct {
	ID                string
	CompanyAddress    string
	OperatingCities   []string
	Latitude          *float64
	Longitude         *float64
	GeocodedAt        *time.Time
	ProviderMessageID string
}

// Repository implements contact lookups and writes over PostgreSQL.
type Repository struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewRepository creates a Repository backed by the given postgres client.
func NewRepository(db *postgres.Client) *Repository {
	return &Repository{
		db:     db,
		logger: slog.Default().With("component", "contact-repository"),
	}
}

// FindByProviderMessageID resolves a provider message id to a contact id.
// Zero matches and ambiguous matches both yield ErrContactNotFound: a
// tracking record must attach to exactly one contact.
func (r *Repository) FindByProviderMessageID(ctx context.Context, messageID string) (string, error) {
	rows, err := r.db.DB.QueryContext(ctx,
		`SELECT id FROM contacts WHERE provider_message_id = $1 LIMIT 2`, messageID)
	if err != nil {
		return "", apperrors.Newf(apperrors.ErrRepository, http.StatusInternalServerError,
			"querying contact by message id: %v", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", apperrors.Newf(apperrors.ErrRepository, http.StatusInternalServerError,
				"scanning contact id: %v", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", apperrors.Newf(apperrors.ErrRepository, http.StatusInternalServerError,
			"iterating contact rows: %v", err)
	}
	if len(ids) != 1 {
		return "", apperrors.Newf(apperrors.ErrContactNotFound, http.StatusNotFound,
			"no unique contact for message id %s (%d matches)", messageID, len(ids))
	}
	return ids[0], nil
}

// InsertTracking appends one tracking record. The (provider_message_id,
// event_type) conflict key makes redelivery of the same event a no-op, which
// is the repository's idempotency guarantee. A missing contact surfaces as
// ErrContactNotFound via the foreign-key constraint.
func (r *Repository) InsertTracking(ctx context.Context, rec tracking.Record) error {
	eventData, err := json.Marshal(rec.EventData)
	if err != nil {
		return fmt.Errorf("marshaling event data: %w", err)
	}
	_, err = r.db.DB.ExecContext(ctx,
		`INSERT INTO email_tracking (contact_id, provider_message_id, event_type, event_data, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider_message_id, event_type) DO NOTHING`,
		rec.ContactID, rec.ProviderMessageID, string(rec.EventType), eventData, rec.OccurredAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == fkViolation {
			return apperrors.Newf(apperrors.ErrContactNotFound, http.StatusNotFound,
				"contact %s no longer exists", rec.ContactID)
		}
		return apperrors.Newf(apperrors.ErrRepository, http.StatusInternalServerError,
			"inserting tracking record: %v", err)
	}
	return nil
}

// ListNeedingGeocode returns up to limit contacts that still lack
// coordinates, in stable id order so successive runs walk the backlog
// deterministically.
func (r *Repository) ListNeedingGeocode(ctx context.Context, limit int) ([]Contact, error) {
	rows, err := r.db.DB.QueryContext(ctx,
		`SELECT id, COALESCE(company_address, ''), COALESCE(operating_cities, '{}')
		FROM contacts
		WHERE latitude IS NULL OR longitude IS NULL
		ORDER BY id
		LIMIT $1`, limit)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrRepository, http.StatusInternalServerError,
			"listing contacts needing geocode: %v", err)
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.CompanyAddress, pq.Array(&c.OperatingCities)); err != nil {
			return nil, apperrors.Newf(apperrors.ErrRepository, http.StatusInternalServerError,
				"scanning contact row: %v", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Newf(apperrors.ErrRepository, http.StatusInternalServerError,
			"iterating contact rows: %v", err)
	}
	return out, nil
}

// SaveCoordinates writes a successful geocode result. Latest successful
// geocode wins; overlapping runs therefore stay benign.
func (r *Repository) SaveCoordinates(ctx context.Context, id string, lat, lon float64, at time.Time) error {
	res, err := r.db.DB.ExecContext(ctx,
		`UPDATE contacts SET latitude = $2, longitude = $3, geocoded_at = $4 WHERE id = $1`,
		id, lat, lon, at)
	if err != nil {
		return apperrors.Newf(apperrors.ErrRepository, http.StatusInternalServerError,
			"updating contact coordinates: %v", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		r.logger.Warn("geocode write matched no contact", "contact_id", id)
	}
	return nil
}

// Ping verifies the underlying database connection, for readiness checks.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
