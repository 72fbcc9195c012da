// Package events implements the event registry (component C3): creating,
// listing, updating events, the two-slot featured-events model, and the
// background expiry sweep.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"regexp"
	"time"

	"github.com/fitbhag/ticketing/backend/internal/apperr"
	"github.com/fitbhag/ticketing/backend/internal/cache"
	"github.com/fitbhag/ticketing/backend/internal/models"
	"github.com/google/uuid"
)

const activeListCacheKey = "events:active_list"

// Field bounds mirror the original service's input validator.
const (
	maxTitleLength       = 100
	maxDescriptionLength = 2000
	maxCityLength        = 50
	maxVenueLength       = 100
)

var bannerURLPattern = regexp.MustCompile(`^https?://.+\.(jpg|jpeg|png|gif|webp)$`)

// Store implements C3 against a SQLite database, invalidating a small
// cache of rendered listings on every write. Cache reads are advisory —
// a miss or error just means the caller falls through to the database.
type Store struct {
	db    *sql.DB
	cache cache.Cache
}

func New(db *sql.DB, c cache.Cache) *Store {
	return &Store{db: db, cache: c}
}

// Create inserts a new event. RegistrationOpen defaults to true unless the
// request says otherwise.
func (s *Store) Create(ctx context.Context, req models.CreateEventRequest) (*models.Event, error) {
	if req.Title == "" {
		return nil, apperr.Validation("TitleRequired", "title", "title is required")
	}
	if len(req.Title) > maxTitleLength {
		return nil, apperr.Validation("TitleTooLong", "title", "title must be at most 100 characters")
	}
	if len(req.Description) > maxDescriptionLength {
		return nil, apperr.Validation("DescriptionTooLong", "description", "description must be at most 2000 characters")
	}
	if len(req.City) > maxCityLength {
		return nil, apperr.Validation("CityTooLong", "city", "city must be at most 50 characters")
	}
	if len(req.Venue) > maxVenueLength {
		return nil, apperr.Validation("VenueTooLong", "venue", "venue must be at most 100 characters")
	}
	if req.BannerURL != "" && !bannerURLPattern.MatchString(req.BannerURL) {
		return nil, apperr.Validation("InvalidBannerURL", "banner_url", "banner_url must be an http(s) link to a jpg, jpeg, png, gif, or webp image")
	}
	if !req.EndAt.After(req.StartAt) {
		return nil, apperr.Validation("InvalidTimeRange", "end_at", "end_at must be after start_at")
	}
	if req.EndAt.Before(time.Now().UTC()) {
		return nil, apperr.Validation("PastEndDate", "end_at", "end_at cannot be in the past")
	}
	if req.PriceMinorUnits < 0 {
		return nil, apperr.Validation("InvalidPrice", "price_minor_units", "price cannot be negative")
	}

	now := time.Now().UTC()
	ev := models.Event{
		ID:               uuid.NewString(),
		Title:            req.Title,
		Description:      req.Description,
		City:             req.City,
		Venue:            req.Venue,
		StartAt:          req.StartAt,
		EndAt:            req.EndAt,
		PriceMinorUnits:  req.PriceMinorUnits,
		IsActive:         true,
		RequiresApproval: req.RequiresApproval,
		RegistrationOpen: true,
		BannerURL:        req.BannerURL,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, title, description, city, venue, start_at, end_at,
		    price_minor_units, is_active, requires_approval, registration_open,
		    banner_url, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		ev.ID, ev.Title, ev.Description, ev.City, ev.Venue, ev.StartAt, ev.EndAt,
		ev.PriceMinorUnits, ev.IsActive, ev.RequiresApproval, ev.RegistrationOpen,
		ev.BannerURL, ev.CreatedAt, ev.UpdatedAt,
	)
	if err != nil {
		return nil, apperr.Database("EventInsertFailed", err)
	}

	s.invalidateList(ctx)
	return &ev, nil
}

// Get loads a single event by id.
func (s *Store) Get(ctx context.Context, id string) (*models.Event, error) {
	ev, err := s.scanOne(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// List returns every active event, soonest start first. Non-critical reads
// go through the cache (five minutes under events:active_list); a miss or
// decode failure falls back to the database transparently.
func (s *Store) List(ctx context.Context) ([]models.Event, error) {
	if s.cache != nil {
		if raw, ok := s.cache.Get(ctx, activeListCacheKey); ok {
			var cached []models.Event
			if json.Unmarshal([]byte(raw), &cached) == nil {
				return cached, nil
			}
		}
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE is_active = 1 ORDER BY start_at ASC`)
	if err != nil {
		return nil, apperr.Database("EventListFailed", err)
	}
	defer rows.Close()

	out := []models.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, apperr.Database("EventScanFailed", err)
		}
		out = append(out, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if b, err := json.Marshal(out); err == nil && s.cache != nil {
		s.cache.Set(ctx, activeListCacheKey, string(b), 5*time.Minute)
	}
	return out, nil
}

// Update applies a partial patch. Only non-nil fields are changed.
func (s *Store) Update(ctx context.Context, id string, req models.UpdateEventRequest) (*models.Event, error) {
	ev, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		ev.Title = *req.Title
	}
	if req.Description != nil {
		ev.Description = *req.Description
	}
	if req.IsActive != nil {
		ev.IsActive = *req.IsActive
	}
	if req.RegistrationOpen != nil {
		ev.RegistrationOpen = *req.RegistrationOpen
	}
	if req.StartAt != nil {
		ev.StartAt = *req.StartAt
	}
	if req.EndAt != nil {
		ev.EndAt = *req.EndAt
	}
	if !ev.EndAt.After(ev.StartAt) {
		return nil, apperr.Validation("InvalidTimeRange", "end_at", "end_at must be after start_at")
	}
	ev.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE events SET title=?, description=?, is_active=?, registration_open=?,
		    start_at=?, end_at=?, updated_at=? WHERE id=?`,
		ev.Title, ev.Description, ev.IsActive, ev.RegistrationOpen,
		ev.StartAt, ev.EndAt, ev.UpdatedAt, id,
	)
	if err != nil {
		return nil, apperr.Database("EventUpdateFailed", err)
	}

	s.invalidateList(ctx)
	return ev, nil
}

// Delete removes an event and every record that only makes sense attached
// to it: its tickets (cascading further to validation_history via the
// schema's own ON DELETE CASCADE) and its received-qr log, plus clearing
// any featured slot that pointed at it. All in one transaction so a crash
// midway never leaves a dangling reference.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Database("EventDeleteTxFailed", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM received_qr_tokens WHERE event_id = ?`, id); err != nil {
		return apperr.Database("EventDeleteFailed", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE featured_slots SET event_id = NULL, updated_at = CURRENT_TIMESTAMP WHERE event_id = ?`, id,
	); err != nil {
		return apperr.Database("EventDeleteFailed", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tickets WHERE event_id = ?`, id); err != nil {
		return apperr.Database("EventDeleteFailed", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id); err != nil {
		return apperr.Database("EventDeleteFailed", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Database("EventDeleteCommitFailed", err)
	}
	s.invalidateList(ctx)
	return nil
}

// GetAll returns every event regardless of activity state, newest first.
func (s *Store) GetAll(ctx context.Context) ([]models.Event, error) {
	return s.queryAll(ctx, `SELECT `+eventColumns+` FROM events ORDER BY created_at DESC`)
}

// GetRecent returns the most recently created events, newest first, capped
// at limit.
func (s *Store) GetRecent(ctx context.Context, limit int) ([]models.Event, error) {
	return s.queryAll(ctx, `SELECT `+eventColumns+` FROM events ORDER BY created_at DESC LIMIT ?`, limit)
}

func (s *Store) queryAll(ctx context.Context, query string, args ...any) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Database("EventListFailed", err)
	}
	defer rows.Close()

	out := []models.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, apperr.Database("EventScanFailed", err)
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

// ExpireSweep deactivates events whose end_at is at least an hour past, so List stops returning them without a cron external to the
// process. Intended to be called periodically by cmd/server.
func (s *Store) ExpireSweep(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-time.Hour)
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET is_active = 0, updated_at = CURRENT_TIMESTAMP WHERE is_active = 1 AND end_at <= ?`,
		cutoff,
	)
	if err != nil {
		return 0, apperr.Database("EventSweepFailed", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.invalidateList(ctx)
		slog.Info("events expired by sweep", "count", n)
	}
	return n, nil
}

// ---- Featured slots ----

// SetFeatured assigns eventID to slot, replacing whatever was there.
func (s *Store) SetFeatured(ctx context.Context, slot models.FeaturedSlotName, eventID string) error {
	if _, err := s.Get(ctx, eventID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO featured_slots (slot, event_id, updated_at) VALUES (?,?,CURRENT_TIMESTAMP)
		 ON CONFLICT(slot) DO UPDATE SET event_id=excluded.event_id, updated_at=excluded.updated_at`,
		string(slot), eventID,
	)
	if err != nil {
		return apperr.Database("FeaturedSlotSetFailed", err)
	}
	return nil
}

// ClearFeatured empties slot.
func (s *Store) ClearFeatured(ctx context.Context, slot models.FeaturedSlotName) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO featured_slots (slot, event_id, updated_at) VALUES (?, NULL, CURRENT_TIMESTAMP)
		 ON CONFLICT(slot) DO UPDATE SET event_id=NULL, updated_at=excluded.updated_at`,
		string(slot),
	)
	if err != nil {
		return apperr.Database("FeaturedSlotClearFailed", err)
	}
	return nil
}

// Featured returns the two named slots. A slot pointing at an event that no
// longer exists or is inactive is treated as empty and cleared on read —
// the dangling reference never surfaces to a caller.
func (s *Store) Featured(ctx context.Context) (models.FeaturedSlots, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slot, event_id FROM featured_slots`)
	if err != nil {
		return models.FeaturedSlots{}, apperr.Database("FeaturedSlotQueryFailed", err)
	}
	defer rows.Close()

	raw := map[string]sql.NullString{}
	for rows.Next() {
		var slot string
		var eventID sql.NullString
		if err := rows.Scan(&slot, &eventID); err != nil {
			return models.FeaturedSlots{}, apperr.Database("FeaturedSlotScanFailed", err)
		}
		raw[slot] = eventID
	}

	out := models.FeaturedSlots{}
	out.Featured1 = s.resolveSlot(ctx, models.FeaturedSlot1, raw[string(models.FeaturedSlot1)])
	out.Featured2 = s.resolveSlot(ctx, models.FeaturedSlot2, raw[string(models.FeaturedSlot2)])
	return out, nil
}

func (s *Store) resolveSlot(ctx context.Context, slot models.FeaturedSlotName, ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	ev, err := s.Get(ctx, ns.String)
	if err != nil || !ev.IsActive {
		_ = s.ClearFeatured(ctx, slot)
		return nil
	}
	id := ev.ID
	return &id
}

func (s *Store) invalidateList(ctx context.Context) {
	if s.cache != nil {
		s.cache.Delete(ctx, activeListCacheKey)
	}
}

const eventColumns = `id, title, description, city, venue, start_at, end_at,
	price_minor_units, is_active, requires_approval, registration_open,
	banner_url, coordinate_lat, coordinate_long, address_url,
	organizer_name, organizer_logo_url, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (*models.Event, error) {
	var ev models.Event
	err := r.Scan(
		&ev.ID, &ev.Title, &ev.Description, &ev.City, &ev.Venue, &ev.StartAt, &ev.EndAt,
		&ev.PriceMinorUnits, &ev.IsActive, &ev.RequiresApproval, &ev.RegistrationOpen,
		&ev.BannerURL, &ev.CoordinateLat, &ev.CoordinateLong, &ev.AddressURL,
		&ev.OrganizerName, &ev.OrganizerLogoURL, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (s *Store) scanOne(ctx context.Context, query string, args ...any) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	ev, err := scanEvent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("EventNotFound", "event not found")
		}
		return nil, apperr.Database("EventQueryFailed", err)
	}
	return ev, nil
}
