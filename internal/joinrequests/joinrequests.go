// Package joinrequests implements event join requests (component C9): the
// approval workflow an approval-gated event's free registration goes
// through instead of issuing a ticket immediately.
package joinrequests

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/fitbhag/ticketing/backend/internal/apperr"
	"github.com/fitbhag/ticketing/backend/internal/models"
	"github.com/google/uuid"
)

// EventLookup narrows the event-registry dependency to what's needed here.
type EventLookup interface {
	Get(ctx context.Context, id string) (*models.Event, error)
}

// Issuer is the slice of the registration engine needed to turn an
// accepted request into a ticket.
type Issuer interface {
	IssueApprovedFree(ctx context.Context, userID string, ev *models.Event) (*models.Ticket, error)
}

type Store struct {
	db     *sql.DB
	events EventLookup
	issuer Issuer
}

func New(db *sql.DB, events EventLookup, issuer Issuer) *Store {
	return &Store{db: db, events: events, issuer: issuer}
}

// Request creates a join request for an approval-gated event, or returns
// the caller's existing one: a rejected request is revived to pending, and
// a pending or accepted one is returned unchanged. It rejects events that
// don't require approval — those register directly through
// internal/registration.
func (s *Store) Request(ctx context.Context, userID, eventID string) (*models.EventJoinRequest, error) {
	ev, err := s.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !ev.RequiresApproval {
		return nil, apperr.Validation("NoApprovalNeeded", "event_id", "this event does not require approval — register directly")
	}
	if !ev.IsActive || !ev.RegistrationOpen {
		return nil, apperr.New(apperr.CategoryBusinessLogic, "RegistrationClosed", "registration closed", "registration for this event has closed")
	}

	existing, err := s.getByUserAndEvent(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status != models.JoinRequestRejected {
			return existing, nil
		}
		now := time.Now().UTC()
		_, err := s.db.ExecContext(ctx,
			`UPDATE event_join_requests SET status=?, requested_at=?, reviewed_at=NULL, reviewed_by='' WHERE id=?`,
			models.JoinRequestPending, now, existing.ID,
		)
		if err != nil {
			return nil, apperr.Database("JoinRequestReviveFailed", err)
		}
		existing.Status = models.JoinRequestPending
		existing.RequestedAt = now
		existing.ReviewedAt = nil
		existing.ReviewedBy = ""
		return existing, nil
	}

	req := models.EventJoinRequest{
		ID:          uuid.NewString(),
		UserID:      userID,
		EventID:     eventID,
		Status:      models.JoinRequestPending,
		RequestedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO event_join_requests (id, user_id, event_id, status, requested_at) VALUES (?,?,?,?,?)`,
		req.ID, req.UserID, req.EventID, req.Status, req.RequestedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.New(apperr.CategoryBusinessLogic, "AlreadyRequested", "join request already exists", "you've already requested to join this event")
		}
		return nil, apperr.Database("JoinRequestInsertFailed", err)
	}
	return &req, nil
}

func (s *Store) getByUserAndEvent(ctx context.Context, userID, eventID string) (*models.EventJoinRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, event_id, status, requested_at, reviewed_at, reviewed_by
		 FROM event_join_requests WHERE user_id = ? AND event_id = ?`, userID, eventID)
	req, err := scan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperr.Database("JoinRequestQueryFailed", err)
	}
	return req, nil
}

// Review accepts or rejects a pending request. Accepting issues a free
// ticket via the registration engine's approved-free path.
func (s *Store) Review(ctx context.Context, requestID, reviewerID string, accept bool) (*models.EventJoinRequest, error) {
	req, err := s.get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.JoinRequestPending {
		return nil, apperr.New(apperr.CategoryBusinessLogic, "AlreadyReviewed", "join request already reviewed", "this request has already been reviewed")
	}

	newStatus := models.JoinRequestRejected
	if accept {
		newStatus = models.JoinRequestAccepted
	}
	now := time.Now().UTC()

	if accept {
		ev, err := s.events.Get(ctx, req.EventID)
		if err != nil {
			return nil, err
		}
		if _, err := s.issuer.IssueApprovedFree(ctx, req.UserID, ev); err != nil {
			return nil, err
		}
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE event_join_requests SET status=?, reviewed_at=?, reviewed_by=? WHERE id=?`,
		newStatus, now, reviewerID, requestID,
	)
	if err != nil {
		return nil, apperr.Database("JoinRequestReviewFailed", err)
	}

	req.Status = newStatus
	req.ReviewedAt = &now
	req.ReviewedBy = reviewerID
	return req, nil
}

// ListForEvent returns every join request for an event, newest first — an
// organizer's review queue.
func (s *Store) ListForEvent(ctx context.Context, eventID string) ([]models.EventJoinRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, event_id, status, requested_at, reviewed_at, reviewed_by
		 FROM event_join_requests WHERE event_id = ? ORDER BY requested_at DESC`, eventID)
	if err != nil {
		return nil, apperr.Database("JoinRequestListFailed", err)
	}
	defer rows.Close()

	out := []models.EventJoinRequest{}
	for rows.Next() {
		req, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

func (s *Store) get(ctx context.Context, id string) (*models.EventJoinRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, event_id, status, requested_at, reviewed_at, reviewed_by
		 FROM event_join_requests WHERE id = ?`, id)
	req, err := scan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("JoinRequestNotFound", "join request not found")
		}
		return nil, apperr.Database("JoinRequestQueryFailed", err)
	}
	return req, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(r rowScanner) (*models.EventJoinRequest, error) {
	var req models.EventJoinRequest
	var reviewedAt sql.NullTime
	var reviewedBy sql.NullString
	err := r.Scan(&req.ID, &req.UserID, &req.EventID, &req.Status, &req.RequestedAt, &reviewedAt, &reviewedBy)
	if err != nil {
		return nil, err
	}
	if reviewedAt.Valid {
		req.ReviewedAt = &reviewedAt.Time
	}
	req.ReviewedBy = reviewedBy.String
	return &req, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE")
}
