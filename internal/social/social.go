// Package social implements the connections graph (component C8): directed
// follow/connect requests that auto-accept against a public target or sit
// pending against a private one, and the privacy projection that gates how
// much of a user's profile a viewer sees.
package social

import (
	"context"
	"database/sql"
	"time"

	"github.com/fitbhag/ticketing/backend/internal/apperr"
	"github.com/fitbhag/ticketing/backend/internal/models"
	"github.com/google/uuid"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store { return &Store{db: db} }

// Request creates a directed edge from requesterID to targetID. It
// auto-accepts against a public target and sits pending against a private
// one — targetIsPrivate is passed in by the caller, which already has the
// target's User row loaded.
func (s *Store) Request(ctx context.Context, requesterID, targetID string, targetIsPrivate bool) (*models.Connection, error) {
	if requesterID == targetID {
		return nil, apperr.Validation("SelfConnection", "target_id", "cannot connect to yourself")
	}

	connected, err := s.IsConnected(ctx, requesterID, targetID)
	if err != nil {
		return nil, err
	}
	if connected {
		return nil, apperr.New(apperr.CategoryBusinessLogic, "AlreadyConnected", "accepted edge already exists", "you're already connected")
	}

	pending, err := s.edge(ctx, requesterID, targetID, models.ConnectionPending)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, apperr.New(apperr.CategoryBusinessLogic, "AlreadyPending", "connection request already pending", "your request is still pending")
	}

	status := models.ConnectionAccepted
	if targetIsPrivate {
		status = models.ConnectionPending
	}
	now := time.Now().UTC()
	c := &models.Connection{
		ID: uuid.NewString(), RequesterID: requesterID, TargetID: targetID,
		Status: status, CreatedAt: now, UpdatedAt: now,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO connections (id, requester_id, target_id, status, created_at, updated_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.RequesterID, c.TargetID, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, apperr.Database("ConnectionInsertFailed", err)
	}
	return c, nil
}

// Accept transitions a pending edge to accepted. Only the target of the
// edge may accept it.
func (s *Store) Accept(ctx context.Context, edgeID, actorID string) (*models.Connection, error) {
	c, err := s.get(ctx, edgeID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.ConnectionPending {
		return nil, apperr.New(apperr.CategoryBusinessLogic, "NotPending", "edge is not pending", "this request is no longer pending")
	}
	if c.TargetID != actorID {
		return nil, apperr.New(apperr.CategoryAuthorization, "NotEdgeTarget", "actor is not the edge target", "you can't accept this request")
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `UPDATE connections SET status=?, updated_at=? WHERE id=?`, models.ConnectionAccepted, now, edgeID)
	if err != nil {
		return nil, apperr.Database("ConnectionAcceptFailed", err)
	}
	c.Status = models.ConnectionAccepted
	c.UpdatedAt = now
	return c, nil
}

// Decline deletes a pending edge. Only the target may decline it.
func (s *Store) Decline(ctx context.Context, edgeID, actorID string) error {
	c, err := s.get(ctx, edgeID)
	if err != nil {
		return err
	}
	if c.Status != models.ConnectionPending {
		return apperr.New(apperr.CategoryBusinessLogic, "NotPending", "edge is not pending", "this request is no longer pending")
	}
	if c.TargetID != actorID {
		return apperr.New(apperr.CategoryAuthorization, "NotEdgeTarget", "actor is not the edge target", "you can't decline this request")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE id=?`, edgeID); err != nil {
		return apperr.Database("ConnectionDeclineFailed", err)
	}
	return nil
}

// Disconnect removes any edge between a and b, in either direction and
// regardless of status.
func (s *Store) Disconnect(ctx context.Context, a, b string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM connections WHERE (requester_id=? AND target_id=?) OR (requester_id=? AND target_id=?)`,
		a, b, b, a,
	)
	if err != nil {
		return apperr.Database("ConnectionDisconnectFailed", err)
	}
	return nil
}

// IsConnected reports whether an accepted edge exists between a and b in
// either direction.
func (s *Store) IsConnected(ctx context.Context, a, b string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM connections
		 WHERE status = ? AND ((requester_id=? AND target_id=?) OR (requester_id=? AND target_id=?))`,
		models.ConnectionAccepted, a, b, b, a,
	).Scan(&n)
	if err != nil {
		return false, apperr.Database("ConnectionLookupFailed", err)
	}
	return n > 0, nil
}

// ConnectionsCount returns how many accepted edges a user holds, in either
// direction — the number shown on a profile.
func (s *Store) ConnectionsCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM connections WHERE status = ? AND (requester_id = ? OR target_id = ?)`,
		models.ConnectionAccepted, userID, userID,
	).Scan(&n)
	if err != nil {
		return 0, apperr.Database("ConnectionCountFailed", err)
	}
	return n, nil
}

// Profile builds the privacy-projected view of target as seen by viewerID.
// A public target, a self-view, or a connected viewer sees every field this
// projection carries; everyone else sees only the minimal public subset.
// Phone and email never appear here regardless — the caller never passes
// them in.
func (s *Store) Profile(ctx context.Context, viewerID string, target *models.User, subscribedEvents []string) (*models.ProfileView, error) {
	count, err := s.ConnectionsCount(ctx, target.ID)
	if err != nil {
		return nil, err
	}

	view := &models.ProfileView{
		ID:               target.ID,
		Name:             target.Name,
		PictureURL:       target.PictureURL,
		IsPrivate:        target.IsPrivate,
		ConnectionsCount: count,
	}

	canSeeFull := !target.IsPrivate || viewerID == target.ID
	if !canSeeFull {
		connected, err := s.IsConnected(ctx, viewerID, target.ID)
		if err != nil {
			return nil, err
		}
		canSeeFull = connected
	}
	if canSeeFull {
		view.Bio = target.Bio
		view.StravaLink = target.StravaLink
		view.InstagramID = target.InstagramID
		view.SubscribedEvents = subscribedEvents
	}
	return view, nil
}

func (s *Store) get(ctx context.Context, id string) (*models.Connection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, requester_id, target_id, status, created_at, updated_at FROM connections WHERE id = ?`, id)
	var c models.Connection
	err := row.Scan(&c.ID, &c.RequesterID, &c.TargetID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("ConnectionNotFound", "connection not found")
		}
		return nil, apperr.Database("ConnectionQueryFailed", err)
	}
	return &c, nil
}

// edge looks up the directed edge from->to with the given status, or nil if
// none exists.
func (s *Store) edge(ctx context.Context, from, to string, status models.ConnectionStatus) (*models.Connection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, requester_id, target_id, status, created_at, updated_at
		 FROM connections WHERE requester_id=? AND target_id=? AND status=?`, from, to, status)
	var c models.Connection
	err := row.Scan(&c.ID, &c.RequesterID, &c.TargetID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperr.Database("ConnectionQueryFailed", err)
	}
	return &c, nil
}
