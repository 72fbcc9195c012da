package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/fitbhag/ticketing/backend/internal/apperr"
	"github.com/fitbhag/ticketing/backend/internal/middleware"
	"github.com/fitbhag/ticketing/backend/internal/models"
)

// RequestConnection handles POST /api/connections — C8's request entry
// point. The target's privacy flag decides whether the edge auto-accepts.
func (s *Server) RequestConnection(w http.ResponseWriter, r *http.Request) {
	var req models.ConnectionRequestInput
	if err := decode(r, &req); err != nil {
		respondError(w, apperr.Validation("InvalidJSON", "", "request body is not valid JSON"))
		return
	}
	requesterID := middleware.GetUserID(r.Context())

	target, err := s.loadUser(r.Context(), req.TargetID)
	if err != nil {
		respondError(w, err)
		return
	}

	c, err := s.Social.Request(r.Context(), requesterID, target.ID, target.IsPrivate)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, c)
}

// AcceptConnection handles POST /api/connections/{id}/accept.
func (s *Server) AcceptConnection(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetUserID(r.Context())
	c, err := s.Social.Accept(r.Context(), r.PathValue("id"), actorID)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, c)
}

// DeclineConnection handles POST /api/connections/{id}/decline.
func (s *Server) DeclineConnection(w http.ResponseWriter, r *http.Request) {
	actorID := middleware.GetUserID(r.Context())
	if err := s.Social.Decline(r.Context(), r.PathValue("id"), actorID); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

// Disconnect handles DELETE /api/connections/{user_id}.
func (s *Server) Disconnect(w http.ResponseWriter, r *http.Request) {
	selfID := middleware.GetUserID(r.Context())
	other := r.PathValue("user_id")
	if err := s.Social.Disconnect(r.Context(), selfID, other); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

// GetProfile handles GET /api/users/{id}/profile. OptionalAuthenticate runs
// upstream, so an anonymous viewer always sees the public projection.
func (s *Server) GetProfile(w http.ResponseWriter, r *http.Request) {
	viewerID := middleware.GetUserID(r.Context())

	target, err := s.loadUser(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}

	eventIDs, err := s.subscribedEventIDs(r.Context(), target.ID)
	if err != nil {
		respondError(w, err)
		return
	}

	view, err := s.Social.Profile(r.Context(), viewerID, target, eventIDs)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, view)
}

// loadUser fetches the fields of a user that social.Store needs to build a
// profile projection or decide whether a connection request auto-accepts.
func (s *Server) loadUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, name, picture_url, is_private, bio, strava_link, instagram_id FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Name, &u.PictureURL, &u.IsPrivate, &u.Bio, &u.StravaLink, &u.InstagramID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("UserNotFound", "user not found")
		}
		return nil, apperr.Database("UserLookupFailed", err)
	}
	return &u, nil
}

// subscribedEventIDs returns the ids of events a user holds a ticket for,
// the normalised stand-in for the user model's subscribed_events field.
func (s *Server) subscribedEventIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT event_id FROM tickets WHERE user_id = ?`, userID)
	if err != nil {
		return nil, apperr.Database("SubscribedEventsQueryFailed", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Database("SubscribedEventsScanFailed", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
