package httpapi

import (
	"net/http"

	"github.com/fitbhag/ticketing/backend/internal/apperr"
	"github.com/fitbhag/ticketing/backend/internal/middleware"
	"github.com/fitbhag/ticketing/backend/internal/models"
)

// RequestJoin handles POST /api/join-requests — C9's entry point for an
// approval-gated event's free registration.
func (s *Server) RequestJoin(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterFreeRequest
	if err := decode(r, &req); err != nil {
		respondError(w, apperr.Validation("InvalidJSON", "", "request body is not valid JSON"))
		return
	}
	userID := middleware.GetUserID(r.Context())

	jr, err := s.JoinRequests.Request(r.Context(), userID, req.EventID)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, jr)
}

// ReviewJoinRequest handles POST /api/join-requests/{id}/review — organizer
// accept/reject, enforced upstream by middleware.RequireRole.
func (s *Server) ReviewJoinRequest(w http.ResponseWriter, r *http.Request) {
	var req models.ReviewJoinRequestInput
	if err := decode(r, &req); err != nil {
		respondError(w, apperr.Validation("InvalidJSON", "", "request body is not valid JSON"))
		return
	}
	if req.Action != "accept" && req.Action != "reject" {
		respondError(w, apperr.Validation("InvalidAction", "action", "action must be accept or reject"))
		return
	}
	reviewerID := middleware.GetUserID(r.Context())

	jr, err := s.JoinRequests.Review(r.Context(), r.PathValue("id"), reviewerID, req.Action == "accept")
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, jr)
}

// ListJoinRequests handles GET /api/events/{id}/join-requests — an
// organizer's review queue for one event.
func (s *Server) ListJoinRequests(w http.ResponseWriter, r *http.Request) {
	list, err := s.JoinRequests.ListForEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, list)
}
