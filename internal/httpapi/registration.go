package httpapi

import (
	"net/http"

	"github.com/fitbhag/ticketing/backend/internal/apperr"
	"github.com/fitbhag/ticketing/backend/internal/middleware"
	"github.com/fitbhag/ticketing/backend/internal/models"
)

// RegisterFree handles POST /api/registrations/free — C4's free-registration
// entry point. An approval-gated event fails here with ApprovalRequired;
// the client should fall back to requesting to join (internal/joinrequests).
func (s *Server) RegisterFree(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterFreeRequest
	if err := decode(r, &req); err != nil {
		respondError(w, apperr.Validation("InvalidJSON", "", "request body is not valid JSON"))
		return
	}
	userID := middleware.GetUserID(r.Context())

	ticket, err := s.Registration.RegisterFree(r.Context(), userID, req.EventID)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, ticket)
}

// ListMyTickets handles GET /api/tickets/mine.
func (s *Server) ListMyTickets(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	tickets, err := s.Registration.ListForUser(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, tickets)
}

// GetTicket handles GET /api/tickets/{id}. A ticket is only visible to its
// owner — anyone else gets NotFound rather than leaking that the id exists.
func (s *Server) GetTicket(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	ticket, err := s.Registration.GetTicket(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	if ticket.UserID != userID {
		respondError(w, apperr.NotFound("TicketNotFound", "ticket not found"))
		return
	}
	respond(w, http.StatusOK, ticket)
}
