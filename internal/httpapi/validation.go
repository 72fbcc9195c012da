package httpapi

import (
	"net/http"

	"github.com/fitbhag/ticketing/backend/internal/apperr"
	"github.com/fitbhag/ticketing/backend/internal/models"
)

// ValidateTicket handles POST /api/validations — the scanner-facing C6
// endpoint. Scanning is organizer/admin territory, enforced upstream by
// middleware.RequireRole.
func (s *Server) ValidateTicket(w http.ResponseWriter, r *http.Request) {
	var req models.ValidateTicketRequest
	if err := decode(r, &req); err != nil {
		respondError(w, apperr.Validation("InvalidJSON", "", "request body is not valid JSON"))
		return
	}
	if req.QRToken == "" || req.EventID == "" {
		respondError(w, apperr.Validation("MissingFields", "", "qr_token and event_id are required"))
		return
	}

	res, err := s.Validation.Validate(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, res)
}
