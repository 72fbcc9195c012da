package httpapi

import (
	"net/http"
	"strconv"

	"github.com/fitbhag/ticketing/backend/internal/apperr"
	"github.com/fitbhag/ticketing/backend/internal/middleware"
)

// GetMyPoints handles GET /api/points/mine — balance plus transaction
// history for the authenticated caller.
func (s *Server) GetMyPoints(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	bal, err := s.Points.Balance(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, bal)
}

// DeductPoints handles POST /api/points/{user_id}/deduct — admin-only,
// enforced upstream by middleware.RequireRole.
func (s *Server) DeductPoints(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points int64  `json:"points"`
		Reason string `json:"reason"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, apperr.Validation("InvalidJSON", "", "request body is not valid JSON"))
		return
	}
	if req.Points <= 0 {
		respondError(w, apperr.Validation("InvalidPoints", "points", "points must be positive"))
		return
	}

	actor := middleware.GetUserID(r.Context())
	targetUserID := r.PathValue("user_id")

	if err := s.Points.Deduct(r.Context(), targetUserID, req.Points, req.Reason, actor); err != nil {
		respondError(w, err)
		return
	}

	bal, err := s.Points.Balance(r.Context(), targetUserID)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, bal)
}

// ListPointsTransactions handles GET /api/points/transactions — admin-only,
// enforced upstream by middleware.RequireRole. Accepts optional ?user_id=
// and ?limit= query parameters.
func (s *Server) ListPointsTransactions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, apperr.Validation("InvalidLimit", "limit", "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	txs, err := s.Points.ListTransactions(r.Context(), userID, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, txs)
}
