package httpapi

import (
	"net/http"
	"strconv"

	"github.com/fitbhag/ticketing/backend/internal/apperr"
	"github.com/fitbhag/ticketing/backend/internal/models"
)

// CreateEvent handles POST /api/events. Organizer/admin only — enforced by
// middleware.RequireRole upstream.
func (s *Server) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req models.CreateEventRequest
	if err := decode(r, &req); err != nil {
		respondError(w, apperr.Validation("InvalidJSON", "", "request body is not valid JSON"))
		return
	}
	ev, err := s.Events.Create(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, ev)
}

// GetEvent handles GET /api/events/{id}.
func (s *Server) GetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.Events.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, ev)
}

// PatchEvent handles PATCH /api/events/{id}.
func (s *Server) PatchEvent(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateEventRequest
	if err := decode(r, &req); err != nil {
		respondError(w, apperr.Validation("InvalidJSON", "", "request body is not valid JSON"))
		return
	}
	ev, err := s.Events.Update(r.Context(), r.PathValue("id"), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, ev)
}

// DeleteEvent handles DELETE /api/events/{id}.
func (s *Server) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.Events.Delete(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

// ListEvents handles GET /api/events — the cached active-events listing.
func (s *Server) ListEvents(w http.ResponseWriter, r *http.Request) {
	list, err := s.Events.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, list)
}

// ListAllEvents handles GET /api/events/all — every event regardless of
// activity, for an organizer dashboard.
func (s *Server) ListAllEvents(w http.ResponseWriter, r *http.Request) {
	list, err := s.Events.GetAll(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, list)
}

// ListRecentEvents handles GET /api/events/recent?limit=N.
func (s *Server) ListRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}
	list, err := s.Events.GetRecent(r.Context(), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, list)
}

// GetFeaturedSlots handles GET /api/events/featured.
func (s *Server) GetFeaturedSlots(w http.ResponseWriter, r *http.Request) {
	slots, err := s.Events.Featured(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, slots)
}

// SetFeaturedSlot handles PUT /api/events/featured/{slot}.
func (s *Server) SetFeaturedSlot(w http.ResponseWriter, r *http.Request) {
	slot := models.FeaturedSlotName(r.PathValue("slot"))
	if slot != models.FeaturedSlot1 && slot != models.FeaturedSlot2 {
		respondError(w, apperr.Validation("InvalidSlot", "slot", "slot must be featured_1 or featured_2"))
		return
	}

	var body struct {
		EventID *string `json:"event_id"`
	}
	if err := decode(r, &body); err != nil {
		respondError(w, apperr.Validation("InvalidJSON", "", "request body is not valid JSON"))
		return
	}

	if body.EventID == nil || *body.EventID == "" {
		if err := s.Events.ClearFeatured(r.Context(), slot); err != nil {
			respondError(w, err)
			return
		}
		respond(w, http.StatusNoContent, nil)
		return
	}

	if err := s.Events.SetFeatured(r.Context(), slot, *body.EventID); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}
