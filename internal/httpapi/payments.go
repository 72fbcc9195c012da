package httpapi

import (
	"io"
	"net/http"

	"github.com/fitbhag/ticketing/backend/internal/apperr"
	"github.com/fitbhag/ticketing/backend/internal/middleware"
	"github.com/fitbhag/ticketing/backend/internal/models"
)

// CreateOrder handles POST /api/payments/orders — C5's order-creation call.
func (s *Server) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if err := decode(r, &req); err != nil {
		respondError(w, apperr.Validation("InvalidJSON", "", "request body is not valid JSON"))
		return
	}
	userID := middleware.GetUserID(r.Context())

	order, err := s.Payments.CreateOrder(r.Context(), userID, req.EventID)
	if err != nil {
		respondError(w, err)
		return
	}

	respond(w, http.StatusCreated, models.CreateOrderResponse{
		OrderID:        order.ID,
		GatewayOrderID: order.GatewayOrderID,
		Amount:         order.AmountMinorUnits,
		Currency:       order.Currency,
		KeyID:          s.RazorpayKeyID,
	})
}

// VerifyPayment handles POST /api/payments/verify — the client's
// payment-success callback.
func (s *Server) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyPaymentRequest
	if err := decode(r, &req); err != nil {
		respondError(w, apperr.Validation("InvalidJSON", "", "request body is not valid JSON"))
		return
	}

	ticket, err := s.Payments.VerifyAndIssue(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, ticket)
}

// PaymentWebhook handles POST /api/payments/webhook — the gateway's async
// notification. Signature is computed over the raw body, so the body must
// be read before any JSON decoding touches it.
func (s *Server) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, apperr.Validation("UnreadableBody", "", "could not read request body"))
		return
	}
	signature := r.Header.Get("X-Razorpay-Signature")

	if err := s.Payments.HandleWebhook(r.Context(), body, signature); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]bool{"ok": true})
}
