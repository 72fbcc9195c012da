// Package httpapi is the thin HTTP transport over the ticketing core. Per
// spec.md §1 the transport layer, its middleware chain, tracing, generic
// rate limiting, and OAuth are external collaborators — this package does
// nothing but decode a request, call one core operation, and encode the
// result or error. No business logic lives here.
package httpapi

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/fitbhag/ticketing/backend/internal/apperr"
	"github.com/fitbhag/ticketing/backend/internal/cache"
	"github.com/fitbhag/ticketing/backend/internal/events"
	"github.com/fitbhag/ticketing/backend/internal/identity"
	"github.com/fitbhag/ticketing/backend/internal/joinrequests"
	"github.com/fitbhag/ticketing/backend/internal/payments"
	"github.com/fitbhag/ticketing/backend/internal/points"
	"github.com/fitbhag/ticketing/backend/internal/qrcode"
	"github.com/fitbhag/ticketing/backend/internal/registration"
	"github.com/fitbhag/ticketing/backend/internal/social"
	"github.com/fitbhag/ticketing/backend/internal/validation"
)

// Server holds every dependency a handler needs. Putting shared
// dependencies on a struct (instead of package globals) makes the code
// easy to test — each test builds its own Server around its own in-memory
// database, and no test pollutes another.
type Server struct {
	DB *sql.DB

	Cache    cache.Cache
	Identity *identity.Service
	QR       *qrcode.Codec

	Events       *events.Store
	Registration *registration.Engine
	Payments     *payments.Orchestrator
	Validation   *validation.Engine
	Points       *points.Ledger
	JoinRequests *joinrequests.Store
	Social       *social.Store

	// RazorpayKeyID is the gateway's public key id, handed to the client
	// alongside a created order so it can open the gateway's checkout.
	RazorpayKeyID string
}

// respond writes v as JSON with the given HTTP status code. Setting
// Content-Type before WriteHeader matters — once WriteHeader is called the
// headers are flushed and cannot be changed.
func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// errorBody is the envelope every failed operation serialises to, matching
// spec.md §6.5: {type, code, message, userMessage, severity, field?}.
type errorBody struct {
	Error struct {
		Type        apperr.Category `json:"type"`
		Code        string          `json:"code"`
		Message     string          `json:"message,omitempty"`
		UserMessage string          `json:"userMessage"`
		Severity    apperr.Severity `json:"severity"`
		Field       string          `json:"field,omitempty"`
	} `json:"error"`
}

// respondError maps err to an HTTP status and writes the §6.5 error
// envelope. A plain (non-apperr) error is treated as an opaque internal
// fault so a bug never leaks raw Go error text to a caller.
func respondError(w http.ResponseWriter, err error) {
	appErr, ok := asAppErr(err)
	if !ok {
		appErr = apperr.System("Internal", err)
	}
	respond(w, statusFor(appErr), toErrorBody(appErr))
}

func toErrorBody(e *apperr.Error) errorBody {
	var body errorBody
	body.Error.Type = e.Type
	body.Error.Code = e.Code
	body.Error.Message = e.Message
	body.Error.UserMessage = e.UserMessage
	body.Error.Severity = e.Severity
	body.Error.Field = e.Field
	return body
}

// statusFor maps a taxonomy category (and, within validation and
// business_logic, a
// "*NotFound" code) to an HTTP status, per spec.md §7.
func statusFor(e *apperr.Error) int {
	switch e.Type {
	case apperr.CategoryValidation, apperr.CategoryBusinessLogic:
		if isNotFoundCode(e.Code) {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case apperr.CategoryAuthentication:
		return http.StatusUnauthorized
	case apperr.CategoryAuthorization:
		return http.StatusForbidden
	case apperr.CategoryPayment:
		return http.StatusPaymentRequired
	case apperr.CategoryRateLimit:
		return http.StatusTooManyRequests
	default: // database, system
		return http.StatusInternalServerError
	}
}

// asAppErr walks err's Unwrap chain looking for the one typed error every
// core operation is supposed to return.
func asAppErr(err error) (*apperr.Error, bool) {
	for err != nil {
		if ae, ok := err.(*apperr.Error); ok {
			return ae, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

func isNotFoundCode(code string) bool {
	return len(code) >= 8 && code[len(code)-8:] == "NotFound"
}

// decode reads and parses a JSON request body into v.
func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
