package httpapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fitbhag/ticketing/backend/internal/cache"
	"github.com/fitbhag/ticketing/backend/internal/db"
	"github.com/fitbhag/ticketing/backend/internal/events"
	"github.com/fitbhag/ticketing/backend/internal/identity"
	"github.com/fitbhag/ticketing/backend/internal/joinrequests"
	"github.com/fitbhag/ticketing/backend/internal/middleware"
	"github.com/fitbhag/ticketing/backend/internal/models"
	"github.com/fitbhag/ticketing/backend/internal/payments"
	"github.com/fitbhag/ticketing/backend/internal/points"
	"github.com/fitbhag/ticketing/backend/internal/qrcode"
	"github.com/fitbhag/ticketing/backend/internal/registration"
	"github.com/fitbhag/ticketing/backend/internal/social"
	"github.com/fitbhag/ticketing/backend/internal/validation"
	"github.com/google/uuid"
)

const testJWTSecret = "httpapi-test-secret"

// stubGateway is a GatewayClient test double mirroring internal/payments's
// own, since that one is unexported.
type stubGateway struct {
	secret        string
	webhookSecret string
}

func (g *stubGateway) CreateOrder(ctx context.Context, amountMinorUnits int64, currency, receipt string) (*payments.GatewayOrder, error) {
	return &payments.GatewayOrder{ID: "order_" + uuid.NewString(), Amount: amountMinorUnits, Currency: currency, Receipt: receipt}, nil
}

func (g *stubGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return hmacHexEqual(g.secret, orderID+"|"+paymentID, signature)
}

func (g *stubGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return hmacHexEqual(g.webhookSecret, string(body), signature)
}

func hmacHexEqual(secret, payload, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func signPayload(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

type harness struct {
	srv      *Server
	mux      *http.ServeMux
	identity *identity.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	database := db.NewTestDB(t)
	c, err := cache.NewMemory()
	if err != nil {
		t.Fatalf("cache.NewMemory: %v", err)
	}

	idSvc := identity.New(testJWTSecret, time.Hour, c)
	qr := qrcode.New(testJWTSecret)
	eventStore := events.New(database, c)
	ledger := points.New(database)
	reg := registration.New(database, eventStore, qr, ledger, c)
	gw := &stubGateway{secret: "gw-secret", webhookSecret: "wh-secret"}
	pay := payments.New(database, gw, eventStore, reg, "INR")
	val := validation.New(database, qr, eventStore, ledger)
	jr := joinrequests.New(database, eventStore, reg)
	soc := social.New(database)

	srv := &Server{
		DB: database, Cache: c, Identity: idSvc, QR: qr,
		Events: eventStore, Registration: reg, Payments: pay,
		Validation: val, Points: ledger, JoinRequests: jr, Social: soc,
		RazorpayKeyID: "rzp_test_key",
	}

	auth := middleware.Authenticate(idSvc)
	optionalAuth := middleware.OptionalAuthenticate(idSvc)
	onlyOrganizer := middleware.RequireRole(models.RoleOrganizer, models.RoleAdmin)
	onlyAdmin := middleware.RequireRole(models.RoleAdmin)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", srv.Register)
	mux.HandleFunc("POST /api/auth/login", srv.Login)
	mux.Handle("GET /api/auth/me", auth(http.HandlerFunc(srv.Me)))
	mux.Handle("POST /api/auth/logout", auth(http.HandlerFunc(srv.Logout)))

	mux.Handle("GET /api/events", optionalAuth(http.HandlerFunc(srv.ListEvents)))
	mux.Handle("GET /api/events/{id}", optionalAuth(http.HandlerFunc(srv.GetEvent)))
	mux.Handle("POST /api/events", auth(onlyOrganizer(http.HandlerFunc(srv.CreateEvent))))
	mux.Handle("PATCH /api/events/{id}", auth(onlyOrganizer(http.HandlerFunc(srv.PatchEvent))))
	mux.Handle("DELETE /api/events/{id}", auth(onlyOrganizer(http.HandlerFunc(srv.DeleteEvent))))
	mux.Handle("GET /api/events/all", auth(onlyOrganizer(http.HandlerFunc(srv.ListAllEvents))))
	mux.Handle("GET /api/events/recent", auth(onlyOrganizer(http.HandlerFunc(srv.ListRecentEvents))))
	mux.Handle("GET /api/events/featured", optionalAuth(http.HandlerFunc(srv.GetFeaturedSlots)))
	mux.Handle("PUT /api/events/featured/{slot}", auth(onlyOrganizer(http.HandlerFunc(srv.SetFeaturedSlot))))

	mux.Handle("POST /api/registrations/free", auth(http.HandlerFunc(srv.RegisterFree)))
	mux.Handle("GET /api/tickets/mine", auth(http.HandlerFunc(srv.ListMyTickets)))
	mux.Handle("GET /api/tickets/{id}", auth(http.HandlerFunc(srv.GetTicket)))

	mux.Handle("POST /api/payments/orders", auth(http.HandlerFunc(srv.CreateOrder)))
	mux.Handle("POST /api/payments/verify", auth(http.HandlerFunc(srv.VerifyPayment)))
	mux.HandleFunc("POST /api/payments/webhook", srv.PaymentWebhook)

	mux.Handle("POST /api/validations", auth(onlyOrganizer(http.HandlerFunc(srv.ValidateTicket))))

	mux.Handle("GET /api/points/mine", auth(http.HandlerFunc(srv.GetMyPoints)))
	mux.Handle("POST /api/points/{user_id}/deduct", auth(onlyAdmin(http.HandlerFunc(srv.DeductPoints))))
	mux.Handle("GET /api/points/transactions", auth(onlyAdmin(http.HandlerFunc(srv.ListPointsTransactions))))

	mux.Handle("POST /api/connections", auth(http.HandlerFunc(srv.RequestConnection)))
	mux.Handle("POST /api/connections/{id}/accept", auth(http.HandlerFunc(srv.AcceptConnection)))
	mux.Handle("POST /api/connections/{id}/decline", auth(http.HandlerFunc(srv.DeclineConnection)))
	mux.Handle("DELETE /api/connections/{user_id}", auth(http.HandlerFunc(srv.Disconnect)))
	mux.Handle("GET /api/users/{id}/profile", optionalAuth(http.HandlerFunc(srv.GetProfile)))

	mux.Handle("POST /api/join-requests", auth(http.HandlerFunc(srv.RequestJoin)))
	mux.Handle("POST /api/join-requests/{id}/review", auth(onlyOrganizer(http.HandlerFunc(srv.ReviewJoinRequest))))
	mux.Handle("GET /api/events/{id}/join-requests", auth(onlyOrganizer(http.HandlerFunc(srv.ListJoinRequests))))

	return &harness{srv: srv, mux: mux, identity: idSvc}
}

func (h *harness) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf *bytes.Buffer
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		buf = bytes.NewBuffer(b)
	} else {
		buf = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	return rec
}

// createUserAndToken inserts a user row directly (bypassing bcrypt cost in
// tests that don't exercise Register) and issues a token for it.
func (h *harness) createUserAndToken(t *testing.T, role models.Role) (string, string) {
	t.Helper()
	userID := uuid.NewString()
	now := time.Now().UTC()
	_, err := h.srv.DB.Exec(
		`INSERT INTO users (id, name, phone, email, password_hash, role, is_private, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		userID, "Test User", "+91"+userID[:9], "", "x", role, false, now, now,
	)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	tok, err := h.identity.Issue(userID, role)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return userID, tok
}

func (h *harness) createEvent(t *testing.T, req models.CreateEventRequest) *models.Event {
	t.Helper()
	ev, err := h.srv.Events.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create event: %v", err)
	}
	return ev
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body=%s)", err, rec.Body.String())
	}
}
