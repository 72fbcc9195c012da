package payments

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fitbhag/ticketing/backend/internal/cache"
	"github.com/fitbhag/ticketing/backend/internal/db"
	"github.com/fitbhag/ticketing/backend/internal/events"
	"github.com/fitbhag/ticketing/backend/internal/models"
	"github.com/fitbhag/ticketing/backend/internal/points"
	"github.com/fitbhag/ticketing/backend/internal/qrcode"
	"github.com/fitbhag/ticketing/backend/internal/registration"
)

const testSecret = "gateway-secret"
const testWebhookSecret = "webhook-secret"

func newHarness(t *testing.T) (*Orchestrator, *events.Store, *models.Event) {
	t.Helper()
	conn := db.NewTestDB(t)
	c, err := cache.NewMemory()
	if err != nil {
		t.Fatalf("cache.NewMemory: %v", err)
	}
	evStore := events.New(conn, c)
	ledger := points.New(conn)
	qr := qrcode.New("qr-secret")
	engine := registration.New(conn, evStore, qr, ledger, c)
	gw := &stubGateway{secret: testSecret, webhookSecret: testWebhookSecret}
	orch := New(conn, gw, evStore, engine, "INR")

	// VerifyAndIssue requires the order's user to exist.
	if _, err := conn.Exec(`INSERT INTO users (id, name, password_hash) VALUES ('user-1', 'Test User', 'x')`); err != nil {
		t.Fatalf("insert user: %v", err)
	}

	ev, err := evStore.Create(context.Background(), models.CreateEventRequest{
		Title:           "10k Paid Run",
		PriceMinorUnits: 50000,
		StartAt:         time.Now().Add(time.Hour),
		EndAt:           time.Now().Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Create event: %v", err)
	}
	return orch, evStore, ev
}

func TestCreateOrder(t *testing.T) {
	orch, _, ev := newHarness(t)
	order, err := orch.CreateOrder(context.Background(), "user-1", ev.ID)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.AmountMinorUnits != ev.PriceMinorUnits {
		t.Errorf("amount: got %d, want %d", order.AmountMinorUnits, ev.PriceMinorUnits)
	}
}

func TestCreateOrder_RejectsFreeEvent(t *testing.T) {
	orch, evStore, _ := newHarness(t)
	free, _ := evStore.Create(context.Background(), models.CreateEventRequest{
		Title: "Free", StartAt: time.Now().Add(time.Hour), EndAt: time.Now().Add(2 * time.Hour),
	})
	if _, err := orch.CreateOrder(context.Background(), "user-1", free.ID); err == nil {
		t.Fatal("expected error creating order for a free event")
	}
}

func TestVerifyAndIssue(t *testing.T) {
	orch, _, ev := newHarness(t)
	ctx := context.Background()

	order, err := orch.CreateOrder(ctx, "user-1", ev.ID)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	sig := signPayload(testSecret, order.GatewayOrderID+"|gw-pay-1")
	ticket, err := orch.VerifyAndIssue(ctx, models.VerifyPaymentRequest{
		OrderID: order.ID, GatewayOrderID: order.GatewayOrderID,
		GatewayPaymentID: "gw-pay-1", GatewaySignature: sig,
	})
	if err != nil {
		t.Fatalf("VerifyAndIssue: %v", err)
	}
	if ticket.Meta.Kind != models.TicketPaid {
		t.Errorf("expected paid ticket, got %+v", ticket.Meta)
	}
}

func TestVerifyAndIssue_RejectsBadSignature(t *testing.T) {
	orch, _, ev := newHarness(t)
	ctx := context.Background()

	order, _ := orch.CreateOrder(ctx, "user-1", ev.ID)
	_, err := orch.VerifyAndIssue(ctx, models.VerifyPaymentRequest{
		OrderID: order.ID, GatewayOrderID: order.GatewayOrderID,
		GatewayPaymentID: "gw-pay-1", GatewaySignature: "bad-signature",
	})
	if err == nil {
		t.Fatal("expected signature verification error")
	}
}

func TestWebhook_IssuesTicketAsSafetyNet(t *testing.T) {
	orch, _, ev := newHarness(t)
	ctx := context.Background()

	order, err := orch.CreateOrder(ctx, "user-1", ev.ID)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	body, _ := json.Marshal(map[string]any{
		"event": "payment.captured",
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": map[string]any{
					"id":       "gw-pay-2",
					"order_id": order.GatewayOrderID,
					"status":   "captured",
					"method":   "card",
				},
			},
		},
	})
	sig := signPayload(testWebhookSecret, string(body))

	if err := orch.HandleWebhook(ctx, body, sig); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	orch, _, _ := newHarness(t)
	body := []byte(`{"event":"payment.captured"}`)
	if err := orch.HandleWebhook(context.Background(), body, "wrong-sig"); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestVerifyThenWebhook_NoDoubleIssue(t *testing.T) {
	orch, _, ev := newHarness(t)
	ctx := context.Background()

	order, err := orch.CreateOrder(ctx, "user-1", ev.ID)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	sig := signPayload(testSecret, order.GatewayOrderID+"|gw-pay-3")
	ticket1, err := orch.VerifyAndIssue(ctx, models.VerifyPaymentRequest{
		OrderID: order.ID, GatewayOrderID: order.GatewayOrderID,
		GatewayPaymentID: "gw-pay-3", GatewaySignature: sig,
	})
	if err != nil {
		t.Fatalf("VerifyAndIssue: %v", err)
	}

	body, _ := json.Marshal(map[string]any{
		"event": "payment.captured",
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": map[string]any{"id": "gw-pay-3", "order_id": order.GatewayOrderID, "status": "captured"},
			},
		},
	})
	whSig := signPayload(testWebhookSecret, string(body))
	if err := orch.HandleWebhook(ctx, body, whSig); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	// A second issue for (event, user) would make HandleWebhook fail with
	// DuplicateRegistration, so both calls succeeding shows the webhook
	// reused verify's ticket; verify must also have returned that ticket.
	if ticket1.ID == "" {
		t.Fatal("expected a ticket id from VerifyAndIssue")
	}
}
