// Package payments implements the payment orchestrator (component C5):
// order creation, interactive verification, and the gateway webhook safety
// net, all funnelling into the one shared ticket-issuance path in
// internal/registration so points are never awarded twice for one payment.
package payments

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/fitbhag/ticketing/backend/internal/apperr"
	"github.com/fitbhag/ticketing/backend/internal/models"
	"github.com/google/uuid"
)

// EventLookup narrows the dependency on the event registry to what this
// package needs.
type EventLookup interface {
	Get(ctx context.Context, id string) (*models.Event, error)
}

// Issuer is the registration engine's ticket-issuing slice.
type Issuer interface {
	IssuePaid(ctx context.Context, order *models.PaymentOrder, payment *models.Payment) (*models.Ticket, bool, error)
}

const orderTTL = 30 * time.Minute

type Orchestrator struct {
	db      *sql.DB
	gateway GatewayClient
	events  EventLookup
	issuer  Issuer
	currency string
}

func New(db *sql.DB, gateway GatewayClient, events EventLookup, issuer Issuer, currency string) *Orchestrator {
	if currency == "" {
		currency = "INR"
	}
	return &Orchestrator{db: db, gateway: gateway, events: events, issuer: issuer, currency: currency}
}

// CreateOrder opens a gateway order for a priced event and records it
// locally, keyed by a per-user-per-event receipt so a user can't end up
// with two live orders for the same event.
func (o *Orchestrator) CreateOrder(ctx context.Context, userID, eventID string) (*models.PaymentOrder, error) {
	ev, err := o.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.IsFree() {
		return nil, apperr.Validation("EventIsFree", "event_id", "this event is free — register instead of paying")
	}
	if !ev.IsActive || !ev.RegistrationOpen {
		return nil, apperr.New(apperr.CategoryBusinessLogic, "RegistrationClosed", "registration closed", "registration for this event has closed")
	}

	receipt := "rcpt_" + userID + "_" + eventID
	gwOrder, err := o.gateway.CreateOrder(ctx, ev.PriceMinorUnits, o.currency, receipt)
	if err != nil {
		return nil, err
	}

	order := &models.PaymentOrder{
		ID:               uuid.NewString(),
		GatewayOrderID:   gwOrder.ID,
		UserID:           userID,
		EventID:          eventID,
		AmountMinorUnits: ev.PriceMinorUnits,
		Currency:         o.currency,
		Status:           models.OrderPending,
		Receipt:          receipt,
		ExpiresAt:        time.Now().UTC().Add(orderTTL),
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	_, err = o.db.ExecContext(ctx,
		`INSERT INTO payment_orders (id, gateway_order_id, user_id, event_id, amount_minor_units, currency, status, receipt, expires_at, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		order.ID, order.GatewayOrderID, order.UserID, order.EventID, order.AmountMinorUnits,
		order.Currency, order.Status, order.Receipt, order.ExpiresAt, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return nil, apperr.Database("OrderInsertFailed", err)
	}
	o.audit(ctx, order.ID, "", "order_created", "", string(order.Status), "")
	return order, nil
}

// VerifyAndIssue is called from the client's payment-success callback: it
// verifies the gateway signature, records the payment, and issues the
// ticket via the shared Issuer path.
func (o *Orchestrator) VerifyAndIssue(ctx context.Context, req models.VerifyPaymentRequest) (*models.Ticket, error) {
	order, err := o.getOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.GatewayOrderID != req.GatewayOrderID {
		return nil, apperr.New(apperr.CategoryPayment, "OrderMismatch", "gateway order id mismatch", "payment details don't match this order")
	}

	if err := o.requireUser(ctx, order.UserID); err != nil {
		return nil, err
	}
	ev, err := o.events.Get(ctx, order.EventID)
	if err != nil {
		return nil, err
	}
	if ev.IsFree() {
		return nil, apperr.New(apperr.CategoryBusinessLogic, "FreeEventRejected", "event is free", "this event does not require payment")
	}

	if !o.gateway.VerifySignature(req.GatewayOrderID, req.GatewayPaymentID, req.GatewaySignature) {
		o.audit(ctx, order.ID, "", "signature_rejected", string(order.Status), string(order.Status), "")
		return nil, apperr.New(apperr.CategoryPayment, "InvalidSignature", "signature verification failed", "payment could not be verified")
	}

	payment, err := o.upsertPayment(ctx, order, req.GatewayPaymentID, req.GatewaySignature, "captured", "")
	if err != nil {
		return nil, err
	}

	o.markOrderStatus(ctx, order, models.OrderSuccess)

	ticket, alreadyIssued, err := o.issuer.IssuePaid(ctx, order, payment)
	if err != nil {
		return nil, err
	}
	action := "ticket_issued"
	if alreadyIssued {
		action = "ticket_already_issued"
	}
	o.audit(ctx, order.ID, payment.ID, action, "", "", "")
	return ticket, nil
}

// HandleWebhook is the asynchronous safety net: a captured event ensures a
// ticket exists even if the client never called VerifyAndIssue. It reuses
// the same Issuer path, so no double-award is possible even if both this
// and VerifyAndIssue run for the same payment.
func (o *Orchestrator) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !o.gateway.VerifyWebhookSignature(body, signature) {
		return apperr.New(apperr.CategoryPayment, "InvalidWebhookSignature", "webhook signature verification failed", "invalid webhook signature")
	}

	var payload struct {
		Event   string `json:"event"`
		Payload struct {
			Payment struct {
				Entity struct {
					ID       string `json:"id"`
					OrderID  string `json:"order_id"`
					Status   string `json:"status"`
					Method   string `json:"method"`
					ErrorCode string `json:"error_code"`
					ErrorDescription string `json:"error_description"`
				} `json:"entity"`
			} `json:"payment"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return apperr.Validation("InvalidWebhookPayload", "", "malformed webhook body")
	}

	order, err := o.getOrderByGatewayOrderID(ctx, payload.Payload.Payment.Entity.OrderID)
	if err != nil {
		return err
	}

	switch payload.Event {
	case "payment.captured":
		payment, err := o.upsertPayment(ctx, order, payload.Payload.Payment.Entity.ID, "", "captured", payload.Payload.Payment.Entity.Method)
		if err != nil {
			return err
		}
		o.markOrderStatus(ctx, order, models.OrderSuccess)
		_, alreadyIssued, err := o.issuer.IssuePaid(ctx, order, payment)
		if err != nil {
			return err
		}
		action := "webhook_ticket_issued"
		if alreadyIssued {
			action = "webhook_ticket_already_issued"
		}
		o.audit(ctx, order.ID, payment.ID, action, "", "", "")
	case "payment.failed":
		o.markOrderStatus(ctx, order, models.OrderFailed)
		o.audit(ctx, order.ID, "", "webhook_payment_failed", "", string(models.OrderFailed), payload.Payload.Payment.Entity.ErrorDescription)
	case "payment.authorized":
		o.markOrderStatus(ctx, order, models.OrderProcessing)
		o.audit(ctx, order.ID, "", "webhook_payment_authorized", "", string(models.OrderProcessing), "")
	}
	return nil
}

// CleanupExpired cancels orders whose checkout window passed without a
// successful payment, so they stop showing as pending.
func (o *Orchestrator) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := o.db.ExecContext(ctx,
		`UPDATE payment_orders SET status = 'cancelled', updated_at = CURRENT_TIMESTAMP
		 WHERE status = 'pending' AND expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, apperr.Database("OrderCleanupFailed", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// upsertPayment finds-or-creates a Payment row keyed on gateway_payment_id
// so a retried webhook reuses the same internal payment.ID, which is the
// idempotency key internal/registration.IssuePaid relies on.
func (o *Orchestrator) upsertPayment(ctx context.Context, order *models.PaymentOrder, gatewayPaymentID, signature, status, method string) (*models.Payment, error) {
	var p models.Payment
	err := o.db.QueryRowContext(ctx,
		`SELECT id, order_id, gateway_payment_id, gateway_signature, amount_paid, status, method, created_at
		 FROM payments WHERE gateway_payment_id = ?`, gatewayPaymentID).
		Scan(&p.ID, &p.OrderID, &p.GatewayPaymentID, &p.GatewaySignature, &p.AmountPaid, &p.Status, &p.Method, &p.CreatedAt)
	if err == nil {
		return &p, nil
	}
	if err != sql.ErrNoRows {
		return nil, apperr.Database("PaymentLookupFailed", err)
	}

	p = models.Payment{
		ID:               uuid.NewString(),
		OrderID:          order.ID,
		GatewayPaymentID: gatewayPaymentID,
		GatewaySignature: signature,
		AmountPaid:       order.AmountMinorUnits,
		Status:           status,
		Method:           method,
		CreatedAt:        time.Now().UTC(),
	}
	_, err = o.db.ExecContext(ctx,
		`INSERT INTO payments (id, order_id, gateway_payment_id, gateway_signature, amount_paid, status, method, created_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.OrderID, p.GatewayPaymentID, p.GatewaySignature, p.AmountPaid, p.Status, p.Method, p.CreatedAt,
	)
	if err != nil {
		return nil, apperr.Database("PaymentInsertFailed", err)
	}
	return &p, nil
}

func (o *Orchestrator) markOrderStatus(ctx context.Context, order *models.PaymentOrder, status models.OrderStatus) {
	old := order.Status
	order.Status = status
	order.UpdatedAt = time.Now().UTC()
	_, _ = o.db.ExecContext(ctx, `UPDATE payment_orders SET status=?, updated_at=? WHERE id=?`, status, order.UpdatedAt, order.ID)
	o.audit(ctx, order.ID, "", "status_changed", string(old), string(status), "")
}

func (o *Orchestrator) audit(ctx context.Context, orderID, paymentID, action, oldStatus, newStatus, details string) {
	_, _ = o.db.ExecContext(ctx,
		`INSERT INTO payment_audit_log (id, order_id, payment_id, action, old_status, new_status, details, created_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		uuid.NewString(), orderID, paymentID, action, oldStatus, newStatus, details, time.Now().UTC(),
	)
}

func (o *Orchestrator) getOrder(ctx context.Context, id string) (*models.PaymentOrder, error) {
	return scanOrder(ctx, o.db, `id = ?`, id)
}

// requireUser confirms the order's user still exists before a ticket is
// issued on their behalf.
func (o *Orchestrator) requireUser(ctx context.Context, userID string) error {
	var exists int
	err := o.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&exists)
	if err != nil {
		if err == sql.ErrNoRows {
			return apperr.NotFound("UserNotFound", "user not found")
		}
		return apperr.Database("UserLookupFailed", err)
	}
	return nil
}

func (o *Orchestrator) getOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.PaymentOrder, error) {
	return scanOrder(ctx, o.db, `gateway_order_id = ?`, gatewayOrderID)
}

func scanOrder(ctx context.Context, db *sql.DB, where string, args ...any) (*models.PaymentOrder, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, gateway_order_id, user_id, event_id, amount_minor_units, currency, status, receipt, expires_at, created_at, updated_at
		 FROM payment_orders WHERE `+where, args...)
	var o models.PaymentOrder
	err := row.Scan(&o.ID, &o.GatewayOrderID, &o.UserID, &o.EventID, &o.AmountMinorUnits, &o.Currency,
		&o.Status, &o.Receipt, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("OrderNotFound", "payment order not found")
		}
		return nil, apperr.Database("OrderQueryFailed", err)
	}
	return &o, nil
}
