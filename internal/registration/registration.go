// Package registration implements the registration engine (component C4):
// issuing free tickets directly, routing approval-gated events through a
// join request, and issuing paid tickets on the one shared path both the
// interactive payment-verify call and the async webhook use.
package registration

import (
	"context"
	"database/sql"
	"time"

	"github.com/fitbhag/ticketing/backend/internal/apperr"
	"github.com/fitbhag/ticketing/backend/internal/cache"
	"github.com/fitbhag/ticketing/backend/internal/models"
	"github.com/fitbhag/ticketing/backend/internal/points"
	"github.com/fitbhag/ticketing/backend/internal/qrcode"
	"github.com/google/uuid"
)

// EventLookup is the slice of the event registry this package depends on,
// kept narrow so registration doesn't need the whole events.Store surface.
type EventLookup interface {
	Get(ctx context.Context, id string) (*models.Event, error)
}

type Engine struct {
	db     *sql.DB
	events EventLookup
	qr     *qrcode.Codec
	ledger *points.Ledger
	cache  cache.Cache
}

func New(db *sql.DB, events EventLookup, qr *qrcode.Codec, ledger *points.Ledger, c cache.Cache) *Engine {
	return &Engine{db: db, events: events, qr: qr, ledger: ledger, cache: c}
}

// RegisterFree issues a ticket for a free event with no approval gate. For
// an approval-gated event it returns ApprovalRequired — the caller should
// create an EventJoinRequest (internal/joinrequests) instead, and this
// engine's IssueApprovedFree is called once that request is accepted.
func (e *Engine) RegisterFree(ctx context.Context, userID, eventID string) (*models.Ticket, error) {
	ev, err := e.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := e.checkEventOpenForFree(ev); err != nil {
		return nil, err
	}
	if ev.RequiresApproval {
		return nil, apperr.New(apperr.CategoryBusinessLogic, "ApprovalRequired", "event requires organizer approval", "this event requires approval — request to join instead")
	}
	return e.issueTicket(ctx, userID, ev, models.TicketMeta{Kind: models.TicketFree})
}

// IssueApprovedFree is called by the join-request flow once an organizer
// accepts a pending request for an approval-gated free event.
func (e *Engine) IssueApprovedFree(ctx context.Context, userID string, ev *models.Event) (*models.Ticket, error) {
	return e.issueTicket(ctx, userID, ev, models.TicketMeta{Kind: models.TicketFree})
}

func (e *Engine) checkEventOpenForFree(ev *models.Event) error {
	if !ev.IsActive {
		return apperr.New(apperr.CategoryBusinessLogic, "EventInactive", "event is not active", "this event is no longer available")
	}
	if !ev.RegistrationOpen {
		return apperr.New(apperr.CategoryBusinessLogic, "RegistrationClosed", "registration is closed", "registration for this event has closed")
	}
	if ev.IsExpired(time.Now().UTC()) {
		return apperr.New(apperr.CategoryBusinessLogic, "EventExpired", "event has ended", "this event has already ended")
	}
	if !ev.IsFree() {
		return apperr.Validation("PaidEventRequiresPayment", "event_id", "event requires payment — create a payment order instead")
	}
	return nil
}

// IssuePaid is the single path both payment verification and the gateway
// webhook call to turn a successful Payment into a ticket. It is keyed on
// payment.ID: the payments package looks up-or-creates a stable Payment row
// per gateway_payment_id before calling this, so a retried webhook after
// the interactive verify already ran passes the same payment.ID and this
// returns the existing ticket unchanged, awarding no further points.
func (e *Engine) IssuePaid(ctx context.Context, order *models.PaymentOrder, payment *models.Payment) (*models.Ticket, bool, error) {
	if existing, ok, qerr := e.ticketForPayment(ctx, payment.ID); qerr != nil {
		return nil, false, qerr
	} else if ok {
		return existing, true, nil
	}

	ev, err := e.events.Get(ctx, order.EventID)
	if err != nil {
		return nil, false, err
	}

	meta := models.TicketMeta{
		Kind:      models.TicketPaid,
		Amount:    order.AmountMinorUnits,
		OrderID:   order.ID,
		PaymentID: payment.ID,
	}
	ticket, err := e.issueTicket(ctx, order.UserID, ev, meta)
	if err != nil {
		return nil, false, err
	}

	awarded := points.Calculate(models.TicketPaid, order.AmountMinorUnits)
	if err := e.ledger.Award(ctx, order.UserID, awarded, "paid ticket issued: "+ev.Title, "system"); err != nil {
		return nil, false, err
	}

	return ticket, false, nil
}

func (e *Engine) ticketForPayment(ctx context.Context, paymentID string) (*models.Ticket, bool, error) {
	row := e.db.QueryRowContext(ctx, `SELECT id FROM tickets WHERE payment_id = ?`, paymentID)
	var ticketID string
	if err := row.Scan(&ticketID); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, apperr.Database("PaidTicketLookupFailed", err)
	}
	t, err := e.getTicket(ctx, ticketID)
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

func (e *Engine) issueTicket(ctx context.Context, userID string, ev *models.Event, meta models.TicketMeta) (*models.Ticket, error) {
	id := uuid.NewString()
	qr, err := e.qr.Issue(id, userID, ev.ID, ev.EndAt)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	res, err := e.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO tickets (id, event_id, user_id, qr_token, issued_at, kind, amount, order_id, payment_id)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		id, ev.ID, userID, qr, now, meta.Kind, meta.Amount, nullIfEmpty(meta.OrderID), nullIfEmpty(meta.PaymentID),
	)
	if err != nil {
		return nil, apperr.Database("TicketInsertFailed", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		existing, err := e.getTicketByEventUser(ctx, ev.ID, userID)
		if err != nil {
			return nil, err
		}
		return existing, apperr.New(apperr.CategoryBusinessLogic, "DuplicateRegistration", "user already holds a ticket for this event", "you're already registered for this event")
	}

	if e.cache != nil {
		e.cache.Delete(ctx, "events:active_list")
	}

	return &models.Ticket{
		ID: id, EventID: ev.ID, UserID: userID, QRToken: qr, IssuedAt: now,
		ValidationHistory: []models.ValidationEvent{}, Meta: meta,
	}, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (e *Engine) getTicket(ctx context.Context, id string) (*models.Ticket, error) {
	return scanTicket(ctx, e.db, `id = ?`, id)
}

func (e *Engine) getTicketByEventUser(ctx context.Context, eventID, userID string) (*models.Ticket, error) {
	return scanTicket(ctx, e.db, `event_id = ? AND user_id = ?`, eventID, userID)
}

// scanTicket loads one ticket matching where, with its validation history.
// internal/validation reads tickets through its own copy of this query.
func scanTicket(ctx context.Context, db *sql.DB, where string, args ...any) (*models.Ticket, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, event_id, user_id, qr_token, issued_at, is_validated, validated_at, kind, amount, order_id, payment_id
		 FROM tickets WHERE `+where, args...)

	var t models.Ticket
	var validatedAt sql.NullTime
	var orderID, paymentID sql.NullString
	err := row.Scan(&t.ID, &t.EventID, &t.UserID, &t.QRToken, &t.IssuedAt, &t.IsValidated,
		&validatedAt, &t.Meta.Kind, &t.Meta.Amount, &orderID, &paymentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("TicketNotFound", "ticket not found")
		}
		return nil, apperr.Database("TicketQueryFailed", err)
	}
	if validatedAt.Valid {
		t.ValidatedAt = &validatedAt.Time
	}
	t.Meta.OrderID = orderID.String
	t.Meta.PaymentID = paymentID.String
	t.ValidationHistory, err = loadHistory(ctx, db, t.ID)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func loadHistory(ctx context.Context, db *sql.DB, ticketID string) ([]models.ValidationEvent, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT ts, device, operator, points_awarded FROM validation_history WHERE ticket_id = ? ORDER BY ts ASC`, ticketID)
	if err != nil {
		return nil, apperr.Database("ValidationHistoryQueryFailed", err)
	}
	defer rows.Close()

	hist := []models.ValidationEvent{}
	for rows.Next() {
		var v models.ValidationEvent
		if err := rows.Scan(&v.Ts, &v.Device, &v.Operator, &v.PointsAwarded); err != nil {
			return nil, apperr.Database("ValidationHistoryScanFailed", err)
		}
		hist = append(hist, v)
	}
	return hist, rows.Err()
}

// GetTicket loads a ticket by id, for handlers that need to show a user
// their own ticket.
func (e *Engine) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	return e.getTicket(ctx, id)
}

// ListForUser returns every ticket a user holds, newest first.
func (e *Engine) ListForUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	rows, err := e.db.QueryContext(ctx, `SELECT id FROM tickets WHERE user_id = ? ORDER BY issued_at DESC`, userID)
	if err != nil {
		return nil, apperr.Database("TicketListFailed", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Database("TicketListScanFailed", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Database("TicketListRowsFailed", err)
	}

	out := make([]models.Ticket, 0, len(ids))
	for _, id := range ids {
		t, err := e.getTicket(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}
