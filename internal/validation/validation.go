// Package validation implements the validation engine (component C6): the
// single gate that flips a ticket from unscanned to scanned, exactly once,
// optionally awarding free-ticket points on that first scan.
//
// Correctness rests entirely on the database compare-and-set
// (UPDATE ... WHERE is_validated = 0 AND RowsAffected). Every call runs the
// CAS independently against the database, so concurrent scans of the same
// ticket each get their own answer: exactly one observes RowsAffected=1 and
// reports a valid first scan, the rest observe RowsAffected=0 and report
// AlreadyScanned.
package validation

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fitbhag/ticketing/backend/internal/apperr"
	"github.com/fitbhag/ticketing/backend/internal/models"
	"github.com/fitbhag/ticketing/backend/internal/points"
	"github.com/fitbhag/ticketing/backend/internal/qrcode"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// EventLookup narrows the event-registry dependency to what's needed here.
type EventLookup interface {
	Get(ctx context.Context, id string) (*models.Event, error)
}

type Engine struct {
	db     *sql.DB
	qr     *qrcode.Codec
	events EventLookup
	ledger *points.Ledger
}

func New(db *sql.DB, qr *qrcode.Codec, events EventLookup, ledger *points.Ledger) *Engine {
	return &Engine{db: db, qr: qr, events: events, ledger: ledger}
}

// Validate decodes req.QRToken, confirms it matches req.EventID, and
// performs the at-most-once scan. A second scan of the same ticket reports
// AlreadyScanned=true rather than an error — re-scanning a validated
// ticket is a normal operator action, not a failure.
func (e *Engine) Validate(ctx context.Context, req models.ValidateTicketRequest) (*models.ValidateTicketResponse, error) {
	const maxPassThroughLength = 256
	if len(req.Device) > maxPassThroughLength || len(req.Operator) > maxPassThroughLength {
		return nil, apperr.Validation("PassThroughTooLong", "device", "device and operator must be at most 256 bytes")
	}

	claims, err := e.qr.Parse(req.QRToken)
	if err != nil {
		code := "InvalidQRToken"
		msg := "QR token is invalid"
		if errors.Is(err, jwt.ErrTokenExpired) {
			code, msg = "QRTokenExpired", "this QR code has expired"
		}
		return nil, apperr.New(apperr.CategoryValidation, code, err.Error(), msg)
	}
	if claims.EventID != req.EventID {
		return nil, apperr.New(apperr.CategoryValidation, "EventMismatch", "qr event_id does not match requested event", "this ticket is not for this event")
	}

	ticket, err := getTicket(ctx, e.db, claims.TicketID)
	if err != nil {
		return nil, err
	}
	if ticket.EventID != claims.EventID || ticket.UserID != claims.UserID {
		return nil, apperr.New(apperr.CategoryValidation, "TicketClaimMismatch", "ticket does not match token claims", "ticket details do not match")
	}

	ev, err := e.events.Get(ctx, ticket.EventID)
	if err != nil {
		return nil, err
	}
	if ev.IsExpired(time.Now().UTC()) {
		return nil, apperr.New(apperr.CategoryBusinessLogic, "EventExpired", "event scan window has closed", "this event has ended")
	}

	if ticket.IsValidated {
		return &models.ValidateTicketResponse{TicketID: ticket.ID, AlreadyScanned: true}, nil
	}

	now := time.Now().UTC()
	res, err := e.db.ExecContext(ctx,
		`UPDATE tickets SET is_validated = 1, validated_at = ? WHERE id = ? AND is_validated = 0`,
		now, ticket.ID)
	if err != nil {
		return nil, apperr.Database("TicketValidateFailed", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Lost the race to a concurrent scan that committed first.
		return &models.ValidateTicketResponse{TicketID: ticket.ID, AlreadyScanned: true}, nil
	}

	// Free-ticket points are awarded exactly once, on the first successful
	// scan — gated on no prior history entry already carrying the flag.
	awardPoints := ticket.Meta.Kind == models.TicketFree && !anyPointsAwarded(ticket.ValidationHistory)
	pointsAwarded := false
	if awardPoints {
		if err := e.ledger.Award(ctx, ticket.UserID, points.Calculate(models.TicketFree, 0), "free ticket validated: "+ev.Title, req.Operator); err != nil {
			return nil, err
		}
		pointsAwarded = true
	}

	_, err = e.db.ExecContext(ctx,
		`INSERT INTO validation_history (id, ticket_id, ts, device, operator, points_awarded) VALUES (?,?,?,?,?,?)`,
		uuid.NewString(), ticket.ID, now, req.Device, req.Operator, pointsAwarded,
	)
	if err != nil {
		return nil, apperr.Database("ValidationHistoryInsertFailed", err)
	}

	return &models.ValidateTicketResponse{TicketID: ticket.ID, AlreadyScanned: false, PointsAwarded: pointsAwarded}, nil
}

func anyPointsAwarded(hist []models.ValidationEvent) bool {
	for _, h := range hist {
		if h.PointsAwarded {
			return true
		}
	}
	return false
}

func getTicket(ctx context.Context, db *sql.DB, id string) (*models.Ticket, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, event_id, user_id, qr_token, issued_at, is_validated, validated_at, kind, amount, order_id, payment_id
		 FROM tickets WHERE id = ?`, id)

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

	rows, err := db.QueryContext(ctx,
		`SELECT ts, device, operator, points_awarded FROM validation_history WHERE ticket_id = ? ORDER BY ts ASC`, t.ID)
	if err != nil {
		return nil, apperr.Database("ValidationHistoryQueryFailed", err)
	}
	defer rows.Close()
	t.ValidationHistory = []models.ValidationEvent{}
	for rows.Next() {
		var v models.ValidationEvent
		if err := rows.Scan(&v.Ts, &v.Device, &v.Operator, &v.PointsAwarded); err != nil {
			return nil, apperr.Database("ValidationHistoryScanFailed", err)
		}
		t.ValidationHistory = append(t.ValidationHistory, v)
	}
	return &t, rows.Err()
}
