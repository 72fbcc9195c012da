// Package points implements the loyalty ledger (component C7): the award
// formula and the append-only transaction log backing a user's balance.
package points

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/fitbhag/ticketing/backend/internal/apperr"
	"github.com/fitbhag/ticketing/backend/internal/models"
	"github.com/google/uuid"
)

// freePoints is the flat award for a free-event ticket's first validation.
const freePoints = 2

// Calculate returns the points earned for a ticket: a flat amount for a
// free ticket, or a price-scaled amount plus the same flat bonus for a
// paid one. priceMinorUnits is the event price in minor currency units
// (e.g. paise for INR).
func Calculate(kind models.TicketKind, priceMinorUnits int64) int64 {
	if kind == models.TicketFree {
		return freePoints
	}
	return int64(math.Ceil(float64(priceMinorUnits)/10000)) + freePoints
}

// Ledger appends transactions to and reads balances from the database.
type Ledger struct {
	db *sql.DB
}

func New(db *sql.DB) *Ledger { return &Ledger{db: db} }

// Award credits userID with points, recording reason/actor in the ledger.
// It must be called from exactly one place per ticket kind — see
// internal/registration.IssuePaid and internal/validation.Validate — so a
// ticket is never awarded points twice.
func (l *Ledger) Award(ctx context.Context, userID string, points int64, reason, actor string) error {
	if points <= 0 {
		return nil
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Database("PointsTxBeginFailed", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_points (user_id, total_points) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET total_points = total_points + excluded.total_points`,
		userID, points,
	)
	if err != nil {
		return apperr.Database("PointsBalanceUpdateFailed", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO points_transactions (id, user_id, type, points, reason, actor, ts) VALUES (?,?,?,?,?,?,?)`,
		uuid.NewString(), userID, models.TxEarned, points, reason, actor, time.Now().UTC(),
	)
	if err != nil {
		return apperr.Database("PointsTransactionInsertFailed", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Database("PointsTxCommitFailed", err)
	}
	return nil
}

// Deduct debits userID by points, appending a deducted transaction with
// the points recorded as a negative signed value. It fails with
// InsufficientPoints rather than letting a balance go negative.
func (l *Ledger) Deduct(ctx context.Context, userID string, points int64, reason, actor string) error {
	if points <= 0 {
		return nil
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Database("PointsTxBeginFailed", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var balance int64
	err = tx.QueryRowContext(ctx, `SELECT total_points FROM user_points WHERE user_id = ?`, userID).Scan(&balance)
	if err != nil && err != sql.ErrNoRows {
		return apperr.Database("PointsBalanceQueryFailed", err)
	}
	if balance < points {
		return apperr.New(apperr.CategoryBusinessLogic, "InsufficientPoints", "balance would go negative", "you don't have enough points")
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE user_points SET total_points = total_points - ? WHERE user_id = ?`,
		points, userID,
	)
	if err != nil {
		return apperr.Database("PointsBalanceUpdateFailed", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO points_transactions (id, user_id, type, points, reason, actor, ts) VALUES (?,?,?,?,?,?,?)`,
		uuid.NewString(), userID, models.TxDeducted, -points, reason, actor, time.Now().UTC(),
	)
	if err != nil {
		return apperr.Database("PointsTransactionInsertFailed", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Database("PointsTxCommitFailed", err)
	}
	return nil
}

// Balance returns a user's current total and transaction history, newest
// first.
func (l *Ledger) Balance(ctx context.Context, userID string) (*models.UserPoints, error) {
	up := &models.UserPoints{UserID: userID}

	err := l.db.QueryRowContext(ctx, `SELECT total_points FROM user_points WHERE user_id = ?`, userID).Scan(&up.TotalPoints)
	if err != nil && err != sql.ErrNoRows {
		return nil, apperr.Database("PointsBalanceQueryFailed", err)
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, user_id, type, points, reason, actor, ts FROM points_transactions WHERE user_id = ? ORDER BY ts DESC`, userID)
	if err != nil {
		return nil, apperr.Database("PointsHistoryQueryFailed", err)
	}
	defer rows.Close()

	up.Transactions = []models.PointsTransaction{}
	for rows.Next() {
		var tx models.PointsTransaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Type, &tx.Points, &tx.Reason, &tx.Actor, &tx.Ts); err != nil {
			return nil, apperr.Database("PointsHistoryScanFailed", err)
		}
		up.Transactions = append(up.Transactions, tx)
	}
	return up, rows.Err()
}

// ListTransactions returns recent transactions across all users, newest
// first, optionally filtered to one userID. limit <= 0 means no limit.
func (l *Ledger) ListTransactions(ctx context.Context, userID string, limit int) ([]models.PointsTransaction, error) {
	query := `SELECT id, user_id, type, points, reason, actor, ts FROM points_transactions`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY ts DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Database("PointsTransactionsQueryFailed", err)
	}
	defer rows.Close()

	txs := []models.PointsTransaction{}
	for rows.Next() {
		var tx models.PointsTransaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Type, &tx.Points, &tx.Reason, &tx.Actor, &tx.Ts); err != nil {
			return nil, apperr.Database("PointsTransactionsScanFailed", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
