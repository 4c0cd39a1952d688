package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/mobile-seat-admission/internal/model"
	"github.com/iliyamo/mobile-seat-admission/internal/session"
)

// MySQL error numbers after which the whole transaction may be retried.
const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

// SeatRepo persists seat assignments in the seat_assignments table and
// implements session.SeatStore.  Admissions for the same customer and
// variant are serialized by an exclusive lock on the matching seat_pools
// row, taken as the first statement of every InPool transaction.
type SeatRepo struct {
	db       *sql.DB
	attempts int
}

// NewSeatRepo returns a SeatRepo bound to db.  Transactions aborted by a
// deadlock or a lock wait timeout are retried up to three times.
func NewSeatRepo(db *sql.DB) *SeatRepo { return &SeatRepo{db: db, attempts: 3} }

var _ session.SeatStore = (*SeatRepo)(nil)

const assignmentColumns = `user_id, customer_id, app_variant, active, reason, device_id, token_ref, last_activity_at`

// InPool runs fn inside a transaction holding the pool lock for
// (customerID, variant).  The transaction commits only when fn returns nil.
func (r *SeatRepo) InPool(ctx context.Context, variant model.AppVariant, customerID uint64, fn func(tx session.SeatTx) error) error {
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		err = r.inPoolOnce(ctx, variant, customerID, fn)
		if !retryable(err) {
			return err
		}
	}
	return err
}

func (r *SeatRepo) inPoolOnce(ctx context.Context, variant model.AppVariant, customerID uint64, fn func(tx session.SeatTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	// The no-op update takes an exclusive row lock whether or not the pool
	// row existed before.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO seat_pools (customer_id, app_variant) VALUES (?, ?)
		 ON DUPLICATE KEY UPDATE customer_id = customer_id`,
		customerID, string(variant),
	); err != nil {
		return err
	}
	if err := fn(&seatTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func retryable(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == errDeadlock || me.Number == errLockWaitTimeout
	}
	return false
}

type seatTx struct {
	tx *sql.Tx
}

// UsedCount counts active assignments of the customer's pool.
func (t *seatTx) UsedCount(ctx context.Context, variant model.AppVariant, customerID uint64) (uint, error) {
	var n uint
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seat_assignments WHERE app_variant = ? AND customer_id = ? AND active = 1`,
		string(variant), customerID,
	).Scan(&n)
	return n, err
}

// Assignment loads and locks the user's assignment.  It returns nil and no
// error when the user has none.
func (t *seatTx) Assignment(ctx context.Context, variant model.AppVariant, userID uint64) (*model.SeatAssignment, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM seat_assignments WHERE app_variant = ? AND user_id = ? FOR UPDATE`,
		string(variant), userID,
	)
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Upsert inserts the assignment or overwrites the user's existing one.
func (t *seatTx) Upsert(ctx context.Context, a model.SeatAssignment) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO seat_assignments (`+assignmentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE
		   customer_id = VALUES(customer_id),
		   active = VALUES(active),
		   reason = VALUES(reason),
		   device_id = VALUES(device_id),
		   token_ref = VALUES(token_ref),
		   last_activity_at = VALUES(last_activity_at)`,
		a.UserID, a.CustomerID, string(a.AppVariant), a.Active, nullReason(a.Reason),
		a.DeviceID, a.TokenRef, a.LastActivityAt.UTC(),
	)
	return err
}

// Remove deletes the user's assignment when it is bound to deviceID.
func (r *SeatRepo) Remove(ctx context.Context, variant model.AppVariant, userID uint64, deviceID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM seat_assignments WHERE app_variant = ? AND user_id = ? AND device_id = ?`,
		string(variant), userID, deviceID,
	)
	return affected(res, err)
}

// Touch refreshes last_activity_at of an active assignment on deviceID.
func (r *SeatRepo) Touch(ctx context.Context, variant model.AppVariant, userID uint64, deviceID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE seat_assignments SET last_activity_at = ?
		 WHERE app_variant = ? AND user_id = ? AND device_id = ? AND active = 1`,
		at.UTC(), string(variant), userID, deviceID,
	)
	return affected(res, err)
}

// ReapCandidates lists active assignments idle since idleSince or longer.
func (r *SeatRepo) ReapCandidates(ctx context.Context, idleSince time.Time) ([]model.SeatAssignment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+assignmentColumns+` FROM seat_assignments WHERE active = 1 AND last_activity_at <= ?`,
		idleSince.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SeatAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Deactivate marks the assignment inactive with reason.  The update is
// conditional on the row still being active and idle, so an admission or
// sync that raced the reaper is preserved.
func (r *SeatRepo) Deactivate(ctx context.Context, a model.SeatAssignment, reason model.ReasonCode, idleSince time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE seat_assignments SET active = 0, reason = ?
		 WHERE app_variant = ? AND user_id = ? AND active = 1 AND last_activity_at <= ?`,
		string(reason), string(a.AppVariant), a.UserID, idleSince.UTC(),
	)
	return affected(res, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(s rowScanner) (model.SeatAssignment, error) {
	var (
		a       model.SeatAssignment
		variant string
		reason  sql.NullString
	)
	err := s.Scan(&a.UserID, &a.CustomerID, &variant, &a.Active, &reason, &a.DeviceID, &a.TokenRef, &a.LastActivityAt)
	if err != nil {
		return model.SeatAssignment{}, err
	}
	a.AppVariant = model.AppVariant(variant)
	if reason.Valid {
		a.Reason = model.ReasonCode(reason.String)
	}
	return a, nil
}

func nullReason(r model.ReasonCode) sql.NullString {
	return sql.NullString{String: string(r), Valid: r != model.ReasonNone}
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
