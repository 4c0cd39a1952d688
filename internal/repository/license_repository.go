package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/mobile-seat-admission/internal/entitlement"
	"github.com/iliyamo/mobile-seat-admission/internal/model"
)

// LicenseRepo reads purchased seat counts from the customer_licenses table
// and implements entitlement.Provider.
type LicenseRepo struct {
	db *sql.DB
}

// NewLicenseRepo returns a LicenseRepo bound to db.
func NewLicenseRepo(db *sql.DB) *LicenseRepo { return &LicenseRepo{db: db} }

var _ entitlement.Provider = (*LicenseRepo)(nil)

// AllowedSeats returns the seats bought by the customer for key, or zero
// when the customer has no such license.
func (r *LicenseRepo) AllowedSeats(ctx context.Context, customerID uint64, key model.EntitlementKey) (uint, error) {
	var seats uint
	err := r.db.QueryRowContext(ctx,
		`SELECT seats FROM customer_licenses WHERE customer_id = ? AND license_key = ?`,
		customerID, string(key),
	).Scan(&seats)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return seats, nil
}
