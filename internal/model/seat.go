package model

import "time"

// AppVariant names a mobile application flavour that consumes its own seat
// pool (e.g. "lite" or "full").
type AppVariant string

const (
	AppVariantLite AppVariant = "lite"
	AppVariantFull AppVariant = "full"
)

// EntitlementKey identifies a purchasable capacity pool for a customer.
type EntitlementKey string

// ReasonCode explains why a seat assignment is inactive.  ReasonNone is the
// only value an active assignment may carry.  Values are persisted as-is in
// seat_assignments.reason, so anything read back from storage must be
// checked with Known before being trusted.
type ReasonCode string

const (
	ReasonNone               ReasonCode = ""
	ReasonNoActivity         ReasonCode = "NO_ACTIVITY"
	ReasonLicenseDeactivated ReasonCode = "LICENSE_DEACTIVATED"
	ReasonLicenseReduced     ReasonCode = "LICENSE_REDUCED"
	ReasonDeviceBlocked      ReasonCode = "DEVICE_BLOCKED"
	ReasonUserLoggedOut      ReasonCode = "USER_LOGGED_OUT"
)

// Known reports whether r is one of the five deactivation reasons.
// ReasonNone is not a deactivation reason and reports false.
func (r ReasonCode) Known() bool {
	switch r {
	case ReasonNoActivity, ReasonLicenseDeactivated, ReasonLicenseReduced, ReasonDeviceBlocked, ReasonUserLoggedOut:
		return true
	}
	return false
}

// SeatAssignment binds one user to a seat of one application variant.
// Absence of a record means the user has never been admitted (or logged out);
// it is never represented as an inactive record without a reason.
//
// Fields:
//  UserID         – user owning the seat.
//  CustomerID     – customer account whose pool the seat is taken from.
//  AppVariant     – application variant the seat belongs to.
//  Active         – whether the seat is currently occupied.
//  Reason         – deactivation reason; ReasonNone while active.
//  DeviceID       – last known device identity (IMEI).
//  TokenRef       – opaque reference (jti) to the credential issued on admission.
//  LastActivityAt – last admission or sync call, drives reaping.
type SeatAssignment struct {
	UserID         uint64     // seat_assignments.user_id
	CustomerID     uint64     // seat_assignments.customer_id
	AppVariant     AppVariant // seat_assignments.app_variant
	Active         bool       // seat_assignments.active
	Reason         ReasonCode // seat_assignments.reason
	DeviceID       string     // seat_assignments.device_id
	TokenRef       string     // seat_assignments.token_ref
	LastActivityAt time.Time  // seat_assignments.last_activity_at
}
