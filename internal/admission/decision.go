// Package admission decides whether a device may occupy a seat of an
// application variant.  The engine is a pure function over a snapshot of
// capacity counts and the user's existing assignment; persisting its
// outcome is the caller's job.
package admission

import (
	"fmt"

	"github.com/iliyamo/mobile-seat-admission/internal/model"
)

// Kind discriminates the three possible outcomes of Decide.
type Kind int

const (
	KindActivate Kind = iota + 1
	KindReject
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindActivate:
		return "activate"
	case KindReject:
		return "reject"
	case KindFatal:
		return "fatal"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Rejection is an expected, user-facing policy denial.  The string values
// double as the message labels returned to mobile clients.
type Rejection string

const (
	RejectDeviceBlocked             Rejection = "device_blocked"
	RejectBlockedByLicenseReduction Rejection = "blocked_due_license_reduction"
	RejectNoCapacityAvailable       Rejection = "no_licenses_available"
	RejectCapacityExceeded          Rejection = "licenses_extended"
)

// Violation names a broken invariant of persisted seat state.  Violations
// are never shown to end users as denials; they need an operator.
type Violation string

const (
	ViolationUnknownDeactivationReason Violation = "unknown_deactivation_reason"
	ViolationActiveAssignmentHasReason Violation = "active_assignment_has_reason"
)

// Decision is the outcome of Decide.  Exactly one of Assignment, Rejection
// or Violation is meaningful, selected by Kind.
type Decision struct {
	Kind       Kind
	Assignment model.SeatAssignment
	Rejection  Rejection
	Violation  Violation
	Detail     string
}

func activate(a model.SeatAssignment) Decision {
	return Decision{Kind: KindActivate, Assignment: a}
}

func reject(r Rejection) Decision {
	return Decision{Kind: KindReject, Rejection: r}
}

func fatal(v Violation, format string, args ...any) Decision {
	return Decision{Kind: KindFatal, Violation: v, Detail: fmt.Sprintf(format, args...)}
}
