package session

import (
	"context"

	"github.com/iliyamo/mobile-seat-admission/internal/admission"
	"github.com/iliyamo/mobile-seat-admission/internal/model"
)

// EventKind classifies lifecycle events handed to a Reporter.
type EventKind string

const (
	EventAdmitted           EventKind = "admitted"
	EventRejected           EventKind = "rejected"
	EventFatal              EventKind = "fatal"
	EventProvisioningFailed EventKind = "provisioning_failed"
	EventLoggedOut          EventKind = "logged_out"
	EventReaped             EventKind = "reaped"
)

// Event describes one lifecycle occurrence.  Only the fields relevant to
// Kind are set.
type Event struct {
	Kind       EventKind
	AppVariant model.AppVariant
	UserID     uint64
	CustomerID uint64
	DeviceID   string
	Rejection  admission.Rejection
	Violation  admission.Violation
	IncidentID string
	Detail     string
	Err        error
}

// Reporter receives lifecycle events for operators: logs, metrics and
// error capture.  Fatal events must be surfaced loudly.
type Reporter interface {
	Report(ctx context.Context, ev Event)
}

// NopReporter discards every event.
type NopReporter struct{}

func (NopReporter) Report(context.Context, Event) {}
