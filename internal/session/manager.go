package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iliyamo/mobile-seat-admission/internal/admission"
	"github.com/iliyamo/mobile-seat-admission/internal/entitlement"
	"github.com/iliyamo/mobile-seat-admission/internal/model"
)

// ErrProvisioningUnavailable wraps failures of the entitlement provider or
// the seat store.  Callers may retry; it is never a policy rejection.
var ErrProvisioningUnavailable = errors.New("seat provisioning unavailable")

// Outcome discriminates an AdmissionResult.
type Outcome int

const (
	OutcomeActivated Outcome = iota + 1
	OutcomeRejected
	OutcomeFatal
)

// Incident identifies a reported invariant violation so that the end user
// can quote it to support.
type Incident struct {
	ID        string
	Violation admission.Violation
	Detail    string
}

// AdmissionResult is returned by Admit when the decision could be made.
type AdmissionResult struct {
	Outcome    Outcome
	Assignment model.SeatAssignment
	Rejection  admission.Rejection
	Incident   *Incident
}

// AdmitRequest asks for a seat of AppVariant for User on DeviceID.
// TokenRef references the credential that becomes valid when the seat is
// granted.
type AdmitRequest struct {
	AppVariant model.AppVariant
	User       model.User
	DeviceID   string
	TokenRef   string
}

// ReapResult summarises one ReapStale pass.
type ReapResult struct {
	Candidates int
	Reaped     int
}

// Manager is the entry point for admission, logout and reaping.  It holds
// no mutable state and is safe for concurrent use.
type Manager struct {
	provider entitlement.Provider
	store    SeatStore
	reporter Reporter
	log      zerolog.Logger

	now        func() time.Time
	incidentID func() string
}

// NewManager wires a Manager.  A nil reporter discards events.
func NewManager(provider entitlement.Provider, store SeatStore, reporter Reporter, log zerolog.Logger) *Manager {
	if provider == nil || store == nil {
		panic("nil dependency passed to NewManager")
	}
	if reporter == nil {
		reporter = NopReporter{}
	}
	return &Manager{
		provider:   provider,
		store:      store,
		reporter:   reporter,
		log:        log.With().Str("component", "session").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
		incidentID: func() string { return uuid.NewString() },
	}
}

// Admit resolves the license pool of the requested variant, reads capacity
// and the user's current assignment, and persists the new assignment when
// the engine activates it.  Reading the used count and the assignment and
// writing the result happen inside one SeatStore.InPool unit.
//
// The returned error is entitlement.ErrUnsupportedAppVariant for unknown
// variants or wraps ErrProvisioningUnavailable for I/O failures.
func (m *Manager) Admit(ctx context.Context, req AdmitRequest) (AdmissionResult, error) {
	key, err := entitlement.Resolve(req.AppVariant)
	if err != nil {
		return AdmissionResult{}, err
	}
	base := Event{
		AppVariant: req.AppVariant,
		UserID:     req.User.ID,
		CustomerID: req.User.CustomerID,
		DeviceID:   req.DeviceID,
	}

	allowed, err := m.provider.AllowedSeats(ctx, req.User.CustomerID, key)
	if err != nil {
		return AdmissionResult{}, m.provisioningFailed(ctx, base, "load licenses", err)
	}

	var decision admission.Decision
	err = m.store.InPool(ctx, req.AppVariant, req.User.CustomerID, func(tx SeatTx) error {
		used, err := tx.UsedCount(ctx, req.AppVariant, req.User.CustomerID)
		if err != nil {
			return fmt.Errorf("count used seats: %w", err)
		}
		existing, err := tx.Assignment(ctx, req.AppVariant, req.User.ID)
		if err != nil {
			return fmt.Errorf("load assignment: %w", err)
		}
		decision = admission.Decide(admission.Request{
			AppVariant: req.AppVariant,
			UserID:     req.User.ID,
			CustomerID: req.User.CustomerID,
			DeviceID:   req.DeviceID,
			TokenRef:   req.TokenRef,
			Allowed:    allowed,
			Used:       used,
			Existing:   existing,
		})
		m.log.Debug().
			Str("app_variant", string(req.AppVariant)).
			Uint64("user_id", req.User.ID).
			Uint("allowed", allowed).
			Uint("used", used).
			Bool("existing", existing != nil).
			Stringer("decision", decision.Kind).
			Msg("seat admission evaluated")
		if decision.Kind != admission.KindActivate {
			return nil
		}
		decision.Assignment.LastActivityAt = m.now()
		if err := tx.Upsert(ctx, decision.Assignment); err != nil {
			return fmt.Errorf("save assignment: %w", err)
		}
		return nil
	})
	if err != nil {
		return AdmissionResult{}, m.provisioningFailed(ctx, base, "admit", err)
	}

	switch decision.Kind {
	case admission.KindActivate:
		ev := base
		ev.Kind = EventAdmitted
		m.reporter.Report(ctx, ev)
		return AdmissionResult{Outcome: OutcomeActivated, Assignment: decision.Assignment}, nil
	case admission.KindReject:
		ev := base
		ev.Kind = EventRejected
		ev.Rejection = decision.Rejection
		m.reporter.Report(ctx, ev)
		return AdmissionResult{Outcome: OutcomeRejected, Rejection: decision.Rejection}, nil
	default:
		inc := &Incident{ID: m.incidentID(), Violation: decision.Violation, Detail: decision.Detail}
		ev := base
		ev.Kind = EventFatal
		ev.Violation = inc.Violation
		ev.IncidentID = inc.ID
		ev.Detail = inc.Detail
		m.reporter.Report(ctx, ev)
		return AdmissionResult{Outcome: OutcomeFatal, Incident: inc}, nil
	}
}

// Logout removes the user's assignment for the variant when it is bound to
// deviceID, freeing the seat whatever state it was in.  It reports whether
// a record was removed; a missing record is not an error.
func (m *Manager) Logout(ctx context.Context, variant model.AppVariant, userID uint64, deviceID string) (bool, error) {
	if _, err := entitlement.Resolve(variant); err != nil {
		return false, err
	}
	removed, err := m.store.Remove(ctx, variant, userID, deviceID)
	if err != nil {
		base := Event{AppVariant: variant, UserID: userID, DeviceID: deviceID}
		return false, m.provisioningFailed(ctx, base, "logout", err)
	}
	if removed {
		m.reporter.Report(ctx, Event{Kind: EventLoggedOut, AppVariant: variant, UserID: userID, DeviceID: deviceID})
	}
	return removed, nil
}

// Touch records activity of an admitted device so the reaper keeps its seat.
// It reports false when the user holds no active seat on deviceID.
func (m *Manager) Touch(ctx context.Context, variant model.AppVariant, userID uint64, deviceID string) (bool, error) {
	if _, err := entitlement.Resolve(variant); err != nil {
		return false, err
	}
	ok, err := m.store.Touch(ctx, variant, userID, deviceID, m.now())
	if err != nil {
		return false, fmt.Errorf("%w: touch: %w", ErrProvisioningUnavailable, err)
	}
	return ok, nil
}

// ReapStale deactivates, with reason NO_ACTIVITY, every active assignment
// whose last activity is not newer than idleSince.  Failures on single
// assignments do not stop the pass; they are joined into the returned error.
func (m *Manager) ReapStale(ctx context.Context, idleSince time.Time) (ReapResult, error) {
	candidates, err := m.store.ReapCandidates(ctx, idleSince)
	if err != nil {
		return ReapResult{}, fmt.Errorf("%w: list reap candidates: %w", ErrProvisioningUnavailable, err)
	}
	res := ReapResult{Candidates: len(candidates)}
	var errs []error
	for _, a := range candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		ok, err := m.store.Deactivate(ctx, a, model.ReasonNoActivity, idleSince)
		if err != nil {
			errs = append(errs, fmt.Errorf("deactivate user %d (%s): %w", a.UserID, a.AppVariant, err))
			continue
		}
		if !ok {
			continue
		}
		res.Reaped++
		m.reporter.Report(ctx, Event{
			Kind:       EventReaped,
			AppVariant: a.AppVariant,
			UserID:     a.UserID,
			CustomerID: a.CustomerID,
			DeviceID:   a.DeviceID,
		})
	}
	m.log.Info().Int("candidates", res.Candidates).Int("reaped", res.Reaped).Time("idle_since", idleSince).Msg("stale seats reaped")
	return res, errors.Join(errs...)
}

func (m *Manager) provisioningFailed(ctx context.Context, ev Event, op string, err error) error {
	ev.Kind = EventProvisioningFailed
	ev.Err = err
	ev.Detail = op
	m.reporter.Report(ctx, ev)
	return fmt.Errorf("%w: %s: %w", ErrProvisioningUnavailable, op, err)
}
