package admission

import "github.com/iliyamo/mobile-seat-admission/internal/model"

// Request carries everything Decide needs.  Allowed and Used are read by the
// caller inside the same atomic unit that will persist the decision.
// Existing is nil when the user holds no assignment for the variant.
type Request struct {
	AppVariant model.AppVariant
	UserID     uint64
	CustomerID uint64
	DeviceID   string
	TokenRef   string
	Allowed    uint
	Used       uint
	Existing   *model.SeatAssignment
}

// Decide evaluates the admission rules in a fixed order.  Later checks rely
// on earlier ones not having matched.
func Decide(req Request) Decision {
	ex := req.Existing

	if ex != nil && !ex.Active && !ex.Reason.Known() {
		return fatal(ViolationUnknownDeactivationReason,
			"unknown seat deactivation reason %q for user %d", ex.Reason, req.UserID)
	}
	if ex != nil && ex.Active && ex.Reason != model.ReasonNone {
		return fatal(ViolationActiveAssignmentHasReason,
			"active seat carries deactivation reason %q for user %d", ex.Reason, req.UserID)
	}

	if ex != nil && !ex.Active {
		switch ex.Reason {
		case model.ReasonDeviceBlocked:
			// The block is bound to the device, another device of the same user may proceed.
			if ex.DeviceID == req.DeviceID {
				return reject(RejectDeviceBlocked)
			}
		case model.ReasonLicenseReduced:
			if req.Used >= req.Allowed {
				return reject(RejectBlockedByLicenseReduction)
			}
		}
	}

	if req.Used > req.Allowed {
		return reject(RejectCapacityExceeded)
	}
	// A returning user does not grow the used count, so only newcomers are
	// turned away from a full pool.
	if req.Used == req.Allowed && ex == nil {
		return reject(RejectNoCapacityAvailable)
	}

	return activate(model.SeatAssignment{
		UserID:     req.UserID,
		CustomerID: req.CustomerID,
		AppVariant: req.AppVariant,
		Active:     true,
		Reason:     model.ReasonNone,
		DeviceID:   req.DeviceID,
		TokenRef:   req.TokenRef,
	})
}
