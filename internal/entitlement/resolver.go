// Package entitlement maps application variants onto the license pools that
// bound them and defines the contract for looking up how many seats a
// customer has purchased.
package entitlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/mobile-seat-admission/internal/model"
)

const (
	LicenseAppMobileLite model.EntitlementKey = "app_mobile_lite"
	LicenseAppMobileFull model.EntitlementKey = "app_mobile_full"
)

// ErrUnsupportedAppVariant is returned by Resolve for variants that have no
// license pool configured.
var ErrUnsupportedAppVariant = errors.New("unsupported app variant")

var variantKeys = map[model.AppVariant]model.EntitlementKey{
	model.AppVariantLite: LicenseAppMobileLite,
	model.AppVariantFull: LicenseAppMobileFull,
}

// Resolve returns the entitlement key whose capacity governs variant.
func Resolve(variant model.AppVariant) (model.EntitlementKey, error) {
	key, ok := variantKeys[variant]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAppVariant, variant)
	}
	return key, nil
}

// Provider reports the number of seats a customer may occupy for an
// entitlement key.  Implementations return transport failures as errors;
// a customer without any license for the key has zero seats.
type Provider interface {
	AllowedSeats(ctx context.Context, customerID uint64, key model.EntitlementKey) (uint, error)
}
