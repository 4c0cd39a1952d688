package utils // package utils provides helpers for issuing mobile credentials and hashing

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/mobile-seat-admission/internal/model"
)

// MobileTokenType is the value of the "type" claim of tokens issued to
// mobile applications.
const MobileTokenType = "mobile"

// ErrNotMobileToken is returned by ParseMobileToken for validly signed
// tokens of another type.
var ErrNotMobileToken = errors.New("not a mobile token")

// MobileClaims are the claims carried by a mobile token.  The registered
// jti claim is the token reference stored with the seat assignment.
type MobileClaims struct {
	UserID     uint64 `json:"id"`
	CustomerID uint64 `json:"customerId"`
	FullName   string `json:"fullName"`
	Type       string `json:"type"`
	jwt.RegisteredClaims
}

// MobileToken is a signed mobile JWT and its jti.
type MobileToken struct {
	Token string
	JTI   string
}

// NewMobileToken signs an HS256 token for u.  A ttl of zero issues a token
// without an exp claim; the seat assignment then bounds its usefulness.
func NewMobileToken(secret string, u model.User, ttl time.Duration, now time.Time) (MobileToken, error) {
	jti := uuid.NewString()
	claims := MobileClaims{
		UserID:     u.ID,
		CustomerID: u.CustomerID,
		FullName:   u.FullName,
		Type:       MobileTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       jti,
			Subject:  fmt.Sprint(u.ID),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return MobileToken{}, err
	}
	return MobileToken{Token: signed, JTI: jti}, nil
}

// ParseMobileToken verifies signature, expiry and type of raw.
func ParseMobileToken(secret, raw string) (*MobileClaims, error) {
	var claims MobileClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.Type != MobileTokenType {
		return nil, ErrNotMobileToken
	}
	return &claims, nil
}
