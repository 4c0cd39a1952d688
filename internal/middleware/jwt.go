package middleware // middleware contains reusable HTTP middleware for the mobile API

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/mobile-seat-admission/internal/utils"
)

// Context keys set by JWTAuth.
const (
	ClaimsKey = "mobile_claims"
	UserIDKey = "user_id"
)

// JWTAuth returns an Echo middleware that validates a Bearer mobile token
// and stores its claims under ClaimsKey and the user id (as a string, for
// rate limit keys) under UserIDKey.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "missing_bearer_token"})
			}
			claims, err := utils.ParseMobileToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "invalid_token"})
			}
			c.Set(ClaimsKey, claims)
			c.Set(UserIDKey, strconv.FormatUint(claims.UserID, 10))
			return next(c)
		}
	}
}

// Claims returns the mobile claims stored by JWTAuth, or nil.
func Claims(c echo.Context) *utils.MobileClaims {
	cl, _ := c.Get(ClaimsKey).(*utils.MobileClaims)
	return cl
}
