package middleware

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// TokenChecker reports whether a token (by jti) is the user's current one.
type TokenChecker interface {
	IsActive(ctx context.Context, userID uint64, jti string) (bool, error)
}

// RequireActiveToken rejects bearer tokens superseded by a later admission.
// It must run after JWTAuth.  When the checker itself fails the request is
// let through: the seat store still guards the operation.
func RequireActiveToken(tokens TokenChecker, log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := Claims(c)
			if claims == nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "invalid_token"})
			}
			ok, err := tokens.IsActive(c.Request().Context(), claims.UserID, claims.ID)
			if err != nil {
				log.Warn().Err(err).Uint64("user_id", claims.UserID).Msg("active token check failed, allowing request")
				return next(c)
			}
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "message": "token_inactive"})
			}
			return next(c)
		}
	}
}
