package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/mobile-seat-admission/internal/entitlement"
	"github.com/iliyamo/mobile-seat-admission/internal/middleware"
	"github.com/iliyamo/mobile-seat-admission/internal/model"
	"github.com/iliyamo/mobile-seat-admission/internal/queue"
	"github.com/iliyamo/mobile-seat-admission/internal/repository"
	"github.com/iliyamo/mobile-seat-admission/internal/session"
	"github.com/iliyamo/mobile-seat-admission/internal/utils"
)

// SeatSessions is the part of session.Manager used by the mobile endpoints.
type SeatSessions interface {
	Admit(ctx context.Context, req session.AdmitRequest) (session.AdmissionResult, error)
	Logout(ctx context.Context, variant model.AppVariant, userID uint64, deviceID string) (bool, error)
	Touch(ctx context.Context, variant model.AppVariant, userID uint64, deviceID string) (bool, error)
}

type UserLookup interface {
	GetByLogin(ctx context.Context, login string) (*model.User, error)
}

// TokenMarker tracks the single current token of each user.
type TokenMarker interface {
	Mark(ctx context.Context, userID uint64, jti string, ttl time.Duration) error
	Clear(ctx context.Context, userID uint64, jti string) error
}

type ActivityRecorder interface {
	Record(ctx context.Context, ev queue.ActivityEvent)
}

// MobileHandler serves token issuance, sync heartbeats and logout for the
// mobile applications.
type MobileHandler struct {
	Seats    SeatSessions
	Users    UserLookup
	Tokens   TokenMarker
	Activity ActivityRecorder
	Secret   string
	TokenTTL time.Duration
	Log      zerolog.Logger

	now func() time.Time
}

func NewMobileHandler(seats SeatSessions, users UserLookup, tokens TokenMarker, activity ActivityRecorder,
	secret string, ttl time.Duration, log zerolog.Logger) *MobileHandler {
	return &MobileHandler{
		Seats:    seats,
		Users:    users,
		Tokens:   tokens,
		Activity: activity,
		Secret:   secret,
		TokenTTL: ttl,
		Log:      log.With().Str("component", "mobile-handler").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ----- DTOs -----

type tokenReq struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	AppType  string `json:"app_type"`
	IMEI     string `json:"imei"`
}

type deviceReq struct {
	AppType string `json:"app_type"`
	IMEI    string `json:"imei"`
}

type features struct {
	ReleaseLicense     bool `json:"releaseLicense"`
	SyncCallAfterEnded bool `json:"syncCallAfterEnded"`
}

type tokenResp struct {
	Token    string   `json:"token"`
	Features features `json:"features"`
}

// maxDeviceIDLen matches seat_assignments.device_id.
const maxDeviceIDLen = 64

func validDeviceID(id string) bool {
	return len(id) <= maxDeviceIDLen && utf8.ValidString(id)
}

func failure(c echo.Context, status int, message string) error {
	return c.JSON(status, echo.Map{"success": false, "message": message})
}

// Token authenticates the user and admits them to a seat of the requested
// app variant.  The issued token is only returned when the seat is granted.
func (h *MobileHandler) Token(c echo.Context) error {
	var req tokenReq
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "invalid_body")
	}
	req.Login = strings.TrimSpace(req.Login)
	req.IMEI = strings.TrimSpace(req.IMEI)
	if req.Login == "" || req.Password == "" || req.IMEI == "" {
		return failure(c, http.StatusBadRequest, "login_password_imei_required")
	}
	if !validDeviceID(req.IMEI) {
		return failure(c, http.StatusBadRequest, "invalid_imei")
	}
	variant := model.AppVariant(strings.ToLower(strings.TrimSpace(req.AppType)))
	if _, err := entitlement.Resolve(variant); err != nil {
		return failure(c, http.StatusBadRequest, "unsupported_app_type")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByLogin(ctx, req.Login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return failure(c, http.StatusUnauthorized, "invalid_credentials")
		}
		h.Log.Error().Err(err).Msg("user lookup failed")
		return failure(c, http.StatusServiceUnavailable, "service_unavailable")
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) || !u.IsActive {
		return failure(c, http.StatusUnauthorized, "invalid_credentials")
	}

	tok, err := utils.NewMobileToken(h.Secret, *u, h.TokenTTL, h.now())
	if err != nil {
		h.Log.Error().Err(err).Uint64("user_id", u.ID).Msg("sign mobile token failed")
		return failure(c, http.StatusInternalServerError, "internal_error")
	}

	activity := queue.ActivityEvent{
		UserID:     u.ID,
		CustomerID: u.CustomerID,
		AppVariant: string(variant),
		DeviceID:   req.IMEI,
		Activity:   queue.ActivityRegenerateToken,
	}

	res, err := h.Seats.Admit(ctx, session.AdmitRequest{
		AppVariant: variant,
		User:       *u,
		DeviceID:   req.IMEI,
		TokenRef:   tok.JTI,
	})
	if err != nil {
		activity.Status = queue.StatusError
		h.Activity.Record(ctx, activity)
		if errors.Is(err, entitlement.ErrUnsupportedAppVariant) {
			return failure(c, http.StatusBadRequest, "unsupported_app_type")
		}
		return failure(c, http.StatusServiceUnavailable, "service_unavailable")
	}

	switch res.Outcome {
	case session.OutcomeActivated:
		if err := h.Tokens.Mark(ctx, u.ID, tok.JTI, h.TokenTTL); err != nil {
			h.Log.Warn().Err(err).Uint64("user_id", u.ID).Msg("mark active token failed")
		}
		activity.Status = queue.StatusSuccess
		h.Activity.Record(ctx, activity)
		return c.JSON(http.StatusOK, tokenResp{
			Token:    tok.Token,
			Features: features{ReleaseLicense: true, SyncCallAfterEnded: true},
		})
	case session.OutcomeRejected:
		activity.Status = string(res.Rejection)
		h.Activity.Record(ctx, activity)
		return failure(c, http.StatusOK, string(res.Rejection))
	default:
		activity.Status = queue.StatusError
		h.Activity.Record(ctx, activity)
		var id string
		if res.Incident != nil {
			id = res.Incident.ID
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"success":    false,
			"message":    "internal_error",
			"identifier": id,
		})
	}
}

// Sync records client activity on the seat held by the bearer's device.
func (h *MobileHandler) Sync(c echo.Context) error {
	claims, variant, device, ok, err := h.deviceRequest(c)
	if !ok {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	activity := queue.ActivityEvent{
		UserID:     claims.UserID,
		CustomerID: claims.CustomerID,
		AppVariant: string(variant),
		DeviceID:   device,
		Activity:   queue.ActivitySyncCall,
	}
	touched, err := h.Seats.Touch(ctx, variant, claims.UserID, device)
	if err != nil {
		activity.Status = queue.StatusError
		h.Activity.Record(ctx, activity)
		return failure(c, http.StatusServiceUnavailable, "service_unavailable")
	}
	if !touched {
		activity.Status = "license_inactive"
		h.Activity.Record(ctx, activity)
		return failure(c, http.StatusUnauthorized, "license_inactive")
	}
	activity.Status = queue.StatusSuccess
	h.Activity.Record(ctx, activity)
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// Logout frees the seat held by the bearer's device and retires the token.
func (h *MobileHandler) Logout(c echo.Context) error {
	claims, variant, device, ok, err := h.deviceRequest(c)
	if !ok {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	activity := queue.ActivityEvent{
		UserID:     claims.UserID,
		CustomerID: claims.CustomerID,
		AppVariant: string(variant),
		DeviceID:   device,
		Activity:   queue.ActivityLogout,
	}
	if _, err := h.Seats.Logout(ctx, variant, claims.UserID, device); err != nil {
		activity.Status = queue.StatusError
		h.Activity.Record(ctx, activity)
		return failure(c, http.StatusServiceUnavailable, "service_unavailable")
	}
	if err := h.Tokens.Clear(ctx, claims.UserID, claims.ID); err != nil {
		h.Log.Warn().Err(err).Uint64("user_id", claims.UserID).Msg("clear active token failed")
	}
	activity.Status = queue.StatusSuccess
	h.Activity.Record(ctx, activity)
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// deviceRequest binds {app_type, imei} for an authenticated request.  When
// ok is false the error response has already been written and err is the
// result of writing it.
func (h *MobileHandler) deviceRequest(c echo.Context) (claims *utils.MobileClaims, variant model.AppVariant, device string, ok bool, err error) {
	claims = middleware.Claims(c)
	if claims == nil {
		return nil, "", "", false, failure(c, http.StatusUnauthorized, "invalid_token")
	}
	var req deviceReq
	if err := c.Bind(&req); err != nil {
		return nil, "", "", false, failure(c, http.StatusBadRequest, "invalid_body")
	}
	variant = model.AppVariant(strings.ToLower(strings.TrimSpace(req.AppType)))
	if _, err := entitlement.Resolve(variant); err != nil {
		return nil, "", "", false, failure(c, http.StatusBadRequest, "unsupported_app_type")
	}
	device = strings.TrimSpace(req.IMEI)
	if device == "" {
		return nil, "", "", false, failure(c, http.StatusBadRequest, "imei_required")
	}
	if !validDeviceID(device) {
		return nil, "", "", false, failure(c, http.StatusBadRequest, "invalid_imei")
	}
	return claims, variant, device, true, nil
}
