package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/mobile-seat-admission/internal/admission"
	"github.com/iliyamo/mobile-seat-admission/internal/middleware"
	"github.com/iliyamo/mobile-seat-admission/internal/model"
	"github.com/iliyamo/mobile-seat-admission/internal/queue"
	"github.com/iliyamo/mobile-seat-admission/internal/repository"
	"github.com/iliyamo/mobile-seat-admission/internal/session"
	"github.com/iliyamo/mobile-seat-admission/internal/utils"
)

const secret = "test-secret"

type seatsMock struct{ mock.Mock }

func (m *seatsMock) Admit(ctx context.Context, req session.AdmitRequest) (session.AdmissionResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(session.AdmissionResult), args.Error(1)
}

func (m *seatsMock) Logout(ctx context.Context, variant model.AppVariant, userID uint64, deviceID string) (bool, error) {
	args := m.Called(ctx, variant, userID, deviceID)
	return args.Bool(0), args.Error(1)
}

func (m *seatsMock) Touch(ctx context.Context, variant model.AppVariant, userID uint64, deviceID string) (bool, error) {
	args := m.Called(ctx, variant, userID, deviceID)
	return args.Bool(0), args.Error(1)
}

type usersMock struct{ mock.Mock }

func (m *usersMock) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	args := m.Called(ctx, login)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

type tokensMock struct{ mock.Mock }

func (m *tokensMock) Mark(ctx context.Context, userID uint64, jti string, ttl time.Duration) error {
	return m.Called(ctx, userID, jti, ttl).Error(0)
}

func (m *tokensMock) Clear(ctx context.Context, userID uint64, jti string) error {
	return m.Called(ctx, userID, jti).Error(0)
}

type activityLog struct {
	mu     sync.Mutex
	events []queue.ActivityEvent
}

func (a *activityLog) Record(_ context.Context, ev queue.ActivityEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
}

type fixture struct {
	h        *MobileHandler
	seats    *seatsMock
	users    *usersMock
	tokens   *tokensMock
	activity *activityLog
	user     *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hash, err := utils.HashPassword("pa55", bcrypt.MinCost)
	require.NoError(t, err)
	f := &fixture{
		seats:    &seatsMock{},
		users:    &usersMock{},
		tokens:   &tokensMock{},
		activity: &activityLog{},
		user:     &model.User{ID: 7, CustomerID: 123, Login: "anna", PasswordHash: hash, IsActive: true},
	}
	f.h = NewMobileHandler(f.seats, f.users, f.tokens, f.activity, secret, time.Hour, zerolog.Nop())
	t.Cleanup(func() {
		f.seats.AssertExpectations(t)
		f.users.AssertExpectations(t)
		f.tokens.AssertExpectations(t)
	})
	return f
}

func post(t *testing.T, handler echo.HandlerFunc, body string, claims *utils.MobileClaims) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if claims != nil {
		c.Set(middleware.ClaimsKey, claims)
	}
	require.NoError(t, handler(c))
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

const tokenBody = `{"login":"anna","password":"pa55","app_type":"full","imei":"D1"}`

func TestTokenActivated(t *testing.T) {
	f := newFixture(t)
	f.users.On("GetByLogin", mock.Anything, "anna").Return(f.user, nil)
	var jti string
	f.seats.On("Admit", mock.Anything, mock.MatchedBy(func(r session.AdmitRequest) bool {
		jti = r.TokenRef
		return r.AppVariant == model.AppVariantFull && r.User.ID == 7 && r.DeviceID == "D1" && r.TokenRef != ""
	})).Return(session.AdmissionResult{Outcome: session.OutcomeActivated}, nil)
	f.tokens.On("Mark", mock.Anything, uint64(7), mock.AnythingOfType("string"), time.Hour).Return(nil)

	rec, out := post(t, f.h.Token, tokenBody, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"releaseLicense": true, "syncCallAfterEnded": true}, out["features"])

	claims, err := utils.ParseMobileToken(secret, out["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, jti, claims.ID)
	assert.Equal(t, uint64(7), claims.UserID)

	require.Len(t, f.activity.events, 1)
	assert.Equal(t, queue.ActivityRegenerateToken, f.activity.events[0].Activity)
	assert.Equal(t, queue.StatusSuccess, f.activity.events[0].Status)
}

func TestTokenRejected(t *testing.T) {
	for _, r := range []admission.Rejection{
		admission.RejectNoCapacityAvailable,
		admission.RejectCapacityExceeded,
		admission.RejectDeviceBlocked,
		admission.RejectBlockedByLicenseReduction,
	} {
		t.Run(string(r), func(t *testing.T) {
			f := newFixture(t)
			f.users.On("GetByLogin", mock.Anything, "anna").Return(f.user, nil)
			f.seats.On("Admit", mock.Anything, mock.Anything).
				Return(session.AdmissionResult{Outcome: session.OutcomeRejected, Rejection: r}, nil)

			rec, out := post(t, f.h.Token, tokenBody, nil)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, false, out["success"])
			assert.Equal(t, string(r), out["message"])
			assert.NotContains(t, out, "token")
			f.tokens.AssertNotCalled(t, "Mark", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			require.Len(t, f.activity.events, 1)
			assert.Equal(t, string(r), f.activity.events[0].Status)
		})
	}
}

func TestTokenFatalCarriesIncident(t *testing.T) {
	f := newFixture(t)
	f.users.On("GetByLogin", mock.Anything, "anna").Return(f.user, nil)
	f.seats.On("Admit", mock.Anything, mock.Anything).Return(session.AdmissionResult{
		Outcome:  session.OutcomeFatal,
		Incident: &session.Incident{ID: "inc-1", Violation: admission.ViolationActiveAssignmentHasReason},
	}, nil)

	rec, out := post(t, f.h.Token, tokenBody, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", out["message"])
	assert.Equal(t, "inc-1", out["identifier"])
}

func TestTokenFailures(t *testing.T) {
	t.Run("bad credentials", func(t *testing.T) {
		f := newFixture(t)
		f.users.On("GetByLogin", mock.Anything, "anna").Return(f.user, nil)
		rec, out := post(t, f.h.Token, `{"login":"anna","password":"nope","app_type":"full","imei":"D1"}`, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid_credentials", out["message"])
	})
	t.Run("unknown user", func(t *testing.T) {
		f := newFixture(t)
		f.users.On("GetByLogin", mock.Anything, "anna").Return(nil, repository.ErrUserNotFound)
		rec, _ := post(t, f.h.Token, tokenBody, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
	t.Run("inactive user", func(t *testing.T) {
		f := newFixture(t)
		f.user.IsActive = false
		f.users.On("GetByLogin", mock.Anything, "anna").Return(f.user, nil)
		rec, _ := post(t, f.h.Token, tokenBody, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
	t.Run("unsupported app type", func(t *testing.T) {
		f := newFixture(t)
		rec, out := post(t, f.h.Token, `{"login":"anna","password":"pa55","app_type":"tablet","imei":"D1"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "unsupported_app_type", out["message"])
	})
	t.Run("missing imei", func(t *testing.T) {
		f := newFixture(t)
		rec, _ := post(t, f.h.Token, `{"login":"anna","password":"pa55","app_type":"lite"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("provisioning unavailable", func(t *testing.T) {
		f := newFixture(t)
		f.users.On("GetByLogin", mock.Anything, "anna").Return(f.user, nil)
		f.seats.On("Admit", mock.Anything, mock.Anything).
			Return(session.AdmissionResult{}, errors.Join(session.ErrProvisioningUnavailable, errors.New("db down")))
		rec, out := post(t, f.h.Token, tokenBody, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "service_unavailable", out["message"])
		require.Len(t, f.activity.events, 1)
		assert.Equal(t, queue.StatusError, f.activity.events[0].Status)
	})
}

func bearer() *utils.MobileClaims {
	c := &utils.MobileClaims{UserID: 7, CustomerID: 123, Type: utils.MobileTokenType}
	c.ID = "jti-1"
	return c
}

func TestSync(t *testing.T) {
	f := newFixture(t)
	f.seats.On("Touch", mock.Anything, model.AppVariantLite, uint64(7), "D1").Return(true, nil).Once()
	rec, out := post(t, f.h.Sync, `{"app_type":"lite","imei":"D1"}`, bearer())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])

	f.seats.On("Touch", mock.Anything, model.AppVariantLite, uint64(7), "D2").Return(false, nil).Once()
	rec, out = post(t, f.h.Sync, `{"app_type":"lite","imei":"D2"}`, bearer())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "license_inactive", out["message"])

	require.Len(t, f.activity.events, 2)
	assert.Equal(t, queue.ActivitySyncCall, f.activity.events[1].Activity)
}

func TestSyncWithoutClaims(t *testing.T) {
	f := newFixture(t)
	rec, _ := post(t, f.h.Sync, `{"app_type":"lite","imei":"D1"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	f.seats.On("Logout", mock.Anything, model.AppVariantFull, uint64(7), "D1").Return(true, nil)
	f.tokens.On("Clear", mock.Anything, uint64(7), "jti-1").Return(nil)

	rec, out := post(t, f.h.Logout, `{"app_type":"full","imei":"D1"}`, bearer())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])
	require.Len(t, f.activity.events, 1)
	assert.Equal(t, queue.ActivityLogout, f.activity.events[0].Activity)
}

func TestLogoutStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.seats.On("Logout", mock.Anything, model.AppVariantFull, uint64(7), "D1").Return(false, errors.New("db down"))

	rec, _ := post(t, f.h.Logout, `{"app_type":"full","imei":"D1"}`, bearer())
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	f.tokens.AssertNotCalled(t, "Clear", mock.Anything, mock.Anything, mock.Anything)
}

func TestInvalidIMEIRejected(t *testing.T) {
	long := strings.Repeat("9", maxDeviceIDLen+1)
	for name, imei := range map[string]string{"too long": long, "multibyte over limit": strings.Repeat("é", 33)} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			body, err := json.Marshal(map[string]string{"login": "anna", "password": "pa55", "app_type": "full", "imei": imei})
			require.NoError(t, err)
			rec, out := post(t, f.h.Token, string(body), nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_imei", out["message"])

			body, err = json.Marshal(map[string]string{"app_type": "full", "imei": imei})
			require.NoError(t, err)
			for _, h := range []echo.HandlerFunc{f.h.Sync, f.h.Logout} {
				rec, out = post(t, h, string(body), bearer())
				assert.Equal(t, http.StatusBadRequest, rec.Code)
				assert.Equal(t, "invalid_imei", out["message"])
			}
			f.seats.AssertNotCalled(t, "Admit", mock.Anything, mock.Anything)
			assert.Empty(t, f.activity.events)
		})
	}
}

func TestIMEIAtColumnLimitAccepted(t *testing.T) {
	f := newFixture(t)
	imei := strings.Repeat("9", maxDeviceIDLen)
	f.seats.On("Touch", mock.Anything, model.AppVariantFull, uint64(7), imei).Return(true, nil)
	rec, _ := post(t, f.h.Sync, `{"app_type":"full","imei":"`+imei+`"}`, bearer())
	assert.Equal(t, http.StatusOK, rec.Code)
}
