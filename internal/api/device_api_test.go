package api_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/tinywideclouds/go-push-gateway/internal/api"
	"github.com/tinywideclouds/go-push-gateway/internal/identity"
	"github.com/tinywideclouds/go-push-gateway/internal/registry"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockRegistrar struct {
	mock.Mock
}

func (m *MockRegistrar) Register(ctx context.Context, appID, token string, platform push.Platform, activationID string) error {
	return m.Called(ctx, appID, token, platform, activationID).Error(0)
}
func (m *MockRegistrar) RegisterMulti(ctx context.Context, appID, token string, platform push.Platform, activationIDs []string) error {
	return m.Called(ctx, appID, token, platform, activationIDs).Error(0)
}
func (m *MockRegistrar) UpdateStatus(ctx context.Context, activationID string, known *identity.Status) error {
	return m.Called(ctx, activationID, known).Error(0)
}
func (m *MockRegistrar) Delete(ctx context.Context, appID, token string) error {
	return m.Called(ctx, appID, token).Error(0)
}

func postJSON(t *testing.T, handler gin.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	_, router := gin.CreateTestContext(rec)
	router.POST("/test", handler)

	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	return rec
}

func TestDeviceAPI_Register(t *testing.T) {
	t.Run("Valid request returns 204", func(t *testing.T) {
		registrar := new(MockRegistrar)
		deviceAPI := api.NewDeviceAPI(registrar, newTestLogger())
		registrar.On("Register", mock.Anything, "app-1", "token-1", push.PlatformAndroid, "act-1").Return(nil)

		rec := postJSON(t, deviceAPI.Register,
			`{"app_id":"app-1","token":"token-1","platform":"android","activation_id":"act-1"}`)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		registrar.AssertExpectations(t)
	})

	t.Run("Missing fields return 400", func(t *testing.T) {
		deviceAPI := api.NewDeviceAPI(new(MockRegistrar), newTestLogger())
		rec := postJSON(t, deviceAPI.Register, `{"app_id":"app-1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Shared token rejection returns 400", func(t *testing.T) {
		registrar := new(MockRegistrar)
		deviceAPI := api.NewDeviceAPI(registrar, newTestLogger())
		registrar.On("Register", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(registry.ErrTokenSharedAcrossActivations)

		rec := postJSON(t, deviceAPI.Register,
			`{"app_id":"app-1","token":"token-1","platform":"android","activation_id":"act-1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Consistency violation returns 500", func(t *testing.T) {
		registrar := new(MockRegistrar)
		deviceAPI := api.NewDeviceAPI(registrar, newTestLogger())
		registrar.On("Register", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(registry.ErrInconsistentRegistrations)

		rec := postJSON(t, deviceAPI.Register,
			`{"app_id":"app-1","token":"token-1","platform":"android","activation_id":"act-1"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("Identity outage returns 503", func(t *testing.T) {
		registrar := new(MockRegistrar)
		deviceAPI := api.NewDeviceAPI(registrar, newTestLogger())
		registrar.On("Register", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(identity.ErrStatusUnavailable)

		rec := postJSON(t, deviceAPI.Register,
			`{"app_id":"app-1","token":"token-1","platform":"android","activation_id":"act-1"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestDeviceAPI_RegisterMulti(t *testing.T) {
	t.Run("Valid request passes all activation IDs through", func(t *testing.T) {
		registrar := new(MockRegistrar)
		deviceAPI := api.NewDeviceAPI(registrar, newTestLogger())
		registrar.On("RegisterMulti", mock.Anything, "app-1", "token-1", push.PlatformAndroid, []string{"act-1", "act-2"}).Return(nil)

		rec := postJSON(t, deviceAPI.RegisterMulti,
			`{"app_id":"app-1","token":"token-1","platform":"android","activation_ids":["act-1","act-2"]}`)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		registrar.AssertExpectations(t)
	})

	t.Run("Empty activation list returns 400", func(t *testing.T) {
		deviceAPI := api.NewDeviceAPI(new(MockRegistrar), newTestLogger())
		rec := postJSON(t, deviceAPI.RegisterMulti,
			`{"app_id":"app-1","token":"token-1","platform":"android","activation_ids":[]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDeviceAPI_UpdateStatus(t *testing.T) {
	t.Run("Known status is forwarded", func(t *testing.T) {
		registrar := new(MockRegistrar)
		deviceAPI := api.NewDeviceAPI(registrar, newTestLogger())
		blocked := identity.StatusBlocked
		registrar.On("UpdateStatus", mock.Anything, "act-1", &blocked).Return(nil)

		rec := postJSON(t, deviceAPI.UpdateStatus, `{"activation_id":"act-1","status":"BLOCKED"}`)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		registrar.AssertExpectations(t)
	})

	t.Run("Absent status triggers a provider lookup", func(t *testing.T) {
		registrar := new(MockRegistrar)
		deviceAPI := api.NewDeviceAPI(registrar, newTestLogger())
		registrar.On("UpdateStatus", mock.Anything, "act-1", (*identity.Status)(nil)).Return(nil)

		rec := postJSON(t, deviceAPI.UpdateStatus, `{"activation_id":"act-1"}`)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		registrar.AssertExpectations(t)
	})
}

func TestDeviceAPI_Unregister(t *testing.T) {
	registrar := new(MockRegistrar)
	deviceAPI := api.NewDeviceAPI(registrar, newTestLogger())
	registrar.On("Delete", mock.Anything, "app-1", "token-1").Return(nil)

	rec := postJSON(t, deviceAPI.Unregister, `{"app_id":"app-1","token":"token-1"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	registrar.AssertExpectations(t)
}
