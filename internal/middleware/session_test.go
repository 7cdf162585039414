package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"sentinel/pkg/models"
)

func captureSession(t *testing.T, req *http.Request) Session {
	t.Helper()

	var got Session
	handler := DeviceSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = SessionFrom(r)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestDeviceSessionReadsHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/sos/trigger", nil)
	req.Header.Set("X-User-Id", "user-1")
	req.Header.Set("X-User-Name", "Asha")
	req.Header.Set("X-Device-Token", "tok-1")

	got := captureSession(t, req)

	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "Asha", got.UserName)
	assert.Equal(t, "tok-1", got.DeviceToken)
	assert.True(t, got.Authenticated)
}

func TestDeviceSessionFallsBackToOfflineUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/sos/trigger", nil)

	got := captureSession(t, req)

	assert.Equal(t, models.OfflineUserID, got.UserID)
	assert.False(t, got.Authenticated)
}

func TestSessionFromWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	got := SessionFrom(req)

	assert.Equal(t, models.OfflineUserID, got.UserID)
	assert.False(t, got.Authenticated)
}
