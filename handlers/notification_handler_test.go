package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strikeOutAPI/internal/types/notification"
)

func TestRegisterDevice(t *testing.T) {
	h := newHarness(t, "2025-06-10T12:00:00Z")
	const path = "/api/v1/notifications/register-device"

	rec := h.do(t, http.MethodPost, path, "alice", notification.RegisterDeviceRequest{Token: "  fcm-token-1 ", Platform: "iOS"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Device registered successfully", decodeBody[map[string]string](t, rec)["message"])

	// registering the same token again updates it in place
	rec = h.do(t, http.MethodPost, path, "alice", notification.RegisterDeviceRequest{Token: "fcm-token-1", Platform: "android"})
	require.Equal(t, http.StatusOK, rec.Code)

	tokens, err := h.store.DeviceTokens(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "fcm-token-1", tokens[0].Token)
	assert.Equal(t, "android", tokens[0].Platform)

	rec = h.do(t, http.MethodPost, path, "alice", notification.RegisterDeviceRequest{Token: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, path, "alice", "[")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, path, "", notification.RegisterDeviceRequest{Token: "fcm-token-2"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
