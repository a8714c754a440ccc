package notification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strikeOutAPI/internal/types/notification"
)

func TestBuildMessage_PlatformConfig(t *testing.T) {
	data := map[string]string{"type": "member_eliminated", "period_key": "2025-06-10"}

	ios := buildMessage(notification.DeviceToken{Token: "ios-token", Platform: "ios"}, "You're out", "Missed 2025-06-10", data)
	assert.Equal(t, "ios-token", ios.Token)
	assert.Equal(t, "You're out", ios.Notification.Title)
	require.NotNil(t, ios.APNS)
	assert.Equal(t, "default", ios.APNS.Payload.Aps.Sound)
	assert.Nil(t, ios.Android)
	assert.Equal(t, data, ios.Data)

	android := buildMessage(notification.DeviceToken{Token: "android-token", Platform: "android"}, "Challenge over", "", nil)
	require.NotNil(t, android.Android)
	assert.Equal(t, "high", android.Android.Priority)
	assert.Nil(t, android.APNS)
}

func TestNewFCMService_MissingCredentials(t *testing.T) {
	_, err := NewFCMService(context.Background(), "", "/nonexistent/serviceAccountKey.json")
	assert.ErrorContains(t, err, "local firebase file not found")

	_, err = NewFCMService(context.Background(), "%%%not-base64", "")
	assert.ErrorContains(t, err, "failed to decode")
}

func TestSendPush_NoTokens(t *testing.T) {
	var s FCMService
	assert.NoError(t, s.SendPush(context.Background(), nil, "title", "body", nil))
}
