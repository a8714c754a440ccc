package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"strikeOutAPI/internal/store"
	"strikeOutAPI/internal/types/notification"
	"strikeOutAPI/middleware"
)

type NotificationHandler struct {
	devices store.DeviceRegistry
}

func NewNotificationHandler(devices store.DeviceRegistry) *NotificationHandler {
	return &NotificationHandler{
		devices: devices,
	}
}

// POST /api/v1/notifications/register-device
func (h *NotificationHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req notification.RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		respondWithError(w, http.StatusBadRequest, "Device token is required")
		return
	}

	token := notification.DeviceToken{
		Token:    req.Token,
		Platform: strings.ToLower(req.Platform),
	}
	if err := h.devices.RegisterDevice(ctx, userID, token); err != nil {
		log.Printf("RegisterDevice Handler: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to register device")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Device registered successfully"})
}
