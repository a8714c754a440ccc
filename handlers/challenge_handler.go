package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"strikeOutAPI/internal/period"
	"strikeOutAPI/internal/store"
	"strikeOutAPI/internal/types/challenge"
	"strikeOutAPI/internal/types/checkin"
	"strikeOutAPI/middleware"
	"strikeOutAPI/services"
)

type ChallengeHandler struct {
	challengeService *services.ChallengeService
}

func NewChallengeHandler(challengeService *services.ChallengeService) *ChallengeHandler {
	return &ChallengeHandler{
		challengeService: challengeService,
	}
}

// POST /api/v1/challenges
func (h *ChallengeHandler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req challenge.CreateChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ch, err := h.challengeService.CreateChallenge(ctx, userID, &req)
	if err != nil {
		respondWithServiceError(w, "CreateChallenge", err)
		return
	}

	respondWithJSON(w, http.StatusCreated, ch)
}

// POST /api/v1/challenges/{id}/join
func (h *ChallengeHandler) JoinChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	challengeID, ok := challengeIDFromPath(w, r)
	if !ok {
		return
	}

	member, err := h.challengeService.JoinChallenge(ctx, challengeID, userID)
	if err != nil {
		respondWithServiceError(w, "JoinChallenge", err)
		return
	}

	respondWithJSON(w, http.StatusOK, member)
}

// GET /api/v1/challenges/{id}/status
func (h *ChallengeHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	challengeID, ok := challengeIDFromPath(w, r)
	if !ok {
		return
	}

	status, err := h.challengeService.GetMemberStatus(ctx, challengeID, userID)
	if err != nil {
		respondWithServiceError(w, "GetStatus", err)
		return
	}

	respondWithJSON(w, http.StatusOK, status)
}

// POST /api/v1/challenges/{id}/check-ins
func (h *ChallengeHandler) SubmitCheckIn(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	challengeID, ok := challengeIDFromPath(w, r)
	if !ok {
		return
	}

	var req checkin.CreateCheckInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	switch req.Status {
	case "", checkin.StatusCompleted, checkin.StatusPending, checkin.StatusRejected:
	default:
		respondWithError(w, http.StatusBadRequest, "Invalid check-in status")
		return
	}

	ci, err := h.challengeService.SubmitCheckIn(ctx, challengeID, userID, &req)
	if err != nil {
		respondWithServiceError(w, "SubmitCheckIn", err)
		return
	}

	respondWithJSON(w, http.StatusCreated, ci)
}

// POST /api/v1/challenges/{id}/sweep
func (h *ChallengeHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	challengeID, ok := challengeIDFromPath(w, r)
	if !ok {
		return
	}

	report, err := h.challengeService.SweepForMember(ctx, challengeID, userID)
	if err != nil {
		respondWithServiceError(w, "Sweep", err)
		return
	}
	if report.NotFound {
		respondWithError(w, http.StatusNotFound, "Challenge not found")
		return
	}

	respondWithJSON(w, http.StatusOK, report)
}

// GET /api/v1/challenges/{id}/outcomes
func (h *ChallengeHandler) GetOutcomes(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	challengeID, ok := challengeIDFromPath(w, r)
	if !ok {
		return
	}

	outcomes, err := h.challengeService.ListOutcomes(ctx, challengeID, userID)
	if err != nil {
		respondWithServiceError(w, "GetOutcomes", err)
		return
	}

	respondWithJSON(w, http.StatusOK, outcomes)
}

func challengeIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid challenge id")
		return uuid.Nil, false
	}
	return id, true
}

func respondWithServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrChallengeNotFound):
		respondWithError(w, http.StatusNotFound, "Challenge not found")
	case errors.Is(err, store.ErrMemberNotFound):
		respondWithError(w, http.StatusNotFound, "Not a member of this challenge")
	case errors.Is(err, services.ErrInvalidChallenge):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, period.ErrDeadlinePassed):
		respondWithError(w, http.StatusConflict, "Deadline has passed")
	case errors.Is(err, services.ErrChallengeEnded):
		respondWithError(w, http.StatusConflict, "Challenge has ended")
	case errors.Is(err, services.ErrMemberEliminated):
		respondWithError(w, http.StatusConflict, "You have been eliminated from this challenge")
	case errors.Is(err, context.DeadlineExceeded):
		respondWithError(w, http.StatusGatewayTimeout, "Request timed out")
	default:
		log.Printf("%s Handler: %v", op, err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
