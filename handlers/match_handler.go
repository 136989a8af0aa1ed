package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"hexmatch/middleware"
	"hexmatch/services"
	"hexmatch/utils/errors"
)

type MatchHandler struct {
	matchService *services.MatchService
	limiter      *services.ActionLimiter
}

func NewMatchHandler(matchService *services.MatchService, limiter *services.ActionLimiter) *MatchHandler {
	return &MatchHandler{matchService: matchService, limiter: limiter}
}

// PostMatch records a like towards the target user, capped per caller by the
// daily action limiter. Only likes that actually land consume the cap.
func (h *MatchHandler) PostMatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, errors.ErrUnauthorized)
		return
	}

	targetID := mux.Vars(r)["id"]
	if _, err := uuid.Parse(targetID); err != nil {
		middleware.WriteError(w, errors.NewAPIError("INVALID_ID", "Type ID is not correct.", http.StatusUnprocessableEntity))
		return
	}

	result, err := h.limiter.Do(r.Context(), userID, func(ctx context.Context) (bool, error) {
		return h.matchService.Like(ctx, userID, targetID)
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{"result": result})
}
