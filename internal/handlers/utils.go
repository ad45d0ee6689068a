package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/pixelduel/gamecore/internal/game"
	"github.com/pixelduel/gamecore/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorBody{Detail: msg})
}

// statusFor maps a rules error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, game.ErrFinished), errors.Is(err, game.ErrQuotaReached):
		return http.StatusConflict
	case errors.Is(err, game.ErrInvalidMove):
		return http.StatusUnprocessableEntity
	case errors.Is(err, game.ErrCooldown):
		return http.StatusTooManyRequests
	case errors.Is(err, game.ErrWrongMode), errors.Is(err, game.ErrNotInProgress), errors.Is(err, game.ErrOwnGame):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeGameError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

// gameFromPath resolves the {id} route parameter to a live game.
func (gs *GameServer) gameFromPath(w http.ResponseWriter, id string) (*game.Game, bool) {
	gameID, err := uuid.Parse(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "game not found")
		return nil, false
	}
	g, ok := gs.GameStore.GetGame(gameID)
	if !ok {
		writeError(w, http.StatusNotFound, "game not found")
		return nil, false
	}
	return g, true
}
