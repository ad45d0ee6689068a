// internal/handlers/game.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pixelduel/gamecore/internal/database"
	"github.com/pixelduel/gamecore/internal/game"
	"github.com/pixelduel/gamecore/internal/models"
	"github.com/sirupsen/logrus"
)

const maxLeaderboardLimit = 100

type createGameRequest struct {
	Mode string `json:"mode"`
}

type joinGameRequest struct {
	Code string `json:"code"`
}

// CreateGameHandler starts a solo game at level 1 or a waiting pvp game.
func (gs *GameServer) CreateGameHandler(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode, err := models.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	userID := userFrom(r)
	var g *game.Game
	if mode == models.ModeSolo {
		g = game.NewSoloGame(userID)
	} else {
		g = game.NewPvpGame(userID, gs.GridSize, gs.PixelsToPlace)
	}
	if err := gs.GameStore.AddGame(g); err != nil {
		gs.log.Errorf("failed to store game: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create game")
		return
	}

	gs.log.WithFields(logrus.Fields{
		"session_id": g.ID,
		"mode":       mode,
		"user_id":    userID,
	}).Info("game created")
	writeJSON(w, http.StatusOK, g.Payload(userID))
}

// JoinGameHandler takes the second seat of a waiting pvp game.
func (gs *GameServer) JoinGameHandler(w http.ResponseWriter, r *http.Request) {
	var req joinGameRequest
	if err := readJSON(r, &req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "join code is required")
		return
	}

	userID := userFrom(r)
	g, ok := gs.GameStore.GetGameByCode(req.Code)
	if !ok {
		writeError(w, http.StatusNotFound, "game not found or already started")
		return
	}
	if err := g.Join(userID); err != nil {
		writeError(w, http.StatusNotFound, "game not found or already started")
		return
	}

	gs.log.WithFields(logrus.Fields{"session_id": g.ID, "user_id": userID}).Info("player joined game")
	writeJSON(w, http.StatusOK, g.Payload(userID))
}

// GetGameHandler returns a participant's view of a game by join code.
func (gs *GameServer) GetGameHandler(w http.ResponseWriter, r *http.Request) {
	g, ok := gs.GameStore.GetGameByCode(chi.URLParam(r, "code"))
	if !ok {
		writeError(w, http.StatusNotFound, "game not found")
		return
	}
	userID := userFrom(r)
	if !g.IsParticipant(userID) {
		writeError(w, http.StatusForbidden, "you are not a player in this game")
		return
	}
	writeJSON(w, http.StatusOK, g.Payload(userID))
}

// AnswerHandler grades a solo attempt.
func (gs *GameServer) AnswerHandler(w http.ResponseWriter, r *http.Request) {
	g, ok := gs.gameFromPath(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req models.AnswerRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := userFrom(r)
	v, err := g.Answer(userID, req.Sequence)
	if err != nil {
		writeGameError(w, err)
		return
	}
	gs.log.WithFields(logrus.Fields{
		"session_id": g.ID,
		"user_id":    userID,
		"correct":    v.Correct,
	}).Debug("answer graded")
	writeJSON(w, http.StatusOK, v)
}

// PlacePixelHandler records one pvp placement and publishes it on the feed.
func (gs *GameServer) PlacePixelHandler(w http.ResponseWriter, r *http.Request) {
	g, ok := gs.gameFromPath(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req models.Placement
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := userFrom(r)
	res, px, err := g.Place(userID, req, gs.now(), gs.Cooldown)
	if err != nil {
		writeGameError(w, err)
		return
	}

	gs.publishPixel(r.Context(), g, userID, px, res)
	if res.GameFinished {
		gs.log.WithFields(logrus.Fields{"session_id": g.ID, "winner_id": res.WinnerID}).Info("pvp game finished")
	}
	writeJSON(w, http.StatusOK, res)
}

// FinishGameHandler stores a player's final stats.
func (gs *GameServer) FinishGameHandler(w http.ResponseWriter, r *http.Request) {
	g, ok := gs.gameFromPath(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var stats models.GameStats
	if err := readJSON(r, &stats); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := userFrom(r)
	if err := g.Finish(userID); err != nil {
		writeGameError(w, err)
		return
	}

	// pvp games have no level to rank
	if g.Mode == models.ModeSolo {
		res := &database.Result{GameID: g.ID, UserID: userID, Stats: stats}
		if err := gs.Store.SaveResult(r.Context(), res); err != nil {
			gs.log.Errorf("failed to save result for game %s: %v", g.ID, err)
			writeError(w, http.StatusInternalServerError, "failed to save result")
			return
		}
	}

	gs.log.WithFields(logrus.Fields{
		"session_id":    g.ID,
		"user_id":       userID,
		"level_reached": stats.LevelReached,
	}).Info("game result recorded")
	writeJSON(w, http.StatusOK, models.FinishSummary{ID: g.ID.String(), GameStats: stats})
}

// LeaderboardHandler lists the best players, limit defaulting to 10.
func (gs *GameServer) LeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	limit := database.DefaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusUnprocessableEntity, "limit must be a non-negative integer")
			return
		}
		limit = min(n, maxLeaderboardLimit)
	}

	entries, err := gs.Store.Leaderboard(r.Context(), limit)
	if err != nil {
		gs.log.Errorf("failed to load leaderboard: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
