package handlers

import (
	"net/http"

	"github.com/pixelduel/gamecore/internal/models"
	"github.com/sirupsen/logrus"
)

// JoinQueueHandler pairs the caller with a waiting player or enqueues them.
func (gs *GameServer) JoinQueueHandler(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	g, err := gs.Matchmaker.Join(r.Context(), userID)
	if err != nil {
		gs.log.Errorf("matchmaking join failed for %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "matchmaking unavailable")
		return
	}
	if g == nil {
		gs.log.WithField("user_id", userID).Debug("player queued")
		writeJSON(w, http.StatusOK, models.QueueResult{Matched: false})
		return
	}

	gs.log.WithFields(logrus.Fields{"session_id": g.ID, "user_id": userID}).Info("players matched")
	writeJSON(w, http.StatusOK, models.QueueResult{Matched: true, Game: g.Payload(userID)})
}

// QueueStatusHandler reports whether a match was found for a waiting player.
func (gs *GameServer) QueueStatusHandler(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	g, err := gs.Matchmaker.Poll(r.Context(), userID)
	if err != nil {
		gs.log.Errorf("matchmaking poll failed for %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "matchmaking unavailable")
		return
	}
	if g == nil {
		writeJSON(w, http.StatusOK, models.QueueResult{Matched: false})
		return
	}
	writeJSON(w, http.StatusOK, models.QueueResult{Matched: true, Game: g.Payload(userID)})
}

// LeaveQueueHandler withdraws the caller from matchmaking.
func (gs *GameServer) LeaveQueueHandler(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	if err := gs.Matchmaker.Leave(r.Context(), userID); err != nil {
		gs.log.Errorf("matchmaking leave failed for %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "matchmaking unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
