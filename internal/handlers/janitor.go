package handlers

import (
	"context"
	"time"
)

// Sweep evicts games that ended more than EndedGameTTL ago or have been idle for
// IdleGameTTL. Games with players still on the relay are kept. Returns how many were removed.
func (gs *GameServer) Sweep(now time.Time) int {
	n := 0
	for _, g := range gs.GameStore.Expired(now, gs.EndedGameTTL, gs.IdleGameTTL) {
		if gs.Relay.Connected(g.ID) > 0 {
			continue
		}
		g.Cancel()
		gs.GameStore.DeleteGame(g.ID)
		gs.Matchmaker.Forget(g.ID)
		n++
	}
	return n
}

// RunJanitor sweeps every interval until ctx ends.
func (gs *GameServer) RunJanitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := gs.Sweep(gs.now()); n > 0 {
				gs.log.WithField("evicted", n).Debug("Swept expired games")
			}
		}
	}
}
