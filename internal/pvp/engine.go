// internal/pvp/engine.go
package pvp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pixelduel/gamecore/internal/models"
	"github.com/pixelduel/gamecore/internal/realtime"
	"github.com/pixelduel/gamecore/internal/session"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotPvp          = errors.New("active session is not a pvp game")
	ErrNotStarted      = errors.New("pvp game has not started yet")
	ErrSessionFinished = errors.New("pvp game is already finished")
	ErrQuotaReached    = errors.New("all pixels have been placed")
)

// Authority records pixel placements.
type Authority interface {
	PlacePixel(ctx context.Context, sessionID string, p models.Placement) (*models.PlacementResult, error)
}

// Engine runs the pixel race. It mirrors the opponent from the session channel and announces
// its own placements after the authority has accepted them.
type Engine struct {
	sessions  *session.Manager
	authority Authority
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewEngine creates a pvp engine and hooks it into every pvp session the manager enters.
func NewEngine(m *session.Manager, a Authority, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	e := &Engine{sessions: m, authority: a, log: log, now: time.Now}
	m.Hook(e.handleMessage)
	return e
}

// PlacePixel places one pixel. The authority is asked first; only an accepted placement is
// recorded locally and broadcast to the opponent. When it completes the quota the game ends
// and the win is announced.
func (e *Engine) PlacePixel(ctx context.Context, x, y int, color string) (*models.PlacementResult, error) {
	t, s, err := e.sessions.Current()
	if err != nil {
		return nil, err
	}
	switch {
	case s.Mode != models.ModePvp || s.Pvp == nil:
		return nil, ErrNotPvp
	case s.Status == models.StatusFinished:
		return nil, ErrSessionFinished
	case s.Status != models.StatusPlaying:
		return nil, ErrNotStarted
	case s.Pvp.PixelsPlaced >= s.Pvp.PixelsToPlace:
		return nil, ErrQuotaReached
	}

	res, err := e.authority.PlacePixel(ctx, t.SessionID, models.Placement{X: x, Y: y, Color: color})
	if err != nil {
		return nil, fmt.Errorf("failed to place pixel: %w", err)
	}

	px := models.Pixel{X: x, Y: y, Color: color, Timestamp: e.now().UnixMilli()}
	var placed int
	err = e.sessions.Apply(t, func(s *models.Session) {
		st := s.Pvp
		st.MyPixels = append(st.MyPixels, px)
		st.PixelsPlaced = min(res.PixelsPlaced, st.PixelsToPlace)
		placed = st.PixelsPlaced
		if res.GameFinished {
			s.Status = models.StatusFinished
			st.WinnerID = res.WinnerID
		}
	})
	if err != nil {
		return nil, err
	}

	e.sessions.Send(t, realtime.NewPixelPlaced(realtime.PixelPlaced{
		X:               x,
		Y:               y,
		Color:           color,
		Timestamp:       px.Timestamp,
		PixelsPlaced:    placed,
		PixelsRemaining: res.PixelsRemaining,
	}))

	log := e.log.WithFields(logrus.Fields{"session_id": t.SessionID, "pixels_placed": placed})
	if res.GameFinished {
		e.sessions.Send(t, realtime.NewGameFinished(res.WinnerID))
		e.sessions.CloseChannel(t)
		log.WithField("winner_id", res.WinnerID).Info("Game finished")
	} else {
		log.Debug("Pixel placed")
	}
	return res, nil
}

// handleMessage folds the opponent's realtime events into the local session.
func (e *Engine) handleMessage(t session.Ticket, msg realtime.Message) {
	switch msg.Type {
	case realtime.TypePixelPlaced:
		if msg.PixelPlaced == nil || msg.UserID == t.UserID {
			return
		}
		px := models.Pixel{X: msg.X, Y: msg.Y, Color: msg.Color, Timestamp: msg.Timestamp}
		_ = e.sessions.Apply(t, func(s *models.Session) {
			if s.Pvp == nil || s.Status == models.StatusFinished {
				return
			}
			s.Pvp.OpponentPixels = append(s.Pvp.OpponentPixels, px)
		})

	case realtime.TypeGameFinished:
		winner := msg.UserID
		if msg.GameFinished != nil && msg.WinnerID != "" {
			winner = msg.WinnerID
		}
		err := e.sessions.Apply(t, func(s *models.Session) {
			if s.Pvp == nil {
				return
			}
			s.Status = models.StatusFinished
			s.Pvp.WinnerID = winner
		})
		if err != nil {
			return
		}
		e.sessions.CloseChannel(t)
		e.log.WithFields(logrus.Fields{"session_id": t.SessionID, "winner_id": winner}).Info("Opponent finished the game")

	case realtime.TypePlayerConnected, realtime.TypePlayerDisconnected:
		e.log.WithFields(logrus.Fields{"session_id": t.SessionID, "user_id": msg.UserID}).Debugf("Presence: %s", msg.Type)

	case realtime.TypeError:
		e.log.WithField("session_id", t.SessionID).Warnf("Realtime error from authority: %s", msg.Text)
	}
}
