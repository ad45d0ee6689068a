// internal/solo/engine.go
package solo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pixelduel/gamecore/internal/models"
	"github.com/pixelduel/gamecore/internal/session"
	"github.com/sirupsen/logrus"
)

// ErrNotSolo is returned when a solo operation targets a pvp session.
var ErrNotSolo = errors.New("active session is not a solo game")

// DefaultShowDelay is the pause between two highlighted cells.
const DefaultShowDelay = time.Second

// Authority grades solo attempts.
type Authority interface {
	SubmitAnswer(ctx context.Context, sessionID string, seq []models.Coordinate) (*models.AnswerVerdict, error)
}

// Step is one highlighted cell of a presentation.
type Step struct {
	Index int
	Cell  models.Coordinate
}

// Verdict is the graded outcome of one attempt. NextLevel is set when Correct, LevelReached
// when not.
type Verdict struct {
	Correct      bool
	NextLevel    int
	LevelReached int
}

// Engine runs the memory-sequence game on top of the session manager.
type Engine struct {
	sessions  *session.Manager
	authority Authority
	log       logrus.FieldLogger
}

// NewEngine creates a solo engine.
func NewEngine(m *session.Manager, a Authority, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{sessions: m, authority: a, log: log}
}

func (e *Engine) current() (session.Ticket, *models.Session, error) {
	t, s, err := e.sessions.Current()
	if err != nil {
		return t, nil, err
	}
	if s.Mode != models.ModeSolo || s.Solo == nil {
		return t, nil, ErrNotSolo
	}
	return t, s, nil
}

// ShowSequence presents seq one cell per delay. Steps arrive on the returned channel, which is
// closed once the presentation ends; at that moment the session has already moved from
// showing to awaiting input. A reset or cancelled ctx ends the presentation early without
// opening input.
func (e *Engine) ShowSequence(ctx context.Context, seq []models.Coordinate, delay time.Duration) (<-chan Step, error) {
	t, _, err := e.current()
	if err != nil {
		return nil, err
	}
	if delay <= 0 {
		delay = DefaultShowDelay
	}
	cells := append([]models.Coordinate{}, seq...)

	err = e.sessions.Apply(t, func(s *models.Session) {
		s.Solo.Showing = true
		s.Solo.AwaitingInput = false
		s.Solo.UserSequence = []models.Coordinate{}
	})
	if err != nil {
		return nil, err
	}

	out := make(chan Step, len(cells))
	go func() {
		defer close(out)
		ticker := time.NewTicker(delay)
		defer ticker.Stop()

		for i := 0; ; i++ {
			select {
			case <-ctx.Done():
				_ = e.sessions.Apply(t, func(s *models.Session) { s.Solo.Showing = false })
				return
			case <-ticker.C:
			}
			if !e.sessions.Valid(t) {
				return
			}
			if i < len(cells) {
				out <- Step{Index: i, Cell: cells[i]}
				continue
			}
			err := e.sessions.Apply(t, func(s *models.Session) {
				s.Solo.Showing = false
				s.Solo.AwaitingInput = true
			})
			if err != nil {
				e.log.Debug("Presentation ended for a discarded session")
			}
			return
		}
	}()
	return out, nil
}

// AddToUserSequence records one picked cell. Picks outside the input phase are ignored.
func (e *Engine) AddToUserSequence(x, y int) {
	t, _, err := e.current()
	if err != nil {
		return
	}
	_ = e.sessions.Apply(t, func(s *models.Session) {
		if !s.Solo.AwaitingInput {
			return
		}
		s.Solo.UserSequence = append(s.Solo.UserSequence, models.Coordinate{X: x, Y: y})
	})
}

// SubmitUserSequence grades the cells picked so far.
func (e *Engine) SubmitUserSequence(ctx context.Context) (*Verdict, error) {
	_, s, err := e.current()
	if err != nil {
		return nil, err
	}
	return e.SubmitAnswer(ctx, s.Solo.UserSequence)
}

// SubmitAnswer sends a full attempt to the authority. A correct answer advances to the level
// and sequence the authority returned; a wrong one finishes the game. If the authority cannot
// be reached the local state is left unchanged.
func (e *Engine) SubmitAnswer(ctx context.Context, seq []models.Coordinate) (*Verdict, error) {
	t, s, err := e.current()
	if err != nil {
		return nil, err
	}
	if s.Status == models.StatusFinished {
		return nil, fmt.Errorf("failed to submit answer: game %s is finished", s.ID)
	}

	v, err := e.authority.SubmitAnswer(ctx, t.SessionID, seq)
	if err != nil {
		return nil, fmt.Errorf("failed to submit answer: %w", err)
	}

	out := &Verdict{Correct: v.Correct}
	err = e.sessions.Apply(t, func(s *models.Session) {
		st := s.Solo
		st.UserSequence = []models.Coordinate{}
		st.AwaitingInput = false
		if v.Correct {
			st.CorrectAnswers++
			st.CurrentLevel = v.NextLevel
			if v.GridSize > 0 {
				st.GridSize = v.GridSize
			}
			st.Sequence = append([]models.Coordinate{}, v.Sequence...)
			out.NextLevel = v.NextLevel
			return
		}
		st.Errors++
		st.LevelReached = v.LevelReached
		s.Status = models.StatusFinished
		out.LevelReached = v.LevelReached
	})
	if err != nil {
		return nil, err
	}

	log := e.log.WithFields(logrus.Fields{"session_id": t.SessionID, "correct": v.Correct})
	if v.Correct {
		log.Infof("Advanced to level %d", v.NextLevel)
	} else {
		log.Infof("Game over at level %d", v.LevelReached)
	}
	return out, nil
}

// Stats summarizes the active solo game for result reporting.
func (e *Engine) Stats() (models.GameStats, error) {
	_, s, err := e.current()
	if err != nil {
		return models.GameStats{}, err
	}
	st := s.Solo
	level := st.CurrentLevel - 1
	if s.Status == models.StatusFinished {
		level = st.LevelReached
	}
	return models.GameStats{
		LevelReached:    max(level, 0),
		CorrectAnswers:  st.CorrectAnswers,
		Errors:          st.Errors,
		PlayTimeSeconds: int(time.Since(st.StartedAt).Seconds()),
	}, nil
}

// Finish reports the active game's stats. Reporting failures never reach the caller.
func (e *Engine) Finish(ctx context.Context) *models.FinishSummary {
	stats, err := e.Stats()
	if err != nil {
		e.log.Debugf("Nothing to report: %v", err)
		return nil
	}
	return e.sessions.FinishGame(ctx, stats)
}
