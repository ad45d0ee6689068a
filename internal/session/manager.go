// internal/session/manager.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pixelduel/gamecore/internal/matchmaking"
	"github.com/pixelduel/gamecore/internal/models"
	"github.com/pixelduel/gamecore/internal/realtime"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoActiveSession is returned by operations that need a session when none exists.
	ErrNoActiveSession = errors.New("no active session")

	// ErrSessionChanged means the session was reset or replaced while a call was in flight,
	// so its result was discarded.
	ErrSessionChanged = errors.New("session was reset or replaced before the call completed")

	// ErrNotQueued is returned when waiting for a match without being in the queue.
	ErrNotQueued = errors.New("not in the matchmaking queue")
)

// finishTimeout bounds the best-effort result report.
const finishTimeout = 5 * time.Second

// Authority is the part of the external authority the lifecycle manager drives.
type Authority interface {
	matchmaking.Queuer
	CreateSession(ctx context.Context, mode models.Mode) (*models.SessionPayload, error)
	JoinSession(ctx context.Context, code string) (*models.SessionPayload, error)
	GetSession(ctx context.Context, code string) (*models.SessionPayload, error)
	FinishSession(ctx context.Context, sessionID string, stats models.GameStats) (*models.FinishSummary, error)
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
}

// Channel is a per-session realtime connection.
type Channel interface {
	Connect(ctx context.Context, sessionID, playerID string)
	Disconnect()
	Connected() bool
	Register(l realtime.Listener) realtime.Handle
	Unregister(h realtime.Handle)
	Send(msg realtime.Message)
}

// ChannelFactory builds a fresh, closed channel for each pvp session.
type ChannelFactory func() Channel

// Ticket tags work with the session it was issued against. Results carried back under a
// stale ticket are discarded.
type Ticket struct {
	epoch     uint64
	SessionID string
	UserID    string
}

// Hook receives inbound realtime messages for the session named by the ticket.
type Hook func(t Ticket, msg realtime.Message)

// Manager owns the single active session of this client: its local mirror, its realtime
// channel and its queue membership. All methods are safe for concurrent use; callers are
// still expected to keep at most one answer or placement in flight per session.
type Manager struct {
	authority  Authority
	queue      *matchmaking.Client
	newChannel ChannelFactory
	log        logrus.FieldLogger

	mu      sync.Mutex
	epoch   uint64
	active  *models.Session
	channel Channel
	hooks   []Hook
}

// NewManager creates an idle manager.
func NewManager(a Authority, newChannel ChannelFactory, log logrus.FieldLogger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		authority:  a,
		queue:      matchmaking.NewClient(a, log),
		newChannel: newChannel,
		log:        log,
	}
}

// Hook registers a handler for inbound messages of every pvp session, current and future.
func (m *Manager) Hook(h Hook) {
	m.mu.Lock()
	m.hooks = append(m.hooks, h)
	m.mu.Unlock()
}

// CreateGame starts a new session in the given mode, discarding the current one.
func (m *Manager) CreateGame(ctx context.Context, mode models.Mode) (*models.Session, error) {
	epoch := m.discard()
	p, err := m.authority.CreateSession(ctx, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s game: %w", mode, err)
	}
	return m.enter(ctx, epoch, p)
}

// JoinGame consumes a waiting pvp session by join code.
func (m *Manager) JoinGame(ctx context.Context, code string) (*models.Session, error) {
	epoch := m.discard()
	p, err := m.authority.JoinSession(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to join game %s: %w", code, err)
	}
	return m.enter(ctx, epoch, p)
}

// JoinQueue enters matchmaking. A nil session with a nil error means the player is waiting.
func (m *Manager) JoinQueue(ctx context.Context) (*models.Session, error) {
	epoch := m.discard()
	res, err := m.queue.Join(ctx)
	if err != nil {
		return nil, err
	}
	if !m.isEpoch(epoch) {
		m.queue.Abandon()
		if res.Matched {
			m.abandonMatch(res.Game)
		}
		return nil, ErrSessionChanged
	}
	if !res.Matched {
		m.log.Info("Waiting for an opponent in queue")
		return nil, nil
	}
	return m.enterMatch(ctx, epoch, res.Game)
}

// PollQueue checks once for a pairing while waiting in the queue.
func (m *Manager) PollQueue(ctx context.Context) (*models.Session, error) {
	if !m.queue.InQueue() {
		return nil, ErrNotQueued
	}
	epoch := m.currentEpoch()
	res, err := m.queue.Poll(ctx)
	if err != nil {
		return nil, err
	}
	if !res.Matched || res.Game == nil {
		return nil, nil
	}
	return m.enterMatch(ctx, epoch, res.Game)
}

// WaitForMatch polls until paired, the player leaves the queue, or ctx ends.
func (m *Manager) WaitForMatch(ctx context.Context, interval time.Duration) (*models.Session, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s, err := m.PollQueue(ctx)
		if err != nil || s != nil {
			return s, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// LeaveQueue withdraws from matchmaking. Local state returns to idle even if the authority
// cannot be reached, and a match still in flight is discarded.
func (m *Manager) LeaveQueue(ctx context.Context) {
	if m.queue.InQueue() {
		m.mu.Lock()
		m.epoch++
		m.mu.Unlock()
	}
	m.queue.Leave(ctx)
}

// enterMatch installs a queue pairing, withdrawing from it at the authority when the player
// left or reset while it was in flight.
func (m *Manager) enterMatch(ctx context.Context, epoch uint64, p *models.SessionPayload) (*models.Session, error) {
	s, err := m.enter(ctx, epoch, p)
	if errors.Is(err, ErrSessionChanged) {
		m.abandonMatch(p)
	}
	return s, err
}

// abandonMatch tells the authority this player will not play a pairing it already made, so
// the opponent's game is cancelled rather than left waiting on nobody.
func (m *Manager) abandonMatch(p *models.SessionPayload) {
	log := m.log.WithField("session_id", p.ID)
	log.Info("Withdrawing from a match made after leaving the queue")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
		defer cancel()
		if _, err := m.authority.FinishSession(ctx, p.ID, models.GameStats{}); err != nil {
			log.Warnf("Failed to withdraw from match: %v", err)
		}
	}()
}

// Refresh reconciles the active pvp session with the authority: it re-derives the role and
// pixel lists from the authority's payload and reopens the channel when the session is in
// play. A waiting creator uses it to learn that the opponent joined.
func (m *Manager) Refresh(ctx context.Context) (*models.Session, error) {
	t, s, err := m.Current()
	if err != nil {
		return nil, err
	}
	if s.Mode != models.ModePvp {
		return s, nil
	}
	p, err := m.authority.GetSession(ctx, s.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh game %s: %w", s.Code, err)
	}
	return m.enter(ctx, t.epoch, p)
}

// WaitForOpponent polls a waiting pvp session until the second player joins.
func (m *Manager) WaitForOpponent(ctx context.Context, interval time.Duration) (*models.Session, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s, err := m.Refresh(ctx)
		if err != nil {
			return nil, err
		}
		if s.Status != models.StatusWaiting {
			return s, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// FinishGame reports the final stats. It is best effort: failures are logged and never
// affect the local game.
func (m *Manager) FinishGame(ctx context.Context, stats models.GameStats) *models.FinishSummary {
	t, _, err := m.Current()
	if err != nil {
		m.log.Debug("No session to finish")
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, finishTimeout)
	defer cancel()
	sum, err := m.authority.FinishSession(ctx, t.SessionID, stats)
	if err != nil {
		m.log.WithField("session_id", t.SessionID).Warnf("Failed to report game result: %v", err)
		return nil
	}
	return sum
}

// Leaderboard fetches the global ranking.
func (m *Manager) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	entries, err := m.authority.Leaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	return entries, nil
}

// ResetGame returns to idle from any state: the session mirror is dropped, the channel is
// closed and the queue flag is cleared. Calls still in flight have their results discarded.
func (m *Manager) ResetGame() {
	m.discard()
	m.log.Debug("Game reset")
}

// discard drops the active session and returns the new epoch.
func (m *Manager) discard() uint64 {
	m.mu.Lock()
	m.epoch++
	epoch := m.epoch
	m.active = nil
	ch := m.channel
	m.channel = nil
	m.mu.Unlock()

	m.queue.Abandon()
	if ch != nil {
		ch.Disconnect()
	}
	return epoch
}

// enter installs an authority payload as the active session if epoch is still current, and
// opens the realtime channel for pvp sessions in play.
func (m *Manager) enter(ctx context.Context, epoch uint64, p *models.SessionPayload) (*models.Session, error) {
	s := models.DecodeSession(p)
	log := m.log.WithFields(logrus.Fields{"session_id": s.ID, "mode": s.Mode, "status": s.Status})

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		log.Debug("Discarding stale session payload")
		return nil, ErrSessionChanged
	}
	m.active = s
	out := s.Clone()

	var open, stale Channel
	wantChannel := s.Mode == models.ModePvp && s.Status == models.StatusPlaying
	switch {
	case wantChannel && m.channel != nil && m.channel.Connected():
		// already mirroring this session
	case wantChannel && m.newChannel != nil:
		stale = m.channel
		open = m.newChannel()
		open.Register(m.dispatchFor(epoch))
		m.channel = open
	case !wantChannel:
		stale = m.channel
		m.channel = nil
	}
	m.mu.Unlock()

	if stale != nil {
		stale.Disconnect()
	}

	if s.Pvp != nil {
		log = log.WithField("role", s.Pvp.Role)
	}
	log.Info("Entered session")

	if open != nil {
		open.Connect(ctx, s.ID, s.CurrentUserID)
		if !m.isEpoch(epoch) {
			open.Disconnect()
		}
	}
	return out, nil
}

func (m *Manager) dispatchFor(epoch uint64) realtime.Listener {
	return func(msg realtime.Message) {
		m.mu.Lock()
		if m.epoch != epoch || m.active == nil {
			m.mu.Unlock()
			return
		}
		t := Ticket{epoch: epoch, SessionID: m.active.ID, UserID: m.active.CurrentUserID}
		hooks := make([]Hook, len(m.hooks))
		copy(hooks, m.hooks)
		m.mu.Unlock()

		for _, h := range hooks {
			m.runHook(h, t, msg)
		}
	}
}

func (m *Manager) runHook(h Hook, t Ticket, msg realtime.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			m.log.WithField("type", msg.Type).Errorf("session hook panicked: %v", rec)
		}
	}()
	h(t, msg)
}

func (m *Manager) isEpoch(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch == epoch
}

func (m *Manager) currentEpoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}
