package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pixelduel/gamecore/internal/authority"
	"github.com/pixelduel/gamecore/internal/models"
	"github.com/pixelduel/gamecore/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthority struct {
	mu        sync.Mutex
	create    *models.SessionPayload
	createErr error
	entered   chan struct{}
	gate      chan struct{}
	join      *models.SessionPayload
	get       *models.SessionPayload
	queueJoin *models.QueueResult
	queuePoll *models.QueueResult
	pollEnter chan struct{}
	pollGate  chan struct{}
	finishErr error
	finished  []models.GameStats
	finishIDs []string
	leaves    atomic.Int32
}

func (f *fakeAuthority) CreateSession(ctx context.Context, mode models.Mode) (*models.SessionPayload, error) {
	if f.gate != nil {
		close(f.entered)
		<-f.gate
	}
	return f.create, f.createErr
}

func (f *fakeAuthority) JoinSession(context.Context, string) (*models.SessionPayload, error) {
	return f.join, nil
}

func (f *fakeAuthority) GetSession(context.Context, string) (*models.SessionPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.get, nil
}

func (f *fakeAuthority) JoinQueue(context.Context) (*models.QueueResult, error) {
	return f.queueJoin, nil
}

func (f *fakeAuthority) QueueStatus(context.Context) (*models.QueueResult, error) {
	if f.pollGate != nil {
		close(f.pollEnter)
		<-f.pollGate
	}
	return f.queuePoll, nil
}

func (f *fakeAuthority) LeaveQueue(context.Context) error {
	f.leaves.Add(1)
	return nil
}

func (f *fakeAuthority) FinishSession(_ context.Context, id string, stats models.GameStats) (*models.FinishSummary, error) {
	if f.finishErr != nil {
		return nil, f.finishErr
	}
	f.mu.Lock()
	f.finished = append(f.finished, stats)
	f.finishIDs = append(f.finishIDs, id)
	f.mu.Unlock()
	return &models.FinishSummary{ID: id, GameStats: stats}, nil
}

func (f *fakeAuthority) Leaderboard(context.Context, int) ([]models.LeaderboardEntry, error) {
	return []models.LeaderboardEntry{{UserID: "u1", Name: "Ann", MaxLevel: 7}}, nil
}

type fakeChannel struct {
	registry  *realtime.Registry
	mu        sync.Mutex
	connected bool
	sessionID string
	playerID  string
	sent      []realtime.Message
}

func (c *fakeChannel) Connect(_ context.Context, sessionID, playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected, c.sessionID, c.playerID = true, sessionID, playerID
}

func (c *fakeChannel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *fakeChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeChannel) Register(l realtime.Listener) realtime.Handle { return c.registry.Register(l) }
func (c *fakeChannel) Unregister(h realtime.Handle)                 { c.registry.Unregister(h) }

func (c *fakeChannel) Send(msg realtime.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		c.sent = append(c.sent, msg)
	}
}

func (c *fakeChannel) Emit(msg realtime.Message) { c.registry.Dispatch(msg) }

type channels struct {
	mu  sync.Mutex
	all []*fakeChannel
}

func (cs *channels) factory() Channel {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	c := &fakeChannel{registry: realtime.NewRegistry(nil)}
	cs.all = append(cs.all, c)
	return c
}

func (cs *channels) last() *fakeChannel {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if len(cs.all) == 0 {
		return nil
	}
	return cs.all[len(cs.all)-1]
}

func (cs *channels) count() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.all)
}

func pvpPayload(status models.AuthorityStatus, current string) *models.SessionPayload {
	p := &models.SessionPayload{
		ID: "g1", Code: "ABC234", Mode: models.ModePvp, Status: status,
		Player1ID: "A", CurrentUserID: current, GridSize: 10, PixelsToPlace: 5,
	}
	if status != models.AuthorityWaiting {
		p.Player2ID = "B"
	}
	return p
}

func newTestManager(a *fakeAuthority) (*Manager, *channels) {
	cs := &channels{}
	return NewManager(a, cs.factory, nil), cs
}

func TestCreateSoloGame(t *testing.T) {
	a := &fakeAuthority{create: &models.SessionPayload{
		ID: "s1", Mode: models.ModeSolo, Status: models.AuthorityInProgress, CurrentLevel: 1, GridSize: 3,
		Sequence: []models.Coordinate{{X: 1, Y: 2}},
	}}
	m, cs := newTestManager(a)

	s, err := m.CreateGame(context.Background(), models.ModeSolo)
	require.NoError(t, err)
	require.NotNil(t, s.Solo)
	assert.Nil(t, s.Pvp)
	assert.Equal(t, models.StatusPlaying, m.Status())
	assert.Equal(t, 1, s.Solo.CurrentLevel)
	assert.Zero(t, cs.count(), "solo sessions never open a channel")
	assert.False(t, m.Connected())
}

func TestCreateGameFailureIsSurfaced(t *testing.T) {
	a := &fakeAuthority{createErr: authority.ErrUnreachable}
	m, _ := newTestManager(a)

	_, err := m.CreateGame(context.Background(), models.ModePvp)
	require.Error(t, err)
	assert.True(t, errors.Is(err, authority.ErrUnreachable))
	assert.Equal(t, models.StatusIdle, m.Status())
}

func TestCreatorWaitsThenConnects(t *testing.T) {
	a := &fakeAuthority{create: pvpPayload(models.AuthorityWaiting, "A")}
	m, cs := newTestManager(a)

	s, err := m.CreateGame(context.Background(), models.ModePvp)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, s.Status)
	assert.Equal(t, models.RolePlayer1, s.Pvp.Role)
	assert.Zero(t, cs.count())

	a.mu.Lock()
	a.get = pvpPayload(models.AuthorityInProgress, "A")
	a.mu.Unlock()

	s, err = m.WaitForOpponent(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPlaying, s.Status)
	assert.Equal(t, "B", s.Pvp.OpponentID)
	require.True(t, m.Connected())
	assert.Equal(t, "g1", cs.last().sessionID)
	assert.Equal(t, "A", cs.last().playerID)

	// already connected: refreshing again keeps the channel
	_, err = m.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cs.count())
}

func TestJoinGameTakesSecondSlot(t *testing.T) {
	a := &fakeAuthority{join: pvpPayload(models.AuthorityInProgress, "B")}
	m, cs := newTestManager(a)

	s, err := m.JoinGame(context.Background(), "ABC234")
	require.NoError(t, err)
	assert.Equal(t, models.RolePlayer2, s.Pvp.Role)
	assert.Equal(t, "A", s.Pvp.OpponentID)
	require.True(t, m.Connected())
	assert.Equal(t, "B", cs.last().playerID)
}

func TestQueueWaitThenMatch(t *testing.T) {
	a := &fakeAuthority{
		queueJoin: &models.QueueResult{},
		queuePoll: &models.QueueResult{Matched: true, Game: pvpPayload(models.AuthorityInProgress, "B")},
	}
	m, _ := newTestManager(a)

	s, err := m.JoinQueue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Equal(t, models.StatusWaitingQueue, m.Status())

	s, err = m.WaitForMatch(context.Background(), time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, models.StatusPlaying, m.Status())
	assert.False(t, m.InQueue())
	assert.True(t, m.Connected())
}

func TestWaitForMatchWhenNotQueued(t *testing.T) {
	m, _ := newTestManager(&fakeAuthority{})
	_, err := m.WaitForMatch(context.Background(), time.Millisecond)
	assert.ErrorIs(t, err, ErrNotQueued)
}

func TestLeaveQueueReturnsToIdle(t *testing.T) {
	a := &fakeAuthority{queueJoin: &models.QueueResult{}}
	m, _ := newTestManager(a)

	_, err := m.JoinQueue(context.Background())
	require.NoError(t, err)
	m.LeaveQueue(context.Background())
	assert.Equal(t, models.StatusIdle, m.Status())
	assert.EqualValues(t, 1, a.leaves.Load())
}

func (f *fakeAuthority) finishedSessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.finishIDs...)
}

func TestLeaveQueueDuringPollDiscardsMatch(t *testing.T) {
	ctx := context.Background()
	a := &fakeAuthority{
		queueJoin: &models.QueueResult{},
		queuePoll: &models.QueueResult{Matched: true, Game: pvpPayload(models.AuthorityInProgress, "B")},
		pollEnter: make(chan struct{}),
		pollGate:  make(chan struct{}),
	}
	m, cs := newTestManager(a)

	_, err := m.JoinQueue(ctx)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := m.PollQueue(ctx)
		errc <- err
	}()

	// leave while the poll is at the authority
	<-a.pollEnter
	m.LeaveQueue(ctx)
	assert.Equal(t, models.StatusIdle, m.Status())
	close(a.pollGate)

	assert.ErrorIs(t, <-errc, ErrSessionChanged)
	assert.Equal(t, models.StatusIdle, m.Status())
	assert.False(t, m.InQueue())
	assert.Nil(t, m.Session())
	assert.Zero(t, cs.count(), "no channel is opened for a discarded match")
	require.Eventually(t, func() bool {
		return len(a.finishedSessions()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"g1"}, a.finishedSessions(), "the pairing is given up at the authority")
}

func TestResetWhileQueuedWithdraws(t *testing.T) {
	a := &fakeAuthority{queueJoin: &models.QueueResult{}}
	m, _ := newTestManager(a)

	_, err := m.JoinQueue(context.Background())
	require.NoError(t, err)
	m.ResetGame()
	assert.Equal(t, models.StatusIdle, m.Status())
	require.Eventually(t, func() bool { return a.leaves.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestResetDiscardsInFlightCreate(t *testing.T) {
	a := &fakeAuthority{create: pvpPayload(models.AuthorityInProgress, "A"), entered: make(chan struct{}), gate: make(chan struct{})}
	m, cs := newTestManager(a)

	errc := make(chan error, 1)
	go func() {
		_, err := m.CreateGame(context.Background(), models.ModePvp)
		errc <- err
	}()

	// reset while the call is at the authority
	<-a.entered
	m.ResetGame()
	close(a.gate)

	assert.ErrorIs(t, <-errc, ErrSessionChanged)
	assert.Equal(t, models.StatusIdle, m.Status())
	assert.Nil(t, m.Session())
	assert.Zero(t, cs.count())
}

func TestResetClosesChannelAndSilencesHooks(t *testing.T) {
	a := &fakeAuthority{join: pvpPayload(models.AuthorityInProgress, "B")}
	m, cs := newTestManager(a)

	var hits atomic.Int32
	m.Hook(func(Ticket, realtime.Message) { hits.Add(1) })

	_, err := m.JoinGame(context.Background(), "ABC234")
	require.NoError(t, err)
	ch := cs.last()
	ch.Emit(realtime.Message{Type: realtime.TypePixelPlaced})
	assert.EqualValues(t, 1, hits.Load())

	m.ResetGame()
	assert.False(t, ch.Connected())
	ch.Emit(realtime.Message{Type: realtime.TypePixelPlaced})
	assert.EqualValues(t, 1, hits.Load(), "stale channel must not reach hooks")
}

func TestHookPanicDoesNotStopOthers(t *testing.T) {
	a := &fakeAuthority{join: pvpPayload(models.AuthorityInProgress, "B")}
	m, cs := newTestManager(a)

	var hits atomic.Int32
	m.Hook(func(Ticket, realtime.Message) { panic("boom") })
	m.Hook(func(Ticket, realtime.Message) { hits.Add(1) })

	_, err := m.JoinGame(context.Background(), "ABC234")
	require.NoError(t, err)
	require.NotPanics(t, func() { cs.last().Emit(realtime.Message{Type: realtime.TypePing}) })
	assert.EqualValues(t, 1, hits.Load())
}

func TestApplyWithStaleTicket(t *testing.T) {
	a := &fakeAuthority{join: pvpPayload(models.AuthorityInProgress, "B")}
	m, cs := newTestManager(a)

	_, err := m.JoinGame(context.Background(), "ABC234")
	require.NoError(t, err)
	tk, _, err := m.Current()
	require.NoError(t, err)
	assert.Equal(t, "B", tk.UserID)

	m.ResetGame()
	err = m.Apply(tk, func(s *models.Session) { s.Status = models.StatusFinished })
	assert.ErrorIs(t, err, ErrSessionChanged)

	m.Send(tk, realtime.NewGameFinished("B"))
	assert.Empty(t, cs.last().sent)
}

func TestCloseChannel(t *testing.T) {
	a := &fakeAuthority{join: pvpPayload(models.AuthorityInProgress, "B")}
	m, cs := newTestManager(a)

	_, err := m.JoinGame(context.Background(), "ABC234")
	require.NoError(t, err)
	tk, _, err := m.Current()
	require.NoError(t, err)

	m.Send(tk, realtime.NewGameFinished("B"))
	m.CloseChannel(tk)
	assert.False(t, m.Connected())
	require.Eventually(t, func() bool { return !cs.last().Connected() }, time.Second, 5*time.Millisecond)
	assert.Len(t, cs.last().sent, 1)
}

func TestListenFollowsChannel(t *testing.T) {
	a := &fakeAuthority{join: pvpPayload(models.AuthorityInProgress, "B")}
	m, cs := newTestManager(a)

	_, err := m.Listen(func(realtime.Message) {})
	assert.ErrorIs(t, err, ErrNoActiveSession)

	_, err = m.JoinGame(context.Background(), "ABC234")
	require.NoError(t, err)
	var got []realtime.MessageType
	h, err := m.Listen(func(msg realtime.Message) { got = append(got, msg.Type) })
	require.NoError(t, err)

	cs.last().Emit(realtime.Message{Type: realtime.TypePlayerConnected})
	m.Unlisten(h)
	cs.last().Emit(realtime.Message{Type: realtime.TypePlayerConnected})
	assert.Equal(t, []realtime.MessageType{realtime.TypePlayerConnected}, got)
}

func TestFinishGameIsBestEffort(t *testing.T) {
	a := &fakeAuthority{
		create:    &models.SessionPayload{ID: "s1", Mode: models.ModeSolo, Status: models.AuthorityInProgress},
		finishErr: authority.ErrFault,
	}
	m, _ := newTestManager(a)

	assert.Nil(t, m.FinishGame(context.Background(), models.GameStats{}), "no session is a no-op")

	_, err := m.CreateGame(context.Background(), models.ModeSolo)
	require.NoError(t, err)
	assert.Nil(t, m.FinishGame(context.Background(), models.GameStats{LevelReached: 3}))
	assert.Equal(t, models.StatusPlaying, m.Status())

	a.finishErr = nil
	sum := m.FinishGame(context.Background(), models.GameStats{LevelReached: 3})
	require.NotNil(t, sum)
	assert.Equal(t, "s1", sum.ID)
	assert.Equal(t, 3, sum.LevelReached)
}

func TestLeaderboard(t *testing.T) {
	m, _ := newTestManager(&fakeAuthority{})
	entries, err := m.Leaderboard(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Ann", entries[0].Name)
}
