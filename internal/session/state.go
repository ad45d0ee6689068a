package session

import (
	"github.com/pixelduel/gamecore/internal/models"
	"github.com/pixelduel/gamecore/internal/realtime"
)

// Current returns a ticket for the active session together with a snapshot of it.
func (m *Manager) Current() (Ticket, *models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return Ticket{}, nil, ErrNoActiveSession
	}
	t := Ticket{epoch: m.epoch, SessionID: m.active.ID, UserID: m.active.CurrentUserID}
	return t, m.active.Clone(), nil
}

// Session returns a snapshot of the active session, or nil when idle.
func (m *Manager) Session() *models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active.Clone()
}

// Status is the active session's status, waiting_queue while queued, otherwise idle.
func (m *Manager) Status() models.Status {
	m.mu.Lock()
	active := m.active
	var st models.Status
	if active != nil {
		st = active.Status
	}
	m.mu.Unlock()

	switch {
	case active != nil:
		return st
	case m.queue.InQueue():
		return models.StatusWaitingQueue
	}
	return models.StatusIdle
}

// InQueue reports whether the player is waiting for a pairing.
func (m *Manager) InQueue() bool {
	return m.queue.InQueue()
}

// Connected reports whether the realtime channel of the active session is open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	ch := m.channel
	m.mu.Unlock()
	return ch != nil && ch.Connected()
}

// Valid reports whether t still names the active session.
func (m *Manager) Valid(t Ticket) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch == t.epoch && m.active != nil
}

// Apply mutates the active session if t still names it. It returns ErrSessionChanged when
// the session was reset or replaced since t was issued.
func (m *Manager) Apply(t Ticket, fn func(s *models.Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != t.epoch || m.active == nil {
		return ErrSessionChanged
	}
	fn(m.active)
	return nil
}

// Send broadcasts msg on the channel of the session named by t. Nothing is sent for a stale
// ticket or a closed channel.
func (m *Manager) Send(t Ticket, msg realtime.Message) {
	m.mu.Lock()
	ch := m.channel
	ok := m.epoch == t.epoch
	m.mu.Unlock()
	if ok && ch != nil {
		ch.Send(msg)
	}
}

// CloseChannel ends the realtime mirror of a finished session. The close handshake runs in
// the background so it may be called from inside a hook.
func (m *Manager) CloseChannel(t Ticket) {
	m.mu.Lock()
	if m.epoch != t.epoch || m.channel == nil {
		m.mu.Unlock()
		return
	}
	ch := m.channel
	m.channel = nil
	m.mu.Unlock()

	go ch.Disconnect()
}

// Listen registers l on the active session's channel. The listener goes away with the channel.
func (m *Manager) Listen(l realtime.Listener) (realtime.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.channel == nil {
		return realtime.Handle{}, ErrNoActiveSession
	}
	epoch := m.epoch
	return m.channel.Register(func(msg realtime.Message) {
		if m.isEpoch(epoch) {
			l(msg)
		}
	}), nil
}

// Unlisten removes a listener added with Listen.
func (m *Manager) Unlisten(h realtime.Handle) {
	m.mu.Lock()
	ch := m.channel
	m.mu.Unlock()
	if ch != nil {
		ch.Unregister(h)
	}
}
