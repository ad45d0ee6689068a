// internal/models/game.go
package models

import "fmt"

// Mode selects one of the two game variants. It never changes after creation.
type Mode string

const (
	ModeSolo Mode = "solo"
	ModePvp  Mode = "pvp"
)

// ParseMode validates a mode string coming from a request or a config flag.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSolo, ModePvp:
		return Mode(s), nil
	}
	return "", fmt.Errorf("invalid game mode %q, use 'solo' or 'pvp'", s)
}

// Status is the local lifecycle state of the active session.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusWaiting      Status = "waiting"
	StatusWaitingQueue Status = "waiting_queue"
	StatusPlaying      Status = "playing"
	StatusFinished     Status = "finished"
)

// AuthorityStatus is the session status as the authority reports it.
type AuthorityStatus string

const (
	AuthorityWaiting    AuthorityStatus = "waiting"
	AuthorityInProgress AuthorityStatus = "in_progress"
	AuthorityFinished   AuthorityStatus = "finished"
	AuthorityCancelled  AuthorityStatus = "cancelled"
)

// Local maps the authority's status onto the client state machine.
func (s AuthorityStatus) Local() Status {
	switch s {
	case AuthorityWaiting:
		return StatusWaiting
	case AuthorityInProgress:
		return StatusPlaying
	case AuthorityFinished, AuthorityCancelled:
		return StatusFinished
	}
	return StatusIdle
}

// Coordinate is a cell on a solo puzzle grid.
type Coordinate struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Pixel is a single pvp placement. Timestamp is unix milliseconds.
type Pixel struct {
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Color     string `json:"color"`
	Timestamp int64  `json:"timestamp"`
}

// SameSequence reports whether two attempts match cell for cell.
func SameSequence(a, b []Coordinate) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
