// internal/models/session.go
package models

import "time"

const (
	DefaultSoloGridSize  = 3
	DefaultPvpGridSize   = 10
	DefaultPixelsToPlace = 5
)

// Session is the local mirror of one game instance. Exactly one of Solo or Pvp is set,
// selected by Mode when the authority's payload is decoded.
type Session struct {
	ID     string `json:"id"`
	Code   string `json:"code"`
	Mode   Mode   `json:"mode"`
	Status Status `json:"status"`

	// CurrentUserID is the local identity as the authority reported it for this session.
	CurrentUserID string `json:"current_user_id"`

	Solo *SoloState `json:"solo,omitempty"`
	Pvp  *PvpState  `json:"pvp,omitempty"`
}

// SoloState is the memory-sequence sub-state.
type SoloState struct {
	CurrentLevel int          `json:"current_level"`
	GridSize     int          `json:"grid_size"`
	Sequence     []Coordinate `json:"sequence"`
	UserSequence []Coordinate `json:"user_sequence"`

	// Showing and AwaitingInput are never both true.
	Showing       bool `json:"showing"`
	AwaitingInput bool `json:"awaiting_input"`

	CorrectAnswers int       `json:"correct_answers"`
	Errors         int       `json:"errors"`
	LevelReached   int       `json:"level_reached"`
	StartedAt      time.Time `json:"started_at"`
}

// PvpState is the pixel race sub-state, seen from the local player.
type PvpState struct {
	Role           Role    `json:"role"`
	OpponentID     string  `json:"opponent_id"`
	GridSize       int     `json:"grid_size"`
	PixelsToPlace  int     `json:"pixels_to_place"`
	PixelsPlaced   int     `json:"pixels_placed"`
	MyPixels       []Pixel `json:"my_pixels"`
	OpponentPixels []Pixel `json:"opponent_pixels"`
	WinnerID       string  `json:"winner_id,omitempty"`
}

// DecodeSession builds the tagged session from an authority payload. It is called once per
// session entry so callers never inspect mode-specific fields ad hoc.
func DecodeSession(p *SessionPayload) *Session {
	s := &Session{
		ID:            p.ID,
		Code:          p.Code,
		Mode:          p.Mode,
		Status:        p.Status.Local(),
		CurrentUserID: p.CurrentUserID,
	}

	switch p.Mode {
	case ModePvp:
		role := DeriveRole(p.Player1ID, p.CurrentUserID)
		st := &PvpState{
			Role:          role,
			GridSize:      orDefault(p.GridSize, DefaultPvpGridSize),
			PixelsToPlace: orDefault(p.PixelsToPlace, DefaultPixelsToPlace),
		}
		mine, theirs := p.Player1Pixels, p.Player2Pixels
		st.OpponentID = p.Player2ID
		if role == RolePlayer2 {
			mine, theirs = theirs, mine
			st.OpponentID = p.Player1ID
		}
		st.MyPixels = append([]Pixel{}, mine...)
		st.OpponentPixels = append([]Pixel{}, theirs...)
		st.PixelsPlaced = min(len(st.MyPixels), st.PixelsToPlace)
		if s.Status == StatusFinished {
			st.WinnerID = p.WinnerID
		}
		s.Pvp = st
	default:
		s.Solo = &SoloState{
			CurrentLevel: orDefault(p.CurrentLevel, 1),
			GridSize:     orDefault(p.GridSize, DefaultSoloGridSize),
			Sequence:     append([]Coordinate{}, p.Sequence...),
			UserSequence: []Coordinate{},
			StartedAt:    time.Now(),
		}
	}
	return s
}

// Clone returns a deep copy that can be handed to a renderer.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Solo != nil {
		solo := *s.Solo
		solo.Sequence = append([]Coordinate{}, s.Solo.Sequence...)
		solo.UserSequence = append([]Coordinate{}, s.Solo.UserSequence...)
		c.Solo = &solo
	}
	if s.Pvp != nil {
		pvp := *s.Pvp
		pvp.MyPixels = append([]Pixel{}, s.Pvp.MyPixels...)
		pvp.OpponentPixels = append([]Pixel{}, s.Pvp.OpponentPixels...)
		c.Pvp = &pvp
	}
	return &c
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
