// internal/models/payloads.go
package models

// SessionPayload is the authority's view of a session as returned by create, join, get and
// queue-match calls.
type SessionPayload struct {
	ID            string          `json:"id"`
	Code          string          `json:"code"`
	Mode          Mode            `json:"mode"`
	Status        AuthorityStatus `json:"status"`
	CurrentLevel  int             `json:"current_level"`
	GridSize      int             `json:"grid_size"`
	Sequence      []Coordinate    `json:"sequence,omitempty"`
	Player1ID     string          `json:"player1_id"`
	Player2ID     string          `json:"player2_id,omitempty"`
	CurrentUserID string          `json:"current_user_id"`
	PixelsToPlace int             `json:"pixels_to_place,omitempty"`
	Player1Pixels []Pixel         `json:"player1_pixels,omitempty"`
	Player2Pixels []Pixel         `json:"player2_pixels,omitempty"`
	WinnerID      string          `json:"winner_id,omitempty"`
}

// QueueResult distinguishes an immediate pairing from a plain enqueue acknowledgement.
type QueueResult struct {
	Matched bool            `json:"matched"`
	Game    *SessionPayload `json:"game,omitempty"`
}

// AnswerRequest carries a full solo attempt.
type AnswerRequest struct {
	Sequence []Coordinate `json:"sequence"`
}

// AnswerVerdict is the authority's grading of a solo attempt. NextLevel, GridSize and Sequence
// are set only when Correct; LevelReached only when not.
type AnswerVerdict struct {
	Correct      bool         `json:"correct"`
	Message      string       `json:"message,omitempty"`
	NextLevel    int          `json:"next_level,omitempty"`
	GridSize     int          `json:"grid_size,omitempty"`
	Sequence     []Coordinate `json:"sequence,omitempty"`
	LevelReached int          `json:"level_reached,omitempty"`
}

// Placement is a pvp pixel request.
type Placement struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Color string `json:"color"`
}

// PlacementResult is the authority's accounting after a placement.
type PlacementResult struct {
	PixelsPlaced    int    `json:"pixels_placed"`
	PixelsRemaining int    `json:"pixels_remaining"`
	GameFinished    bool   `json:"game_finished"`
	WinnerID        string `json:"winner_id,omitempty"`
}

// GameStats is reported once a game ends.
type GameStats struct {
	LevelReached    int `json:"level_reached"`
	CorrectAnswers  int `json:"correct_answers"`
	Errors          int `json:"errors"`
	PlayTimeSeconds int `json:"play_time_seconds"`
}

// FinishSummary echoes the stored result.
type FinishSummary struct {
	ID string `json:"id"`
	GameStats
}

// LeaderboardEntry is one ranked player.
type LeaderboardEntry struct {
	UserID        string `json:"user_id"`
	Name          string `json:"name"`
	MaxLevel      int    `json:"max_level"`
	FirstAchieved string `json:"first_achieved"`
}

// ErrorBody is the JSON error document the authority returns with non-2xx statuses.
type ErrorBody struct {
	Detail string `json:"detail"`
}
