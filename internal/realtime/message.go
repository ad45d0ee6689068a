// internal/realtime/message.go
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType tags every realtime payload.
type MessageType string

const (
	TypePixelPlaced        MessageType = "pixel_placed"
	TypeGameFinished       MessageType = "game_finished"
	TypePlayerConnected    MessageType = "player_connected"
	TypePlayerDisconnected MessageType = "player_disconnected"
	TypePixelUpdate        MessageType = "pixel_update"
	TypePing               MessageType = "ping"
	TypePong               MessageType = "pong"
	TypeError              MessageType = "error"
)

// Message is the logical envelope exchanged over a channel. Exactly the embedded part that
// matches Type is populated; unknown types carry only Type and are ignored by the engines.
type Message struct {
	Type   MessageType `json:"type"`
	UserID string      `json:"user_id,omitempty"`
	GameID string      `json:"game_id,omitempty"`

	*PixelPlaced
	*GameFinished

	// Text is set on error frames from the authority.
	Text string `json:"message,omitempty"`
}

// PixelPlaced mirrors an accepted placement to the opponent.
type PixelPlaced struct {
	X               int    `json:"x"`
	Y               int    `json:"y"`
	Color           string `json:"color"`
	Timestamp       int64  `json:"timestamp"`
	PixelsPlaced    int    `json:"pixels_placed"`
	PixelsRemaining int    `json:"pixels_remaining"`
}

// GameFinished announces the authority's winner.
type GameFinished struct {
	WinnerID string `json:"winner_id"`
}

// NewPixelPlaced builds a pixel_placed message.
func NewPixelPlaced(p PixelPlaced) Message {
	return Message{Type: TypePixelPlaced, PixelPlaced: &p}
}

// NewGameFinished builds a game_finished message.
func NewGameFinished(winnerID string) Message {
	return Message{Type: TypeGameFinished, GameFinished: &GameFinished{WinnerID: winnerID}}
}

var errMissingType = errors.New("message has no type")

// ParseMessage decodes one inbound frame. Any error means the frame must be dropped.
func ParseMessage(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("invalid message json: %w", err)
	}
	if m.Type == "" {
		return Message{}, errMissingType
	}
	return m, nil
}
