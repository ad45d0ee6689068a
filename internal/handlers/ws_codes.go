// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom close codes for the game relay.
const (
	BadSubprotocolError   websocket.StatusCode = 3000 // Client did not negotiate the "game" subprotocol.
	InvalidAuthTokenError websocket.StatusCode = 3001 // Missing or invalid auth_token cookie.
	InvalidGameIDError    websocket.StatusCode = 3003 // Game in the path does not exist.
	NotParticipantError   websocket.StatusCode = 3004 // Authenticated user is not a player in the game.
	ReplacedError         websocket.StatusCode = 3005 // The same player opened a newer connection.
)
