package models

// Role names the pvp slot the local identity occupies in a session.
type Role string

const (
	RolePlayer1 Role = "player1"
	RolePlayer2 Role = "player2"
)

// DeriveRole maps the authority's identity fields to a slot. It is recomputed on every
// create, join and queue match; it is never cached across reconnects.
func DeriveRole(player1ID, currentUserID string) Role {
	if player1ID != "" && player1ID == currentUserID {
		return RolePlayer1
	}
	return RolePlayer2
}

// Identity is the anonymous guest the authority issued to this client.
type Identity struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Token  string `json:"token"`
}
