package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an anonymous guest known to the authority.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
