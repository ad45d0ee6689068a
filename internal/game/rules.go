// internal/game/rules.go
package game

import (
	"errors"
	"math/rand/v2"
	"regexp"
	"strings"

	"github.com/pixelduel/gamecore/internal/models"
)

const (
	// CodeLength is the number of characters in a join code.
	CodeLength = 6

	// codeAlphabet leaves out 0, O, 1 and I, which read alike.
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	smallGridMaxLevel  = 10
	mediumGridMaxLevel = 20
)

var (
	ErrNotFound      = errors.New("game not found")
	ErrForbidden     = errors.New("you are not a player in this game")
	ErrWrongMode     = errors.New("operation not allowed in this game mode")
	ErrNotInProgress = errors.New("game is not in progress")
	ErrFinished      = errors.New("game is already finished")
	ErrQuotaReached  = errors.New("all pixels have already been placed")
	ErrInvalidMove   = errors.New("invalid placement")
	ErrCooldown      = errors.New("placing pixels too fast")
	ErrOwnGame       = errors.New("cannot join your own game")
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// GridSizeForLevel returns the side of the solo grid: 3 for levels 1-10, 4 for 11-20, 5 above.
func GridSizeForLevel(level int) int {
	switch {
	case level <= smallGridMaxLevel:
		return 3
	case level <= mediumGridMaxLevel:
		return 4
	}
	return 5
}

// GenerateSequence returns level random cells on the grid for that level.
func GenerateSequence(level int) []models.Coordinate {
	size := GridSizeForLevel(level)
	seq := make([]models.Coordinate, level)
	for i := range seq {
		seq[i] = models.Coordinate{X: rand.IntN(size), Y: rand.IntN(size)}
	}
	return seq
}

// GenerateCode returns a random join code.
func GenerateCode() string {
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		b.WriteByte(codeAlphabet[rand.IntN(len(codeAlphabet))])
	}
	return b.String()
}

// NormalizeCode upper-cases and trims a code typed by a player.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidColor reports whether c is a #rrggbb color.
func ValidColor(c string) bool {
	return colorPattern.MatchString(c)
}

// ValidPlacement checks bounds and color of a pvp placement.
func ValidPlacement(p models.Placement, gridSize int) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < gridSize && p.Y < gridSize && ValidColor(p.Color)
}
