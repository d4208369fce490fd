// Package scoring maps a finishing position within a field to league points.
//
// Every policy here is pure and non-increasing in position for a fixed field
// size. Positions outside 1..fieldSize score 0.
package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"poker-league/models"
)

var (
	ErrUnknownMode  = errors.New("unknown scoring mode")
	ErrInvalidTable = errors.New("invalid points table")
)

const defaultBasePoints = 10

// Policy is the tournament's scoring rule.
type Policy interface {
	Points(position, fieldSize int) int
}

// PolicyFunc adapts a plain function to Policy.
type PolicyFunc func(position, fieldSize int) int

func (f PolicyFunc) Points(position, fieldSize int) int { return f(position, fieldSize) }

func inRange(position, fieldSize int) bool {
	return position >= 1 && position <= fieldSize
}

// Linear awards base points for every player finished ahead of.
func Linear(base int) Policy {
	return PolicyFunc(func(position, fieldSize int) int {
		if !inRange(position, fieldSize) {
			return 0
		}
		return base * (fieldSize - position + 1)
	})
}

// Sqrt awards round(base * sqrt(fieldSize / position)), rewarding deep finishes in big fields.
func Sqrt(base int) Policy {
	return PolicyFunc(func(position, fieldSize int) int {
		if !inRange(position, fieldSize) {
			return 0
		}
		return int(math.Round(float64(base) * math.Sqrt(float64(fieldSize)) / math.Sqrt(float64(position))))
	})
}

// Table awards points[position-1]; positions past the table score 0.
func Table(points []int) Policy {
	table := append([]int(nil), points...)
	return PolicyFunc(func(position, fieldSize int) int {
		if !inRange(position, fieldSize) || position > len(table) {
			return 0
		}
		return table[position-1]
	})
}

// ForTournament builds the policy configured on t.
func ForTournament(t *models.Tournament) (Policy, error) {
	base := t.BasePoints
	if base <= 0 {
		base = defaultBasePoints
	}

	switch t.ScoringMode {
	case "", models.ScoringModeSqrt:
		return Sqrt(base), nil
	case models.ScoringModeLinear:
		return Linear(base), nil
	case models.ScoringModeTable:
		var points []int
		if len(t.PointsTable) > 0 {
			if err := json.Unmarshal(t.PointsTable, &points); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
			}
		}
		for i := 1; i < len(points); i++ {
			if points[i] > points[i-1] {
				return nil, fmt.Errorf("%w: position %d scores more than position %d", ErrInvalidTable, i+1, i)
			}
		}
		if len(points) > 0 && points[len(points)-1] < 0 {
			return nil, fmt.Errorf("%w: negative points", ErrInvalidTable)
		}
		return Table(points), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, t.ScoringMode)
	}
}
