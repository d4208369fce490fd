package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ScoringModeSqrt   = "sqrt"
	ScoringModeLinear = "linear"
	ScoringModeTable  = "table"
)

// Tournament is the recurring league a game date belongs to. It carries the
// configuration the engine reads but never writes: scoring and blind levels.
type Tournament struct {
	ID          string         `json:"id" gorm:"primaryKey"`
	Name        string         `json:"name" gorm:"not null"`
	Slug        string         `json:"slug" gorm:"uniqueIndex"`
	ScoringMode string         `json:"scoring_mode" gorm:"type:varchar(16);default:'sqrt'"`
	BasePoints  int            `json:"base_points" gorm:"default:10"`
	PointsTable datatypes.JSON `json:"points_table,omitempty"` // e.g. [25, 18, 15] for ScoringModeTable
	CreatedAt   time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"autoUpdateTime"`

	BlindLevels []BlindLevel `json:"blind_levels,omitempty" gorm:"foreignKey:TournamentID"`
}

// BlindLevel is one step of a tournament's blind structure.
// DurationMinutes = 0 marks an untimed level that never expires on its own.
type BlindLevel struct {
	ID              string `json:"id" gorm:"primaryKey"`
	TournamentID    string `json:"tournament_id" gorm:"not null;index"`
	Level           int    `json:"level" gorm:"not null"`
	SmallBlind      int64  `json:"small_blind"`
	BigBlind        int64  `json:"big_blind"`
	Ante            int64  `json:"ante"`
	DurationMinutes int    `json:"duration_minutes"`
}

// DurationSeconds is the length of the level on the clock.
func (b BlindLevel) DurationSeconds() int {
	return b.DurationMinutes * 60
}
