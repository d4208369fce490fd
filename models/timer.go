package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	TimerStatusIdle      = "idle"
	TimerStatusActive    = "active"
	TimerStatusPaused    = "paused"
	TimerStatusCompleted = "completed"
)

const (
	TimerActionStart       = "start"
	TimerActionPause       = "pause"
	TimerActionResume      = "resume"
	TimerActionAdvance     = "advance"
	TimerActionAutoAdvance = "auto_advance"
	TimerActionComplete    = "complete"
	TimerActionCancel      = "cancel"
)

// SystemActor is recorded for actions nobody asked for.
const SystemActor = "system"

// TimerState is the last persisted checkpoint of a game date's blind clock.
// While active, TimeRemaining and TotalElapsed are only true as of LevelStartTime;
// derive live values with blindtimer.Compute.
type TimerState struct {
	ID             string     `json:"id" gorm:"primaryKey"`
	GameDateID     string     `json:"game_date_id" gorm:"not null;uniqueIndex"`
	Status         string     `json:"status" gorm:"type:varchar(16);not null"`
	CurrentLevel   int        `json:"current_level"` // index into the ordered blind levels
	TimeRemaining  int        `json:"time_remaining"`
	TotalElapsed   int        `json:"total_elapsed"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	LevelStartTime *time.Time `json:"level_start_time,omitempty"`
	PausedAt       *time.Time `json:"paused_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TimerAction is an append-only audit entry. Nothing reads it back to compute state.
type TimerAction struct {
	ID         string         `json:"id" gorm:"primaryKey"`
	GameDateID string         `json:"game_date_id" gorm:"not null;index"`
	Action     string         `json:"action" gorm:"type:varchar(16);not null"`
	Actor      string         `json:"actor" gorm:"not null"`
	FromLevel  *int           `json:"from_level,omitempty"`
	ToLevel    *int           `json:"to_level,omitempty"`
	Metadata   datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
