package models

import (
	"time"

	"gorm.io/gorm"
)

// Player is the local snapshot of a league member, kept in sync with the
// profile service by the player sync worker.
type Player struct {
	ID                    string     `json:"id" gorm:"primaryKey"`
	ExternalUserID        string     `json:"external_user_id" gorm:"uniqueIndex;not null"`
	DisplayName           string     `json:"display_name" gorm:"index;not null"`
	Email                 string     `json:"email,omitempty"`
	AvatarURL             *string    `json:"avatar_url,omitempty"`
	LastVictoryAt         *time.Time `json:"last_victory_at,omitempty"`
	LastVictoryGameDateID *string    `json:"last_victory_game_date_id,omitempty"`
	CreatedAt             time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt             time.Time  `json:"updated_at" gorm:"autoUpdateTime"`

	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
