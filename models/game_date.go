package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	GameDateStatusScheduled  = "scheduled"
	GameDateStatusInProgress = "in_progress"
	GameDateStatusCompleted  = "completed"
	GameDateStatusCancelled  = "cancelled"
)

// GameDate is one played instance of a tournament.
type GameDate struct {
	ID             string         `json:"id" gorm:"primaryKey"`
	TournamentID   string         `json:"tournament_id" gorm:"not null;index"`
	SequenceNumber int            `json:"sequence_number" gorm:"not null"`
	Status         string         `json:"status" gorm:"type:varchar(16);not null;index"`
	ScheduledDate  time.Time      `json:"scheduled_date"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	EndedAt        *time.Time     `json:"ended_at,omitempty"`
	GuestIDs       datatypes.JSON `json:"guest_ids,omitempty"`
	CreatedAt      time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"autoUpdateTime"`

	Players []GameDatePlayer `json:"players,omitempty" gorm:"foreignKey:GameDateID"`
}

// PlayerIDs returns the roster in join order. Players must be preloaded.
func (g *GameDate) PlayerIDs() []string {
	ids := make([]string, 0, len(g.Players))
	for _, p := range g.Players {
		ids = append(ids, p.PlayerID)
	}
	return ids
}

// GameDatePlayer is one roster membership.
type GameDatePlayer struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	GameDateID string    `json:"game_date_id" gorm:"not null;uniqueIndex:idx_game_date_player"`
	PlayerID   string    `json:"player_id" gorm:"not null;uniqueIndex:idx_game_date_player"`
	SortOrder  int       `json:"sort_order" gorm:"column:sort_order;default:0"`
	JoinedAt   time.Time `json:"joined_at"`
}

// Elimination is a player's finishing record: 1 is the winner, the field size is first out.
type Elimination struct {
	ID                 string    `json:"id" gorm:"primaryKey"`
	GameDateID         string    `json:"game_date_id" gorm:"not null;index;uniqueIndex:idx_elimination_player"`
	EliminatedPlayerID string    `json:"eliminated_player_id" gorm:"not null;uniqueIndex:idx_elimination_player"`
	EliminatorPlayerID *string   `json:"eliminator_player_id"` // nil only for the winner
	Position           int       `json:"position" gorm:"not null"`
	Points             int       `json:"points"`
	EliminatedAt       time.Time `json:"eliminated_at"`
	CreatedAt          time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
