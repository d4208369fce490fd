package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"poker-league/models"

	"gorm.io/gorm"
)

// PlayerRepository is the league's view of player profiles.
type PlayerRepository interface {
	Exists(ctx context.Context, playerID string) (bool, error)
	RecordVictory(ctx context.Context, playerID, gameDateID string, at time.Time) error
}

// GormPlayerRepository reads the players table mirrored from the profile service.
type GormPlayerRepository struct {
	DB *gorm.DB
}

func NewPlayerRepository(db *gorm.DB) *GormPlayerRepository {
	return &GormPlayerRepository{DB: db}
}

func (r *GormPlayerRepository) Exists(ctx context.Context, playerID string) (bool, error) {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.Player{}).
		Where("id = ?", playerID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("look up player %s: %w", playerID, err)
	}
	return count > 0, nil
}

// RecordVictory stamps the player's latest win. An older win never overwrites a newer one.
func (r *GormPlayerRepository) RecordVictory(ctx context.Context, playerID, gameDateID string, at time.Time) error {
	res := r.DB.WithContext(ctx).Model(&models.Player{}).
		Where("id = ? AND (last_victory_at IS NULL OR last_victory_at < ?)", playerID, at).
		Updates(map[string]interface{}{
			"last_victory_at":            at,
			"last_victory_game_date_id": gameDateID,
		})
	if res.Error != nil {
		return fmt.Errorf("record victory for %s: %w", playerID, res.Error)
	}
	return nil
}

// PlayerSummary is what directors see when looking for someone to seat.
type PlayerSummary struct {
	ID             string  `json:"id"`
	ExternalUserID string  `json:"external_user_id"`
	DisplayName    string  `json:"display_name"`
	AvatarURL      *string `json:"avatar_url,omitempty"`
}

// Search finds players by display name or email, case-insensitively.
func (r *GormPlayerRepository) Search(ctx context.Context, query string, limit int) ([]PlayerSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	db := r.DB.WithContext(ctx).Model(&models.Player{}).Order("display_name ASC").Limit(limit)
	if q := strings.ToLower(strings.TrimSpace(query)); q != "" {
		term := "%" + q + "%"
		db = db.Where("LOWER(display_name) LIKE ? OR LOWER(email) LIKE ?", term, term)
	}

	var players []models.Player
	if err := db.Find(&players).Error; err != nil {
		return nil, fmt.Errorf("search players: %w", err)
	}
	out := make([]PlayerSummary, len(players))
	for i, p := range players {
		out[i] = PlayerSummary{
			ID:             p.ID,
			ExternalUserID: p.ExternalUserID,
			DisplayName:    p.DisplayName,
			AvatarURL:      p.AvatarURL,
		}
	}
	return out, nil
}
