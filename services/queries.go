package services

import (
	"encoding/json"
	"fmt"
	"time"

	"poker-league/blindtimer"
	"poker-league/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// lockGameDate loads the game date row FOR UPDATE. Every mutation of a game
// date's roster, ledger or timer takes this lock first, so at most one of them
// is in flight per game date.
func lockGameDate(tx *gorm.DB, id string) (*models.GameDate, error) {
	var gd models.GameDate
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&gd).Error; err != nil {
		return nil, notFound(err, "game date", id)
	}
	return &gd, nil
}

func requireStatus(gd *models.GameDate, allowed ...string) error {
	for _, s := range allowed {
		if gd.Status == s {
			return nil
		}
	}
	return fmt.Errorf("%w: game date %s is %s", ErrInvalidState, gd.ID, gd.Status)
}

// loadLevels returns a tournament's blind levels in clock order.
func loadLevels(db *gorm.DB, tournamentID string) ([]models.BlindLevel, error) {
	var levels []models.BlindLevel
	if err := db.Where("tournament_id = ?", tournamentID).
		Order("level ASC").
		Find(&levels).Error; err != nil {
		return nil, fmt.Errorf("load blind levels for %s: %w", tournamentID, err)
	}
	blindtimer.SortLevels(levels)
	return levels, nil
}

func loadTimer(db *gorm.DB, gameDateID string, lock bool) (*models.TimerState, error) {
	q := db
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var timer models.TimerState
	if err := q.Where("game_date_id = ?", gameDateID).First(&timer).Error; err != nil {
		return nil, notFound(err, "timer for game date", gameDateID)
	}
	return &timer, nil
}

func newTimerAction(gameDateID, action, actor string, from, to *int, meta map[string]interface{}, now time.Time) (*models.TimerAction, error) {
	if actor == "" {
		actor = "anonymous"
	}
	a := &models.TimerAction{
		ID:         uuid.NewString(),
		GameDateID: gameDateID,
		Action:     action,
		Actor:      actor,
		FromLevel:  from,
		ToLevel:    to,
		CreatedAt:  now,
	}
	if len(meta) > 0 {
		raw, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("encode %s metadata: %w", action, err)
		}
		a.Metadata = datatypes.JSON(raw)
	}
	return a, nil
}

func intPtr(v int) *int { return &v }
