package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"poker-league/models"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// StandingRow is one finishing line of an archived result sheet.
type StandingRow struct {
	Position   int     `json:"position"`
	PlayerID   string  `json:"player_id"`
	PlayerName string  `json:"player_name,omitempty"`
	Points     int     `json:"points"`
	Eliminator *string `json:"eliminator_id,omitempty"`
}

// ResultSheet is the final standings of a completed game date.
type ResultSheet struct {
	TournamentID   string        `json:"tournament_id"`
	TournamentName string        `json:"tournament_name"`
	GameDateID     string        `json:"game_date_id"`
	SequenceNumber int           `json:"sequence_number"`
	ScheduledDate  time.Time     `json:"scheduled_date"`
	EndedAt        *time.Time    `json:"ended_at,omitempty"`
	FieldSize      int           `json:"field_size"`
	Standings      []StandingRow `json:"standings"`
}

// ArchiveKey is the object key of a result sheet, e.g. results/spring-league-2026/game-date-3.json.
func (r *ResultSheet) ArchiveKey() string {
	return fmt.Sprintf("results/%s/game-date-%d.json", slug.Make(r.TournamentName), r.SequenceNumber)
}

// ResultArchiver stores result sheets outside the database.
type ResultArchiver interface {
	Archive(ctx context.Context, sheet *ResultSheet) (string, error)
}

type objectStore interface {
	PutObject(ctx context.Context, key, contentType string, body []byte) (string, error)
}

// BucketArchiver writes result sheets as JSON objects, R2 in production.
type BucketArchiver struct {
	Store objectStore
}

func NewBucketArchiver(store objectStore) *BucketArchiver {
	return &BucketArchiver{Store: store}
}

func (a *BucketArchiver) Archive(ctx context.Context, sheet *ResultSheet) (string, error) {
	body, err := json.MarshalIndent(sheet, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode result sheet: %w", err)
	}
	return a.Store.PutObject(ctx, sheet.ArchiveKey(), "application/json", body)
}

// buildResultSheet collects the standings of a game date with player names.
func buildResultSheet(ctx context.Context, db *gorm.DB, gd *models.GameDate, t *models.Tournament) (*ResultSheet, error) {
	db = db.WithContext(ctx)
	var standings []models.Elimination
	if err := db.Where("game_date_id = ?", gd.ID).Order("position ASC").Find(&standings).Error; err != nil {
		return nil, fmt.Errorf("load standings: %w", err)
	}

	ids := make([]string, 0, len(standings))
	for _, e := range standings {
		ids = append(ids, e.EliminatedPlayerID)
	}
	var players []models.Player
	if err := db.Unscoped().Where("id IN ?", ids).Find(&players).Error; err != nil {
		return nil, fmt.Errorf("load players: %w", err)
	}
	names := make(map[string]string, len(players))
	for _, p := range players {
		names[p.ID] = p.DisplayName
	}

	sheet := &ResultSheet{
		TournamentID:   t.ID,
		TournamentName: t.Name,
		GameDateID:     gd.ID,
		SequenceNumber: gd.SequenceNumber,
		ScheduledDate:  gd.ScheduledDate,
		EndedAt:        gd.EndedAt,
		FieldSize:      len(standings),
		Standings:      make([]StandingRow, 0, len(standings)),
	}
	for _, e := range standings {
		sheet.Standings = append(sheet.Standings, StandingRow{
			Position:   e.Position,
			PlayerID:   e.EliminatedPlayerID,
			PlayerName: names[e.EliminatedPlayerID],
			Points:     e.Points,
			Eliminator: e.EliminatorPlayerID,
		})
	}
	return sheet, nil
}
