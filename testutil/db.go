// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"poker-league/logger"
	"poker-league/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenDB opens a migrated in-memory SQLite database. A single connection
// serializes transactions the way row locks do in postgres.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()
	if err := logger.Init(); err != nil {
		t.Fatalf("init logger: %v", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Level is a shorthand blind level definition for fixtures.
type Level struct {
	Small, Big int64
	Minutes    int
}

// SeedTournament creates a tournament with the given scoring mode and blind levels.
func SeedTournament(t testing.TB, db *gorm.DB, mode string, levels ...Level) *models.Tournament {
	t.Helper()
	id := uuid.NewString()
	tournament := &models.Tournament{
		ID:          id,
		Name:        "Thursday Night Hold'em " + id[:8],
		Slug:        "thursday-night-holdem-" + id[:8],
		ScoringMode: mode,
		BasePoints:  10,
		PointsTable: datatypes.JSON(`[]`),
	}
	if err := db.Create(tournament).Error; err != nil {
		t.Fatalf("seed tournament: %v", err)
	}
	for i, l := range levels {
		level := models.BlindLevel{
			ID:              uuid.NewString(),
			TournamentID:    id,
			Level:           i + 1,
			SmallBlind:      l.Small,
			BigBlind:        l.Big,
			DurationMinutes: l.Minutes,
		}
		if err := db.Create(&level).Error; err != nil {
			t.Fatalf("seed blind level: %v", err)
		}
		tournament.BlindLevels = append(tournament.BlindLevels, level)
	}
	return tournament
}

// SeedPlayers creates n players and returns their IDs.
func SeedPlayers(t testing.TB, db *gorm.DB, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		p := models.Player{
			ID:             uuid.NewString(),
			ExternalUserID: uuid.NewString(),
			DisplayName:    fmt.Sprintf("player-%02d", i+1),
		}
		if err := db.Create(&p).Error; err != nil {
			t.Fatalf("seed player: %v", err)
		}
		ids = append(ids, p.ID)
	}
	return ids
}

// SeedGameDate creates a game date in the given status with the given roster.
func SeedGameDate(t testing.TB, db *gorm.DB, tournamentID, status string, playerIDs []string) *models.GameDate {
	t.Helper()
	gd := &models.GameDate{
		ID:             uuid.NewString(),
		TournamentID:   tournamentID,
		SequenceNumber: 1,
		Status:         status,
		ScheduledDate:  time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC),
	}
	err := db.WithContext(context.Background()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(gd).Error; err != nil {
			return err
		}
		for i, pid := range playerIDs {
			row := models.GameDatePlayer{
				ID:         uuid.NewString(),
				GameDateID: gd.ID,
				PlayerID:   pid,
				SortOrder:  i,
				JoinedAt:   gd.ScheduledDate,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed game date: %v", err)
	}
	return gd
}
