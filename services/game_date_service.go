package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"poker-league/logger"
	"poker-league/metrics"
	"poker-league/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const archiveTimeout = 30 * time.Second

type CreateGameDateInput struct {
	TournamentID  string    `json:"tournament_id"`
	ScheduledDate time.Time `json:"scheduled_date"`
	PlayerIDs     []string  `json:"player_ids"`
	GuestIDs      []string  `json:"guest_ids"`
}

// GameDateService moves game dates through scheduled, in_progress and one of
// completed or cancelled. It also finishes the clock and the side effects when
// the ledger records a winner.
type GameDateService struct {
	DB             *gorm.DB
	Timers         *TimerService
	Players        PlayerRepository
	Archiver       ResultArchiver
	Clock          clockwork.Clock
	Metrics        *metrics.Manager
	AutoStartClock bool
	log            logger.Logger
}

func NewGameDateService(db *gorm.DB, timers *TimerService, players PlayerRepository, archiver ResultArchiver, clock clockwork.Clock, m *metrics.Manager, autoStartClock bool) *GameDateService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &GameDateService{
		DB:             db,
		Timers:         timers,
		Players:        players,
		Archiver:       archiver,
		Clock:          clock,
		Metrics:        m,
		AutoStartClock: autoStartClock,
		log:            logger.Named("game_date"),
	}
}

// Create schedules the next game date of a tournament with its initial roster.
func (s *GameDateService) Create(ctx context.Context, in CreateGameDateInput) (*models.GameDate, error) {
	seen := make(map[string]bool, len(in.PlayerIDs))
	for _, pid := range in.PlayerIDs {
		if seen[pid] {
			return nil, fmt.Errorf("%w: player %s listed twice", ErrInvalidState, pid)
		}
		seen[pid] = true
		ok, err := s.Players.Exists(ctx, pid)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: player %s", ErrNotFound, pid)
		}
	}

	var guests datatypes.JSON
	if len(in.GuestIDs) > 0 {
		raw, err := json.Marshal(in.GuestIDs)
		if err != nil {
			return nil, fmt.Errorf("encode guests: %w", err)
		}
		guests = datatypes.JSON(raw)
	}

	now := s.Clock.Now()
	scheduled := in.ScheduledDate
	if scheduled.IsZero() {
		scheduled = now
	}
	gd := &models.GameDate{
		ID:            uuid.NewString(),
		TournamentID:  in.TournamentID,
		Status:        models.GameDateStatusScheduled,
		ScheduledDate: scheduled,
		GuestIDs:      guests,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tournament models.Tournament
		if err := tx.Where("id = ?", in.TournamentID).First(&tournament).Error; err != nil {
			return notFound(err, "tournament", in.TournamentID)
		}
		var last int
		if err := tx.Model(&models.GameDate{}).
			Where("tournament_id = ?", in.TournamentID).
			Select("COALESCE(MAX(sequence_number), 0)").
			Scan(&last).Error; err != nil {
			return fmt.Errorf("next sequence number: %w", err)
		}
		gd.SequenceNumber = last + 1

		if err := tx.Create(gd).Error; err != nil {
			return fmt.Errorf("create game date: %w", err)
		}
		for i, pid := range in.PlayerIDs {
			row := models.GameDatePlayer{
				ID:         uuid.NewString(),
				GameDateID: gd.ID,
				PlayerID:   pid,
				SortOrder:  i,
				JoinedAt:   now,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("add roster row: %w", err)
			}
			gd.Players = append(gd.Players, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "game date scheduled",
		logger.String("game_date_id", gd.ID),
		logger.String("tournament_id", gd.TournamentID),
		logger.Int("sequence", gd.SequenceNumber),
		logger.Int("players", len(gd.Players)),
	)
	return gd, nil
}

// Get returns a game date with its roster in join order.
func (s *GameDateService) Get(ctx context.Context, id string) (*models.GameDate, error) {
	var gd models.GameDate
	if err := s.DB.WithContext(ctx).
		Preload("Players", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		Where("id = ?", id).
		First(&gd).Error; err != nil {
		return nil, notFound(err, "game date", id)
	}
	return &gd, nil
}

// Start opens play on a scheduled game date and creates its clock, running it
// right away when AutoStartClock is set.
func (s *GameDateService) Start(ctx context.Context, id, actor string) (*models.GameDate, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		gd, err := lockGameDate(tx, id)
		if err != nil {
			return err
		}
		if err := requireStatus(gd, models.GameDateStatusScheduled); err != nil {
			return err
		}
		levels, err := loadLevels(tx, gd.TournamentID)
		if err != nil {
			return err
		}
		if len(levels) == 0 {
			return fmt.Errorf("%w: tournament %s has no blind levels", ErrInvalidLevel, gd.TournamentID)
		}

		now := s.Clock.Now()
		gd.Status = models.GameDateStatusInProgress
		gd.StartedAt = &now
		if err := tx.Model(&models.GameDate{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{"status": gd.Status, "started_at": now}).Error; err != nil {
			return fmt.Errorf("start game date: %w", err)
		}

		timer := &models.TimerState{
			ID:         uuid.NewString(),
			GameDateID: id,
			Status:     models.TimerStatusIdle,
		}
		if err := tx.Create(timer).Error; err != nil {
			return fmt.Errorf("create timer: %w", err)
		}
		if !s.AutoStartClock {
			return nil
		}
		return s.Timers.startInTx(tx, &timerScope{gameDate: gd, timer: timer, levels: levels}, actor, now)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "game date started",
		logger.String("game_date_id", id),
		logger.String("actor", actor),
		logger.Bool("clock_running", s.AutoStartClock),
	)
	return s.Get(ctx, id)
}

// Cancel abandons a game date that has not finished. Its clock, if any, stops.
func (s *GameDateService) Cancel(ctx context.Context, id, actor string) (*models.GameDate, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		gd, err := lockGameDate(tx, id)
		if err != nil {
			return err
		}
		if err := requireStatus(gd, models.GameDateStatusScheduled, models.GameDateStatusInProgress); err != nil {
			return err
		}
		now := s.Clock.Now()
		if err := tx.Model(&models.GameDate{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{"status": models.GameDateStatusCancelled, "ended_at": now}).Error; err != nil {
			return fmt.Errorf("cancel game date: %w", err)
		}
		return s.Timers.completeInTx(tx, id, actor, models.TimerActionCancel, now)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "game date cancelled",
		logger.String("game_date_id", id),
		logger.String("actor", actor),
	)
	return s.Get(ctx, id)
}

// CompleteInTx stops the clock in the transaction that records the winner.
func (s *GameDateService) CompleteInTx(_ context.Context, tx *gorm.DB, gd *models.GameDate, now time.Time) error {
	return s.Timers.completeInTx(tx, gd.ID, models.SystemActor, models.TimerActionComplete, now)
}

// AfterCompletion credits the winner and archives the result sheet. Neither
// can fail the completion that already committed.
func (s *GameDateService) AfterCompletion(ctx context.Context, gd *models.GameDate, winner *models.Elimination) {
	at := s.Clock.Now()
	if gd.EndedAt != nil {
		at = *gd.EndedAt
	}
	if err := s.Players.RecordVictory(ctx, winner.EliminatedPlayerID, gd.ID, at); err != nil {
		s.log.Error(ctx, "record victory failed",
			logger.String("game_date_id", gd.ID),
			logger.String("player_id", winner.EliminatedPlayerID),
			logger.Error(err),
		)
	}

	if s.Archiver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	if err := s.archive(ctx, gd); err != nil {
		s.Metrics.RecordArchiveFailure()
		s.log.Warn(ctx, "result archive failed",
			logger.String("game_date_id", gd.ID),
			logger.Error(err),
		)
	}
}

func (s *GameDateService) archive(ctx context.Context, gd *models.GameDate) error {
	var tournament models.Tournament
	if err := s.DB.WithContext(ctx).Where("id = ?", gd.TournamentID).First(&tournament).Error; err != nil {
		return notFound(err, "tournament", gd.TournamentID)
	}
	sheet, err := buildResultSheet(ctx, s.DB, gd, &tournament)
	if err != nil {
		return err
	}
	url, err := s.Archiver.Archive(ctx, sheet)
	if err != nil {
		return err
	}
	s.log.Info(ctx, "result sheet archived",
		logger.String("game_date_id", gd.ID),
		logger.String("url", url),
	)
	return nil
}
