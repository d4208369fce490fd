package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"poker-league/blindtimer"
	"poker-league/logger"
	"poker-league/metrics"
	"poker-league/models"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

const notifyTimeout = 10 * time.Second

// BlindView is one blind level as shown to players.
type BlindView struct {
	Level           int   `json:"level"`
	SmallBlind      int64 `json:"small_blind"`
	BigBlind        int64 `json:"big_blind"`
	Ante            int64 `json:"ante"`
	DurationMinutes int   `json:"duration_minutes"`
}

func blindView(l models.BlindLevel) *BlindView {
	return &BlindView{
		Level:           l.Level,
		SmallBlind:      l.SmallBlind,
		BigBlind:        l.BigBlind,
		Ante:            l.Ante,
		DurationMinutes: l.DurationMinutes,
	}
}

// TimerView is the live clock of a game date, derived at Timestamp.
type TimerView struct {
	GameDateID    string     `json:"game_date_id"`
	Status        string     `json:"status"`
	CurrentLevel  int        `json:"current_level"`
	Current       *BlindView `json:"current,omitempty"`
	Next          *BlindView `json:"next,omitempty"`
	TimeRemaining int        `json:"time_remaining"`
	TotalElapsed  int        `json:"total_elapsed"`
	Timestamp     time.Time  `json:"timestamp"`
}

// Expired reports whether the current level has run out and the clock could
// move on by itself.
func (v TimerView) Expired() bool {
	return v.Status == models.TimerStatusActive &&
		v.TimeRemaining == 0 &&
		v.Current != nil && v.Current.DurationMinutes > 0 &&
		v.Next != nil
}

// TimerService is the only writer of TimerState rows.
type TimerService struct {
	DB       *gorm.DB
	Clock    clockwork.Clock
	Notifier Notifier
	Metrics  *metrics.Manager
	log      logger.Logger
	pending  sync.WaitGroup
}

func NewTimerService(db *gorm.DB, clock clockwork.Clock, notifier Notifier, m *metrics.Manager) *TimerService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &TimerService{
		DB:       db,
		Clock:    clock,
		Notifier: notifier,
		Metrics:  m,
		log:      logger.Named("timer"),
	}
}

// Wait blocks until queued notifications have been delivered or given up on.
func (s *TimerService) Wait() {
	s.pending.Wait()
}

// timerScope is what a timer mutation reads, with the game date and timer rows locked.
type timerScope struct {
	gameDate *models.GameDate
	timer    *models.TimerState
	levels   []models.BlindLevel
}

func (s *TimerService) lockScope(tx *gorm.DB, gameDateID string) (*timerScope, error) {
	gd, err := lockGameDate(tx, gameDateID)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(gd, models.GameDateStatusInProgress); err != nil {
		return nil, err
	}
	timer, err := loadTimer(tx, gameDateID, true)
	if err != nil {
		return nil, err
	}
	levels, err := loadLevels(tx, gd.TournamentID)
	if err != nil {
		return nil, err
	}
	return &timerScope{gameDate: gd, timer: timer, levels: levels}, nil
}

func requireTimerStatus(t *models.TimerState, allowed ...string) error {
	for _, s := range allowed {
		if t.Status == s {
			return nil
		}
	}
	return fmt.Errorf("%w: timer for game date %s is %s", ErrInvalidState, t.GameDateID, t.Status)
}

// save persists the new checkpoint and its audit entry.
func (s *TimerService) save(tx *gorm.DB, next models.TimerState, action *models.TimerAction) error {
	if err := tx.Save(&next).Error; err != nil {
		return fmt.Errorf("save timer: %w", err)
	}
	if err := tx.Create(action).Error; err != nil {
		return fmt.Errorf("record timer action: %w", err)
	}
	return nil
}

// StartClock puts an idle clock on the first blind level.
func (s *TimerService) StartClock(ctx context.Context, gameDateID, actor string) (*TimerView, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sc, err := s.lockScope(tx, gameDateID)
		if err != nil {
			return err
		}
		return s.startInTx(tx, sc, actor, s.Clock.Now())
	})
	if err != nil {
		return nil, err
	}
	s.recorded(ctx, gameDateID, models.TimerActionStart, actor)
	return s.View(ctx, gameDateID)
}

func (s *TimerService) startInTx(tx *gorm.DB, sc *timerScope, actor string, now time.Time) error {
	if err := requireTimerStatus(sc.timer, models.TimerStatusIdle); err != nil {
		return err
	}
	first, ok := blindtimer.LevelAt(sc.levels, 0)
	if !ok {
		return fmt.Errorf("%w: tournament %s has no blind levels", ErrInvalidLevel, sc.gameDate.TournamentID)
	}
	next := blindtimer.DeriveStartUpdate(*sc.timer, first.DurationSeconds(), now)
	action, err := newTimerAction(sc.gameDate.ID, models.TimerActionStart, actor, nil, intPtr(0), nil, now)
	if err != nil {
		return err
	}
	return s.save(tx, next, action)
}

// Pause freezes an active clock.
func (s *TimerService) Pause(ctx context.Context, gameDateID, actor string) (*TimerView, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sc, err := s.lockScope(tx, gameDateID)
		if err != nil {
			return err
		}
		if err := requireTimerStatus(sc.timer, models.TimerStatusActive); err != nil {
			return err
		}
		now := s.Clock.Now()
		next := blindtimer.DerivePauseUpdate(*sc.timer, now)
		action, err := newTimerAction(gameDateID, models.TimerActionPause, actor, nil, nil,
			map[string]interface{}{"time_remaining": next.TimeRemaining}, now)
		if err != nil {
			return err
		}
		return s.save(tx, next, action)
	})
	if err != nil {
		return nil, err
	}
	s.recorded(ctx, gameDateID, models.TimerActionPause, actor)
	return s.View(ctx, gameDateID)
}

// Resume restarts a paused clock with the time it had left.
func (s *TimerService) Resume(ctx context.Context, gameDateID, actor string) (*TimerView, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sc, err := s.lockScope(tx, gameDateID)
		if err != nil {
			return err
		}
		if err := requireTimerStatus(sc.timer, models.TimerStatusPaused); err != nil {
			return err
		}
		now := s.Clock.Now()
		next := blindtimer.DeriveResumeUpdate(*sc.timer, now)
		var meta map[string]interface{}
		if sc.timer.PausedAt != nil {
			meta = map[string]interface{}{"paused_seconds": int(now.Sub(*sc.timer.PausedAt) / time.Second)}
		}
		action, err := newTimerAction(gameDateID, models.TimerActionResume, actor, nil, nil, meta, now)
		if err != nil {
			return err
		}
		return s.save(tx, next, action)
	})
	if err != nil {
		return nil, err
	}
	s.recorded(ctx, gameDateID, models.TimerActionResume, actor)
	return s.View(ctx, gameDateID)
}

// AdvanceLevel moves the clock to target, or to the next level when target is
// nil. Only forward moves onto a configured level are allowed. A paused clock
// stays paused on the new level.
func (s *TimerService) AdvanceLevel(ctx context.Context, gameDateID string, target *int, actor string) (*TimerView, error) {
	var reached models.BlindLevel
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sc, err := s.lockScope(tx, gameDateID)
		if err != nil {
			return err
		}
		if err := requireTimerStatus(sc.timer, models.TimerStatusActive, models.TimerStatusPaused); err != nil {
			return err
		}

		from := sc.timer.CurrentLevel
		to := from + 1
		if target != nil {
			to = *target
		}
		level, ok := blindtimer.LevelAt(sc.levels, to)
		if !ok || to <= from {
			return fmt.Errorf("%w: cannot move from level %d to %d", ErrInvalidLevel, from, to)
		}

		now := s.Clock.Now()
		next := blindtimer.DeriveLevelChangeUpdate(*sc.timer, to, level.DurationSeconds(), now)
		action, err := newTimerAction(gameDateID, models.TimerActionAdvance, actor, intPtr(from), intPtr(to), nil, now)
		if err != nil {
			return err
		}
		reached = level
		return s.save(tx, next, action)
	})
	if err != nil {
		return nil, err
	}
	s.recorded(ctx, gameDateID, models.TimerActionAdvance, actor)
	s.notify(gameDateID, reached, "manual")
	return s.View(ctx, gameDateID)
}

// AutoAdvance moves an expired clock from fromLevel to the level after it.
// Every precondition is checked again under the row locks, so any number of
// concurrent callers observing the same expiry produce exactly one advance;
// the others get false with a nil error.
func (s *TimerService) AutoAdvance(ctx context.Context, gameDateID string, fromLevel int) (bool, error) {
	var reached models.BlindLevel
	advanced := false

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		gd, err := lockGameDate(tx, gameDateID)
		if err != nil {
			return err
		}
		if gd.Status != models.GameDateStatusInProgress {
			return nil
		}
		timer, err := loadTimer(tx, gameDateID, true)
		if err != nil {
			return err
		}
		if timer.Status != models.TimerStatusActive || timer.CurrentLevel != fromLevel {
			return nil
		}
		levels, err := loadLevels(tx, gd.TournamentID)
		if err != nil {
			return err
		}
		current, ok := blindtimer.LevelAt(levels, fromLevel)
		if !ok || current.DurationMinutes <= 0 {
			return nil
		}
		level, ok := blindtimer.NextLevel(levels, fromLevel)
		if !ok {
			return nil
		}
		now := s.Clock.Now()
		if blindtimer.Compute(*timer, now).TimeRemaining > 0 {
			return nil
		}

		next := blindtimer.DeriveLevelChangeUpdate(*timer, fromLevel+1, level.DurationSeconds(), now)
		next.Status = models.TimerStatusActive
		action, err := newTimerAction(gameDateID, models.TimerActionAutoAdvance, models.SystemActor,
			intPtr(fromLevel), intPtr(fromLevel+1), map[string]interface{}{"trigger": "expiry"}, now)
		if err != nil {
			return err
		}
		if err := s.save(tx, next, action); err != nil {
			return err
		}
		reached = level
		advanced = true
		return nil
	})
	if err != nil {
		s.Metrics.RecordAutoAdvance("error")
		return false, err
	}
	if !advanced {
		s.Metrics.RecordAutoAdvance("skipped")
		return false, nil
	}

	s.Metrics.RecordAutoAdvance("advanced")
	s.log.Info(ctx, "blind level advanced",
		logger.String("game_date_id", gameDateID),
		logger.Int("from_level", fromLevel),
		logger.Int("to_level", fromLevel+1),
	)
	s.notify(gameDateID, reached, "expiry")
	return true, nil
}

// completeInTx stops the clock of a game date that is ending. A game date that
// never started has no timer, which is fine.
func (s *TimerService) completeInTx(tx *gorm.DB, gameDateID, actor, action string, now time.Time) error {
	timer, err := loadTimer(tx, gameDateID, true)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if timer.Status == models.TimerStatusCompleted {
		return nil
	}
	next := blindtimer.DeriveCompleteUpdate(*timer, now)
	row, err := newTimerAction(gameDateID, action, actor, intPtr(timer.CurrentLevel), nil, nil, now)
	if err != nil {
		return err
	}
	return s.save(tx, next, row)
}

// View derives the clock as it stands now. It never writes.
func (s *TimerService) View(ctx context.Context, gameDateID string) (*TimerView, error) {
	db := s.DB.WithContext(ctx)
	var gd models.GameDate
	if err := db.Where("id = ?", gameDateID).First(&gd).Error; err != nil {
		return nil, notFound(err, "game date", gameDateID)
	}
	timer, err := loadTimer(db, gameDateID, false)
	if err != nil {
		return nil, err
	}
	levels, err := loadLevels(db, gd.TournamentID)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	live := blindtimer.Compute(*timer, now)
	view := &TimerView{
		GameDateID:    gameDateID,
		Status:        live.Status,
		CurrentLevel:  live.CurrentLevel,
		TimeRemaining: live.TimeRemaining,
		TotalElapsed:  live.TotalElapsed,
		Timestamp:     now,
	}
	if l, ok := blindtimer.LevelAt(levels, live.CurrentLevel); ok {
		view.Current = blindView(l)
	}
	if l, ok := blindtimer.NextLevel(levels, live.CurrentLevel); ok {
		view.Next = blindView(l)
	}
	return view, nil
}

// SweepExpired runs the auto-advance guard for every running clock whose level
// has expired, so levels move on while nobody is watching.
func (s *TimerService) SweepExpired(ctx context.Context) (int, error) {
	var timers []models.TimerState
	if err := s.DB.WithContext(ctx).
		Joins("JOIN game_dates ON game_dates.id = timer_states.game_date_id").
		Where("game_dates.status = ? AND timer_states.status = ?", models.GameDateStatusInProgress, models.TimerStatusActive).
		Find(&timers).Error; err != nil {
		return 0, fmt.Errorf("load running timers: %w", err)
	}

	now := s.Clock.Now()
	advanced := 0
	for _, t := range timers {
		if blindtimer.Compute(t, now).TimeRemaining > 0 {
			continue
		}
		ok, err := s.AutoAdvance(ctx, t.GameDateID, t.CurrentLevel)
		if err != nil {
			s.log.Warn(ctx, "sweep auto-advance failed",
				logger.String("game_date_id", t.GameDateID),
				logger.Error(err),
			)
			continue
		}
		if ok {
			advanced++
		}
	}
	return advanced, nil
}

func (s *TimerService) recorded(ctx context.Context, gameDateID, action, actor string) {
	s.Metrics.RecordTimerAction(action)
	s.log.Info(ctx, "timer "+action,
		logger.String("game_date_id", gameDateID),
		logger.String("actor", actor),
	)
}

// notify delivers a blind change in the background. Delivery failures never
// undo the level change.
func (s *TimerService) notify(gameDateID string, level models.BlindLevel, trigger string) {
	change := BlindChange{
		GameDateID:      gameDateID,
		Level:           level.Level,
		SmallBlind:      level.SmallBlind,
		BigBlind:        level.BigBlind,
		Ante:            level.Ante,
		DurationMinutes: level.DurationMinutes,
		Trigger:         trigger,
		At:              s.Clock.Now(),
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.Notifier.NotifyBlindChange(ctx, change); err != nil {
			s.Metrics.RecordNotificationFailure()
			s.log.Warn(ctx, "blind change notification failed",
				logger.String("game_date_id", gameDateID),
				logger.Int("level", level.Level),
				logger.Error(err),
			)
		}
	}()
}
