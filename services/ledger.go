package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"poker-league/logger"
	"poker-league/metrics"
	"poker-league/models"
	"poker-league/scoring"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// CompletionObserver is told when a game date's winner is registered.
type CompletionObserver interface {
	// CompleteInTx runs inside the transaction that records the winner.
	CompleteInTx(ctx context.Context, tx *gorm.DB, gameDate *models.GameDate, now time.Time) error
	// AfterCompletion runs once that transaction has committed.
	AfterCompletion(ctx context.Context, gameDate *models.GameDate, winner *models.Elimination)
}

// WinnerResult reports what RegisterWinner did.
type WinnerResult struct {
	Completed bool                `json:"completed"`
	Missing   int                 `json:"missing"` // eliminations still needed before a winner can be recorded
	Winner    *models.Elimination `json:"winner,omitempty"`
}

// EliminationLedger owns the finishing records of game dates. Positions for a
// date with field size n and k eliminations always form the block n-k+1..n.
type EliminationLedger struct {
	DB       *gorm.DB
	Players  PlayerRepository
	Observer CompletionObserver
	Clock    clockwork.Clock
	Metrics  *metrics.Manager
	log      logger.Logger
}

func NewEliminationLedger(db *gorm.DB, players PlayerRepository, observer CompletionObserver, clock clockwork.Clock, m *metrics.Manager) *EliminationLedger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &EliminationLedger{
		DB:       db,
		Players:  players,
		Observer: observer,
		Clock:    clock,
		Metrics:  m,
		log:      logger.Named("ledger"),
	}
}

// ledgerScope is everything a ledger mutation reads, loaded under the game date lock.
type ledgerScope struct {
	gameDate *models.GameDate
	roster   []models.GameDatePlayer
	elims    []models.Elimination
	policy   scoring.Policy
}

func (sc *ledgerScope) fieldSize() int { return len(sc.roster) }

func (sc *ledgerScope) onRoster(playerID string) bool {
	for _, r := range sc.roster {
		if r.PlayerID == playerID {
			return true
		}
	}
	return false
}

func (sc *ledgerScope) eliminationOf(playerID string) (int, bool) {
	for i, e := range sc.elims {
		if e.EliminatedPlayerID == playerID {
			return i, true
		}
	}
	return -1, false
}

// activePlayers are roster members without a finishing record.
func (sc *ledgerScope) activePlayers() []string {
	var out []string
	for _, r := range sc.roster {
		if _, busted := sc.eliminationOf(r.PlayerID); !busted {
			out = append(out, r.PlayerID)
		}
	}
	return out
}

func (l *EliminationLedger) loadScope(tx *gorm.DB, gameDateID string) (*ledgerScope, error) {
	gd, err := lockGameDate(tx, gameDateID)
	if err != nil {
		return nil, err
	}
	sc := &ledgerScope{gameDate: gd}

	if err := tx.Where("game_date_id = ?", gameDateID).
		Order("sort_order ASC").
		Find(&sc.roster).Error; err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	if err := tx.Where("game_date_id = ?", gameDateID).
		Order("position DESC").
		Find(&sc.elims).Error; err != nil {
		return nil, fmt.Errorf("load eliminations: %w", err)
	}

	var tournament models.Tournament
	if err := tx.Where("id = ?", gd.TournamentID).First(&tournament).Error; err != nil {
		return nil, notFound(err, "tournament", gd.TournamentID)
	}
	policy, err := scoring.ForTournament(&tournament)
	if err != nil {
		return nil, fmt.Errorf("scoring policy for tournament %s: %w", tournament.ID, err)
	}
	sc.policy = policy
	return sc, nil
}

// recalculate re-derives every position and points value from scratch: the
// worst finisher gets the field size, the next n-1, and so on. Relative order
// is kept; only rows whose values change are written.
func (l *EliminationLedger) recalculate(tx *gorm.DB, sc *ledgerScope) (int, error) {
	n := sc.fieldSize()
	if len(sc.elims) > n {
		return 0, fmt.Errorf("%w: %d eliminations for a field of %d", ErrInvalidState, len(sc.elims), n)
	}

	order := make([]int, len(sc.elims))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ea, eb := sc.elims[order[a]], sc.elims[order[b]]
		if ea.Position != eb.Position {
			return ea.Position > eb.Position
		}
		if !ea.EliminatedAt.Equal(eb.EliminatedAt) {
			return ea.EliminatedAt.Before(eb.EliminatedAt)
		}
		return ea.ID < eb.ID
	})

	changed := 0
	for rank, idx := range order {
		e := &sc.elims[idx]
		position := n - rank
		points := sc.policy.Points(position, n)
		if e.Position == position && e.Points == points {
			continue
		}
		if err := tx.Model(&models.Elimination{}).
			Where("id = ?", e.ID).
			Updates(map[string]interface{}{"position": position, "points": points}).Error; err != nil {
			return 0, fmt.Errorf("update elimination %s: %w", e.ID, err)
		}
		e.Position, e.Points = position, points
		changed++
	}
	if changed > 0 {
		l.Metrics.RecordRecalculation()
	}
	return changed, nil
}

// heal re-derives the numbering when the stored rows drifted from it.
func (l *EliminationLedger) heal(ctx context.Context, tx *gorm.DB, sc *ledgerScope) error {
	changed, err := l.recalculate(tx, sc)
	if err != nil {
		return err
	}
	if changed > 0 {
		l.log.Warn(ctx, "ledger drift repaired",
			logger.String("game_date_id", sc.gameDate.ID),
			logger.Int("rows", changed),
		)
	}
	return nil
}

// RegisterElimination records that eliminatedID busted out, knocked out by eliminatorID.
// The record gets position fieldSize-k where k is the number already recorded.
func (l *EliminationLedger) RegisterElimination(ctx context.Context, gameDateID, eliminatedID, eliminatorID string) (*models.Elimination, error) {
	var created *models.Elimination

	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sc, err := l.loadScope(tx, gameDateID)
		if err != nil {
			return err
		}
		if err := requireStatus(sc.gameDate, models.GameDateStatusInProgress); err != nil {
			return err
		}
		if !sc.onRoster(eliminatedID) {
			return fmt.Errorf("%w: %s is not playing game date %s", ErrRosterMismatch, eliminatedID, gameDateID)
		}
		if eliminatorID == "" || eliminatorID == eliminatedID || !sc.onRoster(eliminatorID) {
			return fmt.Errorf("%w: invalid eliminator %q for game date %s", ErrRosterMismatch, eliminatorID, gameDateID)
		}
		if _, out := sc.eliminationOf(eliminatorID); out {
			return fmt.Errorf("%w: eliminator %s is already out of game date %s", ErrRosterMismatch, eliminatorID, gameDateID)
		}
		if _, ok := sc.eliminationOf(eliminatedID); ok {
			return fmt.Errorf("%w: %s already has a finishing record", ErrDuplicateElimination, eliminatedID)
		}
		if err := l.heal(ctx, tx, sc); err != nil {
			return err
		}

		n, k := sc.fieldSize(), len(sc.elims)
		if k >= n-1 {
			return fmt.Errorf("%w: only one player left in game date %s, register the winner", ErrInvalidState, gameDateID)
		}

		position := n - k
		eliminator := eliminatorID
		e := &models.Elimination{
			ID:                 uuid.NewString(),
			GameDateID:         gameDateID,
			EliminatedPlayerID: eliminatedID,
			EliminatorPlayerID: &eliminator,
			Position:           position,
			Points:             sc.policy.Points(position, n),
			EliminatedAt:       l.Clock.Now(),
		}
		if err := tx.Create(e).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %s already has a finishing record", ErrDuplicateElimination, eliminatedID)
			}
			return fmt.Errorf("create elimination: %w", err)
		}
		created = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.Metrics.RecordElimination()
	l.log.Info(ctx, "elimination registered",
		logger.String("game_date_id", gameDateID),
		logger.String("player_id", eliminatedID),
		logger.Int("position", created.Position),
		logger.Int("points", created.Points),
	)
	return created, nil
}

// RegisterWinner records position 1 for the last player standing and completes
// the game date. It is a no-op reporting the missing count while more than one
// player is still in, and returns the existing winner once completed.
func (l *EliminationLedger) RegisterWinner(ctx context.Context, gameDateID string) (*WinnerResult, error) {
	result := &WinnerResult{}
	var completed *models.GameDate

	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sc, err := l.loadScope(tx, gameDateID)
		if err != nil {
			return err
		}

		if sc.gameDate.Status == models.GameDateStatusCompleted {
			for i := range sc.elims {
				if sc.elims[i].Position == 1 {
					result.Completed = true
					result.Winner = &sc.elims[i]
					return nil
				}
			}
			return fmt.Errorf("%w: completed game date %s has no winner", ErrInvalidState, gameDateID)
		}
		if err := requireStatus(sc.gameDate, models.GameDateStatusInProgress); err != nil {
			return err
		}

		n := sc.fieldSize()
		if n == 0 {
			return fmt.Errorf("%w: game date %s has no players", ErrInvalidState, gameDateID)
		}
		if err := l.heal(ctx, tx, sc); err != nil {
			return err
		}
		if k := len(sc.elims); k < n-1 {
			result.Missing = n - 1 - k
			return nil
		}

		remaining := sc.activePlayers()
		if len(remaining) != 1 {
			return fmt.Errorf("%w: expected one player left in game date %s, found %d", ErrInvalidState, gameDateID, len(remaining))
		}

		now := l.Clock.Now()
		winner := &models.Elimination{
			ID:                 uuid.NewString(),
			GameDateID:         gameDateID,
			EliminatedPlayerID: remaining[0],
			Position:           1,
			Points:             sc.policy.Points(1, n),
			EliminatedAt:       now,
		}
		if err := tx.Create(winner).Error; err != nil {
			return fmt.Errorf("create winner: %w", err)
		}

		sc.gameDate.Status = models.GameDateStatusCompleted
		sc.gameDate.EndedAt = &now
		if err := tx.Model(&models.GameDate{}).
			Where("id = ?", gameDateID).
			Updates(map[string]interface{}{"status": sc.gameDate.Status, "ended_at": now}).Error; err != nil {
			return fmt.Errorf("complete game date: %w", err)
		}
		if l.Observer != nil {
			if err := l.Observer.CompleteInTx(ctx, tx, sc.gameDate, now); err != nil {
				return err
			}
		}

		result.Completed = true
		result.Winner = winner
		completed = sc.gameDate
		return nil
	})
	if err != nil {
		return nil, err
	}

	if completed != nil {
		l.Metrics.RecordElimination()
		l.Metrics.RecordCompletion()
		l.log.Info(ctx, "game date completed",
			logger.String("game_date_id", gameDateID),
			logger.String("winner_id", result.Winner.EliminatedPlayerID),
		)
		if l.Observer != nil {
			l.Observer.AfterCompletion(ctx, completed, result.Winner)
		}
	}
	return result, nil
}

// RemoveElimination deletes a player's finishing record, putting them back
// among the active players, and renumbers the rest.
func (l *EliminationLedger) RemoveElimination(ctx context.Context, gameDateID, playerID string) error {
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sc, err := l.loadScope(tx, gameDateID)
		if err != nil {
			return err
		}
		if err := requireStatus(sc.gameDate, models.GameDateStatusInProgress); err != nil {
			return err
		}
		idx, ok := sc.eliminationOf(playerID)
		if !ok {
			return fmt.Errorf("%w: no elimination for %s in game date %s", ErrNotFound, playerID, gameDateID)
		}
		if err := tx.Delete(&models.Elimination{}, "id = ?", sc.elims[idx].ID).Error; err != nil {
			return fmt.Errorf("delete elimination: %w", err)
		}
		sc.elims = append(sc.elims[:idx], sc.elims[idx+1:]...)
		_, err = l.recalculate(tx, sc)
		return err
	})
	if err != nil {
		return err
	}

	l.log.Info(ctx, "elimination removed",
		logger.String("game_date_id", gameDateID),
		logger.String("player_id", playerID),
	)
	return nil
}

// AddPlayer puts a late arrival on the roster. Every existing record is
// renumbered against the larger field; the newcomer is simply still in.
func (l *EliminationLedger) AddPlayer(ctx context.Context, gameDateID, playerID string) error {
	exists, err := l.Players.Exists(ctx, playerID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: player %s", ErrNotFound, playerID)
	}

	err = l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sc, err := l.loadScope(tx, gameDateID)
		if err != nil {
			return err
		}
		if err := requireStatus(sc.gameDate, models.GameDateStatusInProgress); err != nil {
			return err
		}
		if sc.onRoster(playerID) {
			return fmt.Errorf("%w: %s is already playing game date %s", ErrInvalidState, playerID, gameDateID)
		}

		sortOrder := 0
		for _, r := range sc.roster {
			sortOrder = max(sortOrder, r.SortOrder+1)
		}
		row := models.GameDatePlayer{
			ID:         uuid.NewString(),
			GameDateID: gameDateID,
			PlayerID:   playerID,
			SortOrder:  sortOrder,
			JoinedAt:   l.Clock.Now(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("add roster row: %w", err)
		}
		sc.roster = append(sc.roster, row)

		_, err = l.recalculate(tx, sc)
		return err
	})
	if err != nil {
		return err
	}

	l.Metrics.RecordRosterChange("add")
	l.log.Info(ctx, "player added",
		logger.String("game_date_id", gameDateID),
		logger.String("player_id", playerID),
	)
	return nil
}

// RemovePlayer takes a player off the roster together with their finishing
// record, if any, and renumbers the remaining records into the smaller field.
func (l *EliminationLedger) RemovePlayer(ctx context.Context, gameDateID, playerID string) error {
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sc, err := l.loadScope(tx, gameDateID)
		if err != nil {
			return err
		}
		if err := requireStatus(sc.gameDate, models.GameDateStatusInProgress); err != nil {
			return err
		}
		if !sc.onRoster(playerID) {
			return fmt.Errorf("%w: %s is not playing game date %s", ErrRosterMismatch, playerID, gameDateID)
		}

		if idx, ok := sc.eliminationOf(playerID); ok {
			if err := tx.Delete(&models.Elimination{}, "id = ?", sc.elims[idx].ID).Error; err != nil {
				return fmt.Errorf("delete elimination: %w", err)
			}
			sc.elims = append(sc.elims[:idx], sc.elims[idx+1:]...)
		} else if len(sc.activePlayers()) == 1 && len(sc.elims) > 0 {
			return fmt.Errorf("%w: %s is the last player in game date %s", ErrInvalidState, playerID, gameDateID)
		}

		if err := tx.Delete(&models.GameDatePlayer{}, "game_date_id = ? AND player_id = ?", gameDateID, playerID).Error; err != nil {
			return fmt.Errorf("delete roster row: %w", err)
		}
		for i, r := range sc.roster {
			if r.PlayerID == playerID {
				sc.roster = append(sc.roster[:i], sc.roster[i+1:]...)
				break
			}
		}

		_, err = l.recalculate(tx, sc)
		return err
	})
	if err != nil {
		return err
	}

	l.Metrics.RecordRosterChange("remove")
	l.log.Info(ctx, "player removed",
		logger.String("game_date_id", gameDateID),
		logger.String("player_id", playerID),
	)
	return nil
}

// Recalculate re-derives every position and points value of a game date.
// Repair tooling must go through here instead of editing rows.
func (l *EliminationLedger) Recalculate(ctx context.Context, gameDateID string) (int, error) {
	var changed int
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sc, err := l.loadScope(tx, gameDateID)
		if err != nil {
			return err
		}
		changed, err = l.recalculate(tx, sc)
		return err
	})
	if err != nil {
		return 0, err
	}
	l.log.Info(ctx, "ledger recalculated",
		logger.String("game_date_id", gameDateID),
		logger.Int("rows", changed),
	)
	return changed, nil
}

// Standings lists a game date's finishing records, best first.
func (l *EliminationLedger) Standings(ctx context.Context, gameDateID string) ([]models.Elimination, error) {
	db := l.DB.WithContext(ctx)
	var gd models.GameDate
	if err := db.Select("id").Where("id = ?", gameDateID).First(&gd).Error; err != nil {
		return nil, notFound(err, "game date", gameDateID)
	}
	var out []models.Elimination
	if err := db.Where("game_date_id = ?", gameDateID).
		Order("position ASC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("load standings: %w", err)
	}
	return out, nil
}
