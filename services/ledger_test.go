package services_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"poker-league/models"
	"poker-league/scoring"
	"poker-league/services"
	"poker-league/testutil"

	"github.com/jonboulle/clockwork"
	"github.com/smartystreets/goconvey/convey"
	"gorm.io/gorm"
)

type recordingObserver struct {
	mu        sync.Mutex
	inTx      []string
	completed []string
	winners   []string
}

func (o *recordingObserver) CompleteInTx(_ context.Context, _ *gorm.DB, gd *models.GameDate, _ time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inTx = append(o.inTx, gd.ID)
	return nil
}

func (o *recordingObserver) AfterCompletion(_ context.Context, gd *models.GameDate, winner *models.Elimination) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = append(o.completed, gd.ID)
	o.winners = append(o.winners, winner.EliminatedPlayerID)
}

type ledgerFixture struct {
	db       *gorm.DB
	clock    *clockwork.FakeClock
	ledger   *services.EliminationLedger
	observer *recordingObserver
	gameDate *models.GameDate
	players  []string
}

func newLedgerFixture(t *testing.T, fieldSize int) *ledgerFixture {
	db := testutil.OpenDB(t)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC))
	tournament := testutil.SeedTournament(t, db, models.ScoringModeSqrt, testutil.Level{Small: 25, Big: 50, Minutes: 20})
	players := testutil.SeedPlayers(t, db, fieldSize)
	gd := testutil.SeedGameDate(t, db, tournament.ID, models.GameDateStatusInProgress, players)
	observer := &recordingObserver{}
	ledger := services.NewEliminationLedger(db, services.NewPlayerRepository(db), observer, clock, nil)
	return &ledgerFixture{db: db, clock: clock, ledger: ledger, observer: observer, gameDate: gd, players: players}
}

// eliminate knocks out the given players in order, one minute apart, all by the first player.
func (f *ledgerFixture) eliminate(t *testing.T, ids ...string) {
	for _, id := range ids {
		f.clock.Advance(time.Minute)
		if _, err := f.ledger.RegisterElimination(context.Background(), f.gameDate.ID, id, f.players[0]); err != nil {
			t.Fatalf("eliminate %s: %v", id, err)
		}
	}
}

func (f *ledgerFixture) positions(t *testing.T) map[string]int {
	rows, err := f.ledger.Standings(context.Background(), f.gameDate.ID)
	if err != nil {
		t.Fatalf("standings: %v", err)
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.EliminatedPlayerID] = r.Position
	}
	return out
}

// denseBlock reports whether the recorded positions are exactly n-k+1..n.
func denseBlock(rows []models.Elimination, fieldSize int) bool {
	got := make([]int, 0, len(rows))
	for _, r := range rows {
		got = append(got, r.Position)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(got)))
	for i, p := range got {
		if p != fieldSize-i {
			return false
		}
	}
	return true
}

func TestRegisterElimination(t *testing.T) {
	convey.Convey("Given a game date in progress with 9 players", t, func() {
		f := newLedgerFixture(t, 9)
		ctx := context.Background()

		convey.Convey("When the first player busts", func() {
			e, err := f.ledger.RegisterElimination(ctx, f.gameDate.ID, f.players[8], f.players[0])

			convey.Convey("Then they finish last with last-place points", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(e.Position, convey.ShouldEqual, 9)
				convey.So(e.Points, convey.ShouldEqual, 10)
				convey.So(*e.EliminatorPlayerID, convey.ShouldEqual, f.players[0])
				convey.So(e.EliminatedAt.Equal(f.clock.Now()), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When eight players bust in turn", func() {
			f.eliminate(t, f.players[8], f.players[7], f.players[6], f.players[5], f.players[4], f.players[3], f.players[2], f.players[1])
			rows, err := f.ledger.Standings(ctx, f.gameDate.ID)

			convey.Convey("Then positions run from 9 down to 2", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(rows, convey.ShouldHaveLength, 8)
				convey.So(rows[0].Position, convey.ShouldEqual, 2)
				convey.So(rows[0].EliminatedPlayerID, convey.ShouldEqual, f.players[1])
				convey.So(rows[0].Points, convey.ShouldEqual, scoring.Sqrt(10).Points(2, 9))
				convey.So(denseBlock(rows, 9), convey.ShouldBeTrue)
			})

			convey.Convey("Then the last player cannot be eliminated", func() {
				_, err := f.ledger.RegisterElimination(ctx, f.gameDate.ID, f.players[0], f.players[1])
				convey.So(errors.Is(err, services.ErrInvalidState), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a player busts twice", func() {
			f.eliminate(t, f.players[4])
			_, err := f.ledger.RegisterElimination(ctx, f.gameDate.ID, f.players[4], f.players[0])

			convey.Convey("Then the second record is rejected", func() {
				convey.So(errors.Is(err, services.ErrDuplicateElimination), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the eliminated player is not on the roster", func() {
			outsider := testutil.SeedPlayers(t, f.db, 1)[0]
			_, err := f.ledger.RegisterElimination(ctx, f.gameDate.ID, outsider, f.players[0])

			convey.Convey("Then it is a roster mismatch", func() {
				convey.So(errors.Is(err, services.ErrRosterMismatch), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a player is credited with their own elimination", func() {
			_, err := f.ledger.RegisterElimination(ctx, f.gameDate.ID, f.players[3], f.players[3])

			convey.Convey("Then it is a roster mismatch", func() {
				convey.So(errors.Is(err, services.ErrRosterMismatch), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the credited eliminator is already out", func() {
			f.eliminate(t, f.players[4])
			_, err := f.ledger.RegisterElimination(ctx, f.gameDate.ID, f.players[3], f.players[4])

			convey.Convey("Then it is a roster mismatch and nothing is recorded", func() {
				convey.So(errors.Is(err, services.ErrRosterMismatch), convey.ShouldBeTrue)
				got := f.positions(t)
				convey.So(got, convey.ShouldHaveLength, 1)
				convey.So(got[f.players[4]], convey.ShouldEqual, 9)
			})
		})

		convey.Convey("When the game date does not exist", func() {
			_, err := f.ledger.RegisterElimination(ctx, "missing", f.players[3], f.players[0])

			convey.Convey("Then it is not found", func() {
				convey.So(errors.Is(err, services.ErrNotFound), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the game date was cancelled", func() {
			convey.So(f.db.Model(&models.GameDate{}).Where("id = ?", f.gameDate.ID).
				Update("status", models.GameDateStatusCancelled).Error, convey.ShouldBeNil)
			_, err := f.ledger.RegisterElimination(ctx, f.gameDate.ID, f.players[3], f.players[0])

			convey.Convey("Then nothing is recorded", func() {
				convey.So(errors.Is(err, services.ErrInvalidState), convey.ShouldBeTrue)
				convey.So(f.positions(t), convey.ShouldBeEmpty)
			})
		})
	})
}

func TestConcurrentEliminations(t *testing.T) {
	convey.Convey("Given 8 players busting at the same moment from different devices", t, func() {
		f := newLedgerFixture(t, 9)
		ctx := context.Background()

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for _, id := range f.players[1:] {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := f.ledger.RegisterElimination(ctx, f.gameDate.ID, id, f.players[0])
				errs <- err
			}(id)
		}
		wg.Wait()
		close(errs)

		convey.Convey("Then every one is recorded at a distinct position", func() {
			for err := range errs {
				convey.So(err, convey.ShouldBeNil)
			}
			rows, err := f.ledger.Standings(ctx, f.gameDate.ID)
			convey.So(err, convey.ShouldBeNil)
			convey.So(rows, convey.ShouldHaveLength, 8)
			convey.So(denseBlock(rows, 9), convey.ShouldBeTrue)
		})
	})
}

func TestRegisterWinner(t *testing.T) {
	convey.Convey("Given a game date in progress with 9 players", t, func() {
		f := newLedgerFixture(t, 9)
		ctx := context.Background()

		convey.Convey("When only six players are out", func() {
			f.eliminate(t, f.players[8], f.players[7], f.players[6], f.players[5], f.players[4], f.players[3])
			res, err := f.ledger.RegisterWinner(ctx, f.gameDate.ID)

			convey.Convey("Then nothing changes and two eliminations are missing", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Completed, convey.ShouldBeFalse)
				convey.So(res.Missing, convey.ShouldEqual, 2)
				convey.So(res.Winner, convey.ShouldBeNil)
				convey.So(f.observer.completed, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When everyone but one player is out", func() {
			f.eliminate(t, f.players[8], f.players[7], f.players[6], f.players[5], f.players[4], f.players[3], f.players[2], f.players[1])
			f.clock.Advance(time.Minute)
			res, err := f.ledger.RegisterWinner(ctx, f.gameDate.ID)

			convey.Convey("Then the survivor wins and the game date completes", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Completed, convey.ShouldBeTrue)
				convey.So(res.Winner.EliminatedPlayerID, convey.ShouldEqual, f.players[0])
				convey.So(res.Winner.Position, convey.ShouldEqual, 1)
				convey.So(res.Winner.Points, convey.ShouldEqual, 30)
				convey.So(res.Winner.EliminatorPlayerID, convey.ShouldBeNil)

				var gd models.GameDate
				convey.So(f.db.First(&gd, "id = ?", f.gameDate.ID).Error, convey.ShouldBeNil)
				convey.So(gd.Status, convey.ShouldEqual, models.GameDateStatusCompleted)
				convey.So(gd.EndedAt, convey.ShouldNotBeNil)
			})

			convey.Convey("Then positions are exactly 1 through 9", func() {
				rows, err := f.ledger.Standings(ctx, f.gameDate.ID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(rows, convey.ShouldHaveLength, 9)
				for i, r := range rows {
					convey.So(r.Position, convey.ShouldEqual, i+1)
				}
			})

			convey.Convey("Then the observer hears about it once, inside and after the transaction", func() {
				convey.So(f.observer.inTx, convey.ShouldResemble, []string{f.gameDate.ID})
				convey.So(f.observer.winners, convey.ShouldResemble, []string{f.players[0]})
			})

			convey.Convey("Then asking again returns the same winner", func() {
				again, err := f.ledger.RegisterWinner(ctx, f.gameDate.ID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(again.Completed, convey.ShouldBeTrue)
				convey.So(again.Winner.ID, convey.ShouldEqual, res.Winner.ID)
				convey.So(f.observer.completed, convey.ShouldHaveLength, 1)
			})

			convey.Convey("Then the ledger is closed to further changes", func() {
				err := f.ledger.RemoveElimination(ctx, f.gameDate.ID, f.players[5])
				convey.So(errors.Is(err, services.ErrInvalidState), convey.ShouldBeTrue)
			})
		})
	})
}

func TestRosterChanges(t *testing.T) {
	convey.Convey("Given 10 players with three already out", t, func() {
		f := newLedgerFixture(t, 10)
		ctx := context.Background()
		f.eliminate(t, f.players[9], f.players[8], f.players[7])

		convey.Convey("When a late arrival joins", func() {
			late := testutil.SeedPlayers(t, f.db, 1)[0]
			err := f.ledger.AddPlayer(ctx, f.gameDate.ID, late)

			convey.Convey("Then the existing records shift to the larger field", func() {
				convey.So(err, convey.ShouldBeNil)
				rows, err := f.ledger.Standings(ctx, f.gameDate.ID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(denseBlock(rows, 11), convey.ShouldBeTrue)
				got := f.positions(t)
				convey.So(got[f.players[9]], convey.ShouldEqual, 11)
				convey.So(got[f.players[8]], convey.ShouldEqual, 10)
				convey.So(got[f.players[7]], convey.ShouldEqual, 9)
				for _, r := range rows {
					convey.So(r.Points, convey.ShouldEqual, scoring.Sqrt(10).Points(r.Position, 11))
				}
			})

			convey.Convey("Then the next bust lands right above them", func() {
				f.clock.Advance(time.Minute)
				e, err := f.ledger.RegisterElimination(ctx, f.gameDate.ID, late, f.players[0])
				convey.So(err, convey.ShouldBeNil)
				convey.So(e.Position, convey.ShouldEqual, 8)
			})

			convey.Convey("Then removing them again restores every record", func() {
				before, err := f.ledger.Standings(ctx, f.gameDate.ID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(f.ledger.RemovePlayer(ctx, f.gameDate.ID, late), convey.ShouldBeNil)
				after, err := f.ledger.Standings(ctx, f.gameDate.ID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(after, convey.ShouldHaveLength, len(before))
				for i := range after {
					convey.So(after[i].EliminatedPlayerID, convey.ShouldEqual, before[i].EliminatedPlayerID)
					convey.So(after[i].Position, convey.ShouldEqual, before[i].Position-1)
					convey.So(after[i].Points, convey.ShouldEqual, scoring.Sqrt(10).Points(after[i].Position, 10))
				}
				convey.So(f.positions(t)[f.players[9]], convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When a player already on the roster is added", func() {
			err := f.ledger.AddPlayer(ctx, f.gameDate.ID, f.players[2])
			convey.So(errors.Is(err, services.ErrInvalidState), convey.ShouldBeTrue)
		})

		convey.Convey("When an unknown player is added", func() {
			err := f.ledger.AddPlayer(ctx, f.gameDate.ID, "nobody")
			convey.So(errors.Is(err, services.ErrNotFound), convey.ShouldBeTrue)
		})

		convey.Convey("When a player who is out leaves the roster", func() {
			err := f.ledger.RemovePlayer(ctx, f.gameDate.ID, f.players[8])

			convey.Convey("Then their record goes and the rest close the gap", func() {
				convey.So(err, convey.ShouldBeNil)
				got := f.positions(t)
				convey.So(got, convey.ShouldHaveLength, 2)
				convey.So(got[f.players[9]], convey.ShouldEqual, 9)
				convey.So(got[f.players[7]], convey.ShouldEqual, 8)
			})
		})

		convey.Convey("When a player still in leaves the roster", func() {
			err := f.ledger.RemovePlayer(ctx, f.gameDate.ID, f.players[3])

			convey.Convey("Then every record moves into the smaller field", func() {
				convey.So(err, convey.ShouldBeNil)
				rows, err := f.ledger.Standings(ctx, f.gameDate.ID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(rows, convey.ShouldHaveLength, 3)
				convey.So(denseBlock(rows, 9), convey.ShouldBeTrue)
				got := f.positions(t)
				convey.So(got[f.players[9]], convey.ShouldEqual, 9)
				convey.So(got[f.players[8]], convey.ShouldEqual, 8)
				convey.So(got[f.players[7]], convey.ShouldEqual, 7)
				for _, r := range rows {
					convey.So(r.Points, convey.ShouldEqual, scoring.Sqrt(10).Points(r.Position, 9))
				}
			})
		})

		convey.Convey("When the last player still in is removed", func() {
			f.eliminate(t, f.players[6], f.players[5], f.players[4], f.players[3], f.players[2], f.players[1])
			before, err := f.ledger.Standings(ctx, f.gameDate.ID)
			convey.So(err, convey.ShouldBeNil)
			err = f.ledger.RemovePlayer(ctx, f.gameDate.ID, f.players[0])

			convey.Convey("Then it is rejected and the ledger is untouched", func() {
				convey.So(errors.Is(err, services.ErrInvalidState), convey.ShouldBeTrue)
				after, err := f.ledger.Standings(ctx, f.gameDate.ID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(after, convey.ShouldHaveLength, 9)
				convey.So(denseBlock(after, 10), convey.ShouldBeTrue)
				for i := range after {
					convey.So(after[i].EliminatedPlayerID, convey.ShouldEqual, before[i].EliminatedPlayerID)
					convey.So(after[i].Position, convey.ShouldEqual, before[i].Position)
					convey.So(after[i].Points, convey.ShouldEqual, before[i].Points)
				}
			})

			convey.Convey("Then the survivor can still be declared the winner", func() {
				res, err := f.ledger.RegisterWinner(ctx, f.gameDate.ID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(res.Completed, convey.ShouldBeTrue)
				convey.So(res.Winner.EliminatedPlayerID, convey.ShouldEqual, f.players[0])
			})
		})

		convey.Convey("When a stranger is removed", func() {
			err := f.ledger.RemovePlayer(ctx, f.gameDate.ID, "nobody")
			convey.So(errors.Is(err, services.ErrRosterMismatch), convey.ShouldBeTrue)
		})
	})
}

func TestRemoveElimination(t *testing.T) {
	convey.Convey("Given 9 players with three out", t, func() {
		f := newLedgerFixture(t, 9)
		ctx := context.Background()
		f.eliminate(t, f.players[8], f.players[7], f.players[6])

		convey.Convey("When the middle record is undone", func() {
			err := f.ledger.RemoveElimination(ctx, f.gameDate.ID, f.players[7])

			convey.Convey("Then the later bust moves down and order is kept", func() {
				convey.So(err, convey.ShouldBeNil)
				got := f.positions(t)
				convey.So(got, convey.ShouldHaveLength, 2)
				convey.So(got[f.players[8]], convey.ShouldEqual, 9)
				convey.So(got[f.players[6]], convey.ShouldEqual, 8)
			})

			convey.Convey("Then the player can bust again at the next position", func() {
				f.clock.Advance(time.Minute)
				e, err := f.ledger.RegisterElimination(ctx, f.gameDate.ID, f.players[7], f.players[0])
				convey.So(err, convey.ShouldBeNil)
				convey.So(e.Position, convey.ShouldEqual, 7)
			})
		})

		convey.Convey("When a player without a record is undone", func() {
			err := f.ledger.RemoveElimination(ctx, f.gameDate.ID, f.players[1])
			convey.So(errors.Is(err, services.ErrNotFound), convey.ShouldBeTrue)
		})
	})
}

func TestRecalculate(t *testing.T) {
	convey.Convey("Given a ledger whose stored positions were wiped", t, func() {
		f := newLedgerFixture(t, 9)
		ctx := context.Background()
		f.eliminate(t, f.players[8], f.players[7])
		convey.So(f.db.Model(&models.Elimination{}).
			Where("game_date_id = ?", f.gameDate.ID).
			Updates(map[string]interface{}{"position": 0, "points": 0}).Error, convey.ShouldBeNil)

		convey.Convey("When it is recalculated", func() {
			changed, err := f.ledger.Recalculate(ctx, f.gameDate.ID)

			convey.Convey("Then bust order decides the positions again", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(changed, convey.ShouldEqual, 2)
				got := f.positions(t)
				convey.So(got[f.players[8]], convey.ShouldEqual, 9)
				convey.So(got[f.players[7]], convey.ShouldEqual, 8)
			})

			convey.Convey("Then a second pass changes nothing", func() {
				again, err := f.ledger.Recalculate(ctx, f.gameDate.ID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(again, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the next elimination comes in", func() {
			f.clock.Advance(time.Minute)
			e, err := f.ledger.RegisterElimination(ctx, f.gameDate.ID, f.players[6], f.players[0])

			convey.Convey("Then the ledger heals before numbering it", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(e.Position, convey.ShouldEqual, 7)
				convey.So(f.positions(t)[f.players[8]], convey.ShouldEqual, 9)
			})
		})
	})
}
