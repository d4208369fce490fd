package services

import (
	"context"
	"time"

	"poker-league/logger"
	"poker-league/metrics"

	"github.com/jonboulle/clockwork"
)

// timerSource is the part of TimerService a broadcast loop needs.
type timerSource interface {
	View(ctx context.Context, gameDateID string) (*TimerView, error)
	AutoAdvance(ctx context.Context, gameDateID string, fromLevel int) (bool, error)
}

// TimerBroadcaster pushes the live clock of a game date to one subscriber at a
// time. Loops hold no shared state; any number may watch the same game date.
type TimerBroadcaster struct {
	Timers   timerSource
	Clock    clockwork.Clock
	Interval time.Duration
	Metrics  *metrics.Manager
	log      logger.Logger
}

func NewTimerBroadcaster(timers timerSource, clock clockwork.Clock, interval time.Duration, m *metrics.Manager) *TimerBroadcaster {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &TimerBroadcaster{
		Timers:   timers,
		Clock:    clock,
		Interval: interval,
		Metrics:  m,
		log:      logger.Named("broadcast"),
	}
}

// Run emits the clock immediately and then once per interval until ctx is done
// or emit fails. When the current level has expired it asks for the advance
// once per level and sends the fresh state straight away.
func (b *TimerBroadcaster) Run(ctx context.Context, gameDateID string, emit func(TimerView) error) error {
	ticker := b.Clock.NewTicker(b.Interval)
	defer ticker.Stop()

	b.Metrics.SubscriberJoined()
	defer b.Metrics.SubscriberLeft()

	lastAdvanced := -1
	for {
		view, err := b.Timers.View(ctx, gameDateID)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.Metrics.RecordTickError()
			b.log.Warn(ctx, "timer tick failed",
				logger.String("game_date_id", gameDateID),
				logger.Error(err),
			)
		} else {
			if view.Expired() && lastAdvanced != view.CurrentLevel {
				fresh, ok := b.advance(ctx, gameDateID, view)
				if ok {
					lastAdvanced = view.CurrentLevel
				}
				view = fresh
			}
			if view != nil {
				if err := emit(*view); err != nil {
					b.log.Debug(ctx, "subscriber gone",
						logger.String("game_date_id", gameDateID),
						logger.Error(err),
					)
					return err
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
		}
	}
}

// advance requests the auto-advance and returns the clock as it stands after
// it. Losing the race to another loop still yields the advanced state. A
// failed attempt is retried on the next tick. The view is nil when the level
// moved but could not be re-read; the old frame is stale and must not be sent.
func (b *TimerBroadcaster) advance(ctx context.Context, gameDateID string, stale *TimerView) (*TimerView, bool) {
	if _, err := b.Timers.AutoAdvance(ctx, gameDateID, stale.CurrentLevel); err != nil {
		b.Metrics.RecordTickError()
		b.log.Warn(ctx, "auto-advance failed",
			logger.String("game_date_id", gameDateID),
			logger.Int("level", stale.CurrentLevel),
			logger.Error(err),
		)
		return stale, false
	}
	fresh, err := b.Timers.View(ctx, gameDateID)
	if err != nil {
		b.Metrics.RecordTickError()
		b.log.Warn(ctx, "timer re-read after advance failed",
			logger.String("game_date_id", gameDateID),
			logger.Int("level", stale.CurrentLevel),
			logger.Error(err),
		)
		return nil, true
	}
	return fresh, true
}
