package services

import (
	"context"
	"fmt"
	"time"

	"poker-league/logger"

	"github.com/go-co-op/gocron/v2"
)

// StartTimerSweepScheduler runs SweepExpired every interval. The returned
// scheduler is already started; shut it down on exit.
func (s *TimerService) StartTimerSweepScheduler(ctx context.Context, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(
		gocron.WithClock(s.Clock),
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("create sweep scheduler: %w", err)
	}

	log := s.log.Named("sweep")
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			n, err := s.SweepExpired(ctx)
			if err != nil {
				log.Error(ctx, "sweep failed", logger.Error(err))
				return
			}
			if n > 0 {
				log.Info(ctx, "expired levels advanced", logger.Int("count", n))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule timer sweep: %w", err)
	}

	sched.Start()
	return sched, nil
}
