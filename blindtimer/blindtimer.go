// Package blindtimer derives the live state of a blind clock from its last
// persisted checkpoint and a wall-clock reading.
//
// Nothing here keeps time. Every function is a total function of
// (checkpoint, now) and returns a new checkpoint value, so any number of
// readers in any number of processes reconstruct the same clock.
package blindtimer

import (
	"time"

	"poker-league/models"
)

// elapsedSeconds is floor((now - from) / 1s), clamped at 0. A nil reference counts as no time.
func elapsedSeconds(from *time.Time, now time.Time) int {
	if from == nil {
		return 0
	}
	d := now.Sub(*from)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

func at(t time.Time) *time.Time {
	return &t
}

// Compute returns the checkpoint as it stands at now. Only an active clock
// moves; idle, paused and completed checkpoints are returned unchanged.
func Compute(cp models.TimerState, now time.Time) models.TimerState {
	if cp.Status != models.TimerStatusActive {
		return cp
	}
	out := cp
	out.TimeRemaining = max(0, cp.TimeRemaining-elapsedSeconds(cp.LevelStartTime, now))
	if cp.StartTime != nil {
		out.TotalElapsed = max(cp.TotalElapsed, elapsedSeconds(cp.StartTime, now))
	}
	return out
}

// DeriveStartUpdate puts an idle clock on the first level.
func DeriveStartUpdate(cp models.TimerState, durationSeconds int, now time.Time) models.TimerState {
	out := cp
	out.Status = models.TimerStatusActive
	out.CurrentLevel = 0
	out.TimeRemaining = max(0, durationSeconds)
	out.TotalElapsed = 0
	out.StartTime = at(now)
	out.LevelStartTime = at(now)
	out.PausedAt = nil
	return out
}

// DerivePauseUpdate freezes the values computed at now.
func DerivePauseUpdate(cp models.TimerState, now time.Time) models.TimerState {
	out := Compute(cp, now)
	out.Status = models.TimerStatusPaused
	out.PausedAt = at(now)
	return out
}

// DeriveResumeUpdate restarts the elapsed-time reference at now; the remaining time is kept.
func DeriveResumeUpdate(cp models.TimerState, now time.Time) models.TimerState {
	out := Compute(cp, now)
	out.Status = models.TimerStatusActive
	out.LevelStartTime = at(now)
	out.PausedAt = nil
	return out
}

// DeriveLevelChangeUpdate moves the clock to newLevel with a full duration,
// carrying total elapsed forward. Status is left to the caller.
func DeriveLevelChangeUpdate(cp models.TimerState, newLevel, newDurationSeconds int, now time.Time) models.TimerState {
	out := Compute(cp, now)
	out.CurrentLevel = newLevel
	out.TimeRemaining = max(0, newDurationSeconds)
	out.LevelStartTime = at(now)
	return out
}

// DeriveCompleteUpdate stops the clock for good with the values computed at now.
func DeriveCompleteUpdate(cp models.TimerState, now time.Time) models.TimerState {
	out := Compute(cp, now)
	out.Status = models.TimerStatusCompleted
	out.PausedAt = nil
	return out
}
