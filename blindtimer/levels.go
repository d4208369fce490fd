package blindtimer

import (
	"sort"

	"poker-league/models"
)

// SortLevels orders a tournament's blind levels by level number; the index in
// the result is what TimerState.CurrentLevel refers to.
func SortLevels(levels []models.BlindLevel) {
	sort.SliceStable(levels, func(i, j int) bool {
		return levels[i].Level < levels[j].Level
	})
}

// LevelAt returns the level at index i of sorted levels.
func LevelAt(levels []models.BlindLevel, i int) (models.BlindLevel, bool) {
	if i < 0 || i >= len(levels) {
		return models.BlindLevel{}, false
	}
	return levels[i], true
}

// NextLevel returns the level following index i.
func NextLevel(levels []models.BlindLevel, i int) (models.BlindLevel, bool) {
	return LevelAt(levels, i+1)
}
