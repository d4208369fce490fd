package models

// All lists every table the engine owns, in migration order.
func All() []interface{} {
	return []interface{}{
		&Player{},
		&Tournament{},
		&BlindLevel{},
		&GameDate{},
		&GameDatePlayer{},
		&Elimination{},
		&TimerState{},
		&TimerAction{},
	}
}
