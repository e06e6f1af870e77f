package app

import (
	"math"

	"quiz-runner/internal/domain"
)

// pointsFor scores one answer. priorStreak is the streak held before the answer.
func pointsFor(rules Rules, correct bool, priorStreak int, doublePoints bool) int {
	if !correct {
		return 0
	}
	points := rules.BasePoints
	if doublePoints {
		points *= rules.DoublePointsFactor
	}
	if priorStreak >= rules.StreakThreshold {
		points += rules.StreakBonus
	}
	return points
}

// accuracy is the percentage of correct answers rounded to one decimal.
func accuracy(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(correct)/float64(total)*1000) / 10
}

func badgeFor(accuracy float64) domain.Badge {
	switch {
	case accuracy >= 90:
		return domain.Badge{Level: "master", Text: "Quiz Master!"}
	case accuracy >= 75:
		return domain.Badge{Level: "expert", Text: "Expert Level!"}
	default:
		return domain.Badge{Level: "improving", Text: "Keep Improving!"}
	}
}
