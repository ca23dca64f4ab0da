// Package popularity turns post engagement into a bounded popularity score.
package popularity

import (
	"math"

	"github.com/ObiAU/hfentityengine/internal/models"
)

const (
	MinScore = 1
	MaxScore = 10
)

// Score is a pure function of the counters. Each log-scaled term is capped
// and truncated to a whole point before it is added to the base of 1;
// retweets carry the largest cap.
func Score(e models.Engagement) int {
	score := MinScore

	if total := e.TotalEngagement(); total > 0 {
		score += term(float64(total), 3)
	}
	if e.Favorites > 10 {
		score += term(float64(e.Favorites)/10, 2)
	}
	if e.Retweets > 5 {
		score += term(float64(e.Retweets)/5, 3)
	}
	if e.Replies > 3 {
		score += term(float64(e.Replies)/3, 2)
	}

	return clamp(score)
}

func term(x, ceiling float64) int {
	return int(math.Min(ceiling, math.Log10(x+1)))
}

func clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
