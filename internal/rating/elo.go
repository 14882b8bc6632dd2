// Package rating implements the Elo update applied to settled rated games.
package rating

import (
	"math"

	"github.com/park285/cheese-arena/internal/domain"
)

const (
	DefaultKFactor = 24
	DefaultRating  = 1200
)

// Elo rates head-to-head games. The white delta is rounded once and black
// receives its negation, so every update is zero-sum after rounding.
type Elo struct {
	K       float64
	Initial int
}

func NewElo(k float64, initial int) Elo {
	if k <= 0 {
		k = DefaultKFactor
	}
	if initial <= 0 {
		initial = DefaultRating
	}
	return Elo{K: k, Initial: initial}
}

// Expected is the expected score of a player rated r against opp.
func Expected(r, opp int) float64 {
	return 1 / (1 + math.Pow(10, float64(opp-r)/400))
}

// Delta is white's rating change for the given result.
func (e Elo) Delta(white, black int, result domain.Result) int {
	return int(math.Round(e.K * (result.Score() - Expected(white, black))))
}

// Rate returns both new ratings.
func (e Elo) Rate(white, black int, result domain.Result) (int, int) {
	d := e.Delta(white, black, result)
	return white + d, black - d
}

// Changes builds the per-side records persisted and broadcast after a game.
func (e Elo) Changes(cat domain.Category, whiteID string, white int, blackID string, black int, result domain.Result) []domain.RatingChange {
	wAfter, bAfter := e.Rate(white, black, result)
	score := result.Score()
	return []domain.RatingChange{
		{UserID: whiteID, Category: cat, Before: white, After: wAfter, Score: score},
		{UserID: blackID, Category: cat, Before: black, After: bAfter, Score: 1 - score},
	}
}

// Apply folds a change into a stored profile, counting the result. An
// existing rating moves by the delta, so a change computed from an older
// snapshot never discards one applied since.
func Apply(p *domain.RatingProfile, c domain.RatingChange) {
	if p.Rating == 0 {
		p.Rating = c.After
	} else {
		p.Rating += c.Delta()
	}
	p.GamesPlayed++
	switch {
	case c.Score >= 1:
		p.Wins++
	case c.Score <= 0:
		p.Losses++
	default:
		p.Draws++
	}
}
