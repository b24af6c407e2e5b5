package game

import "math"

// Elo rating parameters. K=32 with ratings clamped to [800, 3000].
const (
	eloK   = 32.0
	eloMin = 800
	eloMax = 3000
)

// eloExpected is the expected score of a rated player against b.
func eloExpected(a, b int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(b-a)/400.0))
}

// AdjustElo returns the new ratings for both players given the actual score
// for player a (1 win, 0.5 draw, 0 loss).
func AdjustElo(ratingA, ratingB int, scoreA float64) (int, int) {
	expA := eloExpected(ratingA, ratingB)
	deltaA := int(math.Round(eloK * (scoreA - expA)))

	newA := clampElo(ratingA + deltaA)
	newB := clampElo(ratingB - deltaA)
	return newA, newB
}

func clampElo(r int) int {
	if r < eloMin {
		return eloMin
	}
	if r > eloMax {
		return eloMax
	}
	return r
}
