package placement

import "math"

// Difficulty scale bounds. Theta lives on the same 1-9 scale as item
// difficulty, with 3.0 (center of the A2 band) as the starting estimate.
const (
	MinDifficulty = 1.0
	MaxDifficulty = 9.0

	SeedDifficulty = 3.0

	initialTheta     = 3.0
	discrimination   = 1.35
	initialLearnRate = 0.85
	minLearnRate     = 0.35
	learnRateDecay   = 0.97
	targetOffset     = 0.5
)

// Response is one answered item: the difficulty it was asked at and
// whether the user got it right.
type Response struct {
	Difficulty float64
	IsCorrect  bool
}

// EstimateTheta computes the ability estimate from the full answered
// history using a 1PL-like online update, replayed from scratch on every
// call. It is a pure function of its input: the same history always
// yields the same theta, so callers can recompute it at any point
// (mid-test, result page) without extra state. An empty history returns
// the initial estimate.
func EstimateTheta(history []Response) float64 {
	theta := initialTheta
	lr := initialLearnRate

	for _, r := range history {
		z := discrimination * (theta - r.Difficulty)
		p := 1.0 / (1.0 + math.Exp(-z))
		y := 0.0
		if r.IsCorrect {
			y = 1.0
		}
		theta = clampDifficulty(theta + lr*discrimination*(y-p))
		lr = math.Max(minLearnRate, lr*learnRateDecay)
	}

	return theta
}

// NextDifficulty picks the difficulty for the next item: half a unit
// below theta, snapped to the 0.5 grid. Under the logistic model that
// targets roughly 65% success, keeping the test informative without
// discouraging the user.
func NextDifficulty(theta float64) float64 {
	return clampDifficulty(roundToHalf(theta - targetOffset))
}

// ThetaToCEFR maps a final ability estimate to a CEFR band. Monotonic;
// the scale caps at C1.
func ThetaToCEFR(theta float64) string {
	switch {
	case theta < 2.5:
		return "A1"
	case theta < 4.5:
		return "A2"
	case theta < 6.5:
		return "B1"
	case theta < 8.5:
		return "B2"
	default:
		return "C1"
	}
}

func clampDifficulty(x float64) float64 {
	if x < MinDifficulty {
		return MinDifficulty
	}
	if x > MaxDifficulty {
		return MaxDifficulty
	}
	return x
}

func roundToHalf(x float64) float64 {
	return math.Round(x*2) / 2
}
