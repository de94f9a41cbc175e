package detect

import "math"

// Difficulty Assigner
//
// Pure functions: a given actor sees a stable difficulty for a given
// activity across sessions without anything being persisted. The seed
// is the sum of the character codes of actorID+activityID pushed
// through a sine transform; the fractional part maps linearly onto
// [min, max]. The formula is kept bit-for-bit so difficulties already
// assigned to live actors do not shift.

// RandomDifficulty deterministically maps (actor, activity) to an
// integer in [min, max] inclusive. Identical inputs always yield the
// identical output.
func RandomDifficulty(actorID, activityID string, min, max int) int {
	if max < min {
		min, max = max, min
	}

	seed := 0
	for _, r := range actorID + activityID {
		seed += int(r)
	}

	x := math.Sin(float64(seed)) * 10000
	frac := x - math.Floor(x)

	return int(math.Floor(frac*float64(max-min+1))) + min
}

// DifficultyMultiplier linearly scales scoring by difficulty:
// 1 → 0.8x, 2 → 1.0x, 3 → 1.2x.
func DifficultyMultiplier(difficulty int) float64 {
	return 0.8 + float64(difficulty-1)*0.2
}
