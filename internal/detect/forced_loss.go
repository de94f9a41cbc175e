package detect

import (
	"math/rand"
	"sync"
	"time"
)

// Forced-Loss Overlay
//
// A deliberate business rule, not a detector: at reward-issuance time a
// fixed, named probability decides whether the payout is denied
// regardless of the actor's actual in-game outcome. It exists to cap
// the effective payout rate independent of skill, and the probability
// is an explicit configurable so it is never mistaken for a defect.

// DefaultForcedLossProbability is the production payout-denial rate.
const DefaultForcedLossProbability = 0.80

// ForcedLoss draws from a uniform source against a fixed probability.
type ForcedLoss struct {
	Probability float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewForcedLoss creates the overlay with the given probability. Zero
// is a valid setting (the overlay never denies); only values outside
// [0,1] fall back to the default.
func NewForcedLoss(probability float64) *ForcedLoss {
	if probability < 0 || probability > 1 {
		probability = DefaultForcedLossProbability
	}
	return &ForcedLoss{
		Probability: probability,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Seed replaces the random source (tests use a fixed seed).
func (f *ForcedLoss) Seed(seed int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rng = rand.New(rand.NewSource(seed))
}

// ShouldForceLoss reports whether this reward is denied. The draw is
// independent of actualOutcome; the argument is part of the contract
// so call sites make explicit that the real result is being overridden.
func (f *ForcedLoss) ShouldForceLoss(actorID string, actualOutcome bool) bool {
	_ = actorID
	_ = actualOutcome

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rng.Float64() < f.Probability
}
