package detect

import "testing"

func TestForcedLoss_DefaultProbability(t *testing.T) {
	if f := NewForcedLoss(-0.1); f.Probability != DefaultForcedLossProbability {
		t.Errorf("negative probability not defaulted: %v", f.Probability)
	}
	if f := NewForcedLoss(1.5); f.Probability != DefaultForcedLossProbability {
		t.Errorf("out-of-range probability not defaulted: %v", f.Probability)
	}
	if f := NewForcedLoss(0.5); f.Probability != 0.5 {
		t.Errorf("explicit probability not kept: %v", f.Probability)
	}
	// Zero is a valid setting: the overlay is disabled, not defaulted.
	if f := NewForcedLoss(0); f.Probability != 0 {
		t.Errorf("zero probability not kept: %v", f.Probability)
	}
}

func TestForcedLoss_Frequency(t *testing.T) {
	f := NewForcedLoss(0.80)
	f.Seed(42)

	const draws = 10000
	losses := 0
	for i := 0; i < draws; i++ {
		// The actual outcome must not influence the draw.
		if f.ShouldForceLoss("0xA", i%2 == 0) {
			losses++
		}
	}

	rate := float64(losses) / draws
	if rate < 0.77 || rate > 0.83 {
		t.Errorf("forced-loss rate = %v, want ~0.80", rate)
	}
}

func TestForcedLoss_AlwaysAndNever(t *testing.T) {
	always := NewForcedLoss(1.0)
	always.Seed(1)
	for i := 0; i < 100; i++ {
		if !always.ShouldForceLoss("0xB", true) {
			t.Fatal("probability 1.0 must always deny")
		}
	}

	never := NewForcedLoss(0)
	never.Seed(1)
	for i := 0; i < 100; i++ {
		if never.ShouldForceLoss("0xB", true) {
			t.Fatal("probability 0 must never deny")
		}
	}
}
