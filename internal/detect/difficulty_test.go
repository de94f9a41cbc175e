package detect

import (
	"fmt"
	"math"
	"testing"
)

func TestRandomDifficulty_Deterministic(t *testing.T) {
	first := RandomDifficulty("0xABC", "math-quiz", 1, 3)
	for i := 0; i < 10; i++ {
		if got := RandomDifficulty("0xABC", "math-quiz", 1, 3); got != first {
			t.Fatalf("call %d returned %d, first call returned %d", i, got, first)
		}
	}
}

func TestRandomDifficulty_Range(t *testing.T) {
	for i := 0; i < 500; i++ {
		actor := fmt.Sprintf("0x%04x", i)
		d := RandomDifficulty(actor, "reflex-run", 1, 3)
		if d < 1 || d > 3 {
			t.Fatalf("difficulty for %s = %d, out of [1,3]", actor, d)
		}
	}
}

func TestRandomDifficulty_SwappedBounds(t *testing.T) {
	a := RandomDifficulty("0xABC", "math-quiz", 1, 3)
	b := RandomDifficulty("0xABC", "math-quiz", 3, 1)
	if a != b {
		t.Errorf("swapped bounds changed the result: %d vs %d", a, b)
	}
}

func TestRandomDifficulty_DegenerateRange(t *testing.T) {
	if d := RandomDifficulty("0xABC", "math-quiz", 2, 2); d != 2 {
		t.Errorf("single-value range returned %d, want 2", d)
	}
}

func TestDifficultyMultiplier(t *testing.T) {
	tests := []struct {
		difficulty int
		want       float64
	}{
		{1, 0.8},
		{2, 1.0},
		{3, 1.2},
	}
	for _, tt := range tests {
		if got := DifficultyMultiplier(tt.difficulty); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("multiplier(%d) = %v, want %v", tt.difficulty, got, tt.want)
		}
	}
}
