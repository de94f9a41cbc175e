package detect

import (
	"math"
	"testing"
	"time"

	"github.com/rewardloop/abuse-engine/pkg/models"
)

func TestValidateScore_Ceilings(t *testing.T) {
	a, _ := newTestAnalyzer()
	v := NewScoreValidator(a, DefaultValidatorConfig())

	tests := []struct {
		name     string
		score    float64
		duration float64
		actions  int
		reason   string
		conf     float64
	}{
		{"score rate too high", 100000, 5, 50, ReasonScoreTooHigh, 0.95},
		{"instant submission uses 1s floor", 6000, 0.1, 10, ReasonScoreTooHigh, 0.95},
		{"score per action too high", 50000, 100, 4, ReasonScorePerActionTooHigh, 0.95},
		{"invalid duration", 0, 0, 0, ReasonInvalidDuration, 1.0},
		{"negative duration", 100, -3, 5, ReasonInvalidDuration, 1.0},
		{"too many actions per second", 1000, 10, 500, ReasonTooManyActionsPerSec, 0.9},
		{"negative score", -5, 10, 5, ReasonInvalidScoreValue, 1.0},
		{"score above absolute ceiling", 2000000, 1000, 5000, ReasonInvalidScoreValue, 1.0},
		{"NaN score", math.NaN(), 10, 5, ReasonInvalidScoreValue, 1.0},
		{"plausible result", 3000, 60, 120, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.ValidateScore("0xS", tt.score, tt.duration, tt.actions, "math-quiz")
			if tt.reason == "" {
				if res.Suspicious {
					t.Fatalf("unexpected rejection: %s", res.Reason)
				}
				return
			}
			if !res.Blocked {
				t.Error("rejection must be blocking")
			}
			if res.Reason != tt.reason {
				t.Errorf("reason = %q, want %q", res.Reason, tt.reason)
			}
			if res.Confidence != tt.conf {
				t.Errorf("confidence = %v, want %v", res.Confidence, tt.conf)
			}
		})
	}
}

func TestValidateScore_PerfectAccuracy(t *testing.T) {
	a, clock := newTestAnalyzer()
	v := NewScoreValidator(a, DefaultValidatorConfig())

	// 25 recorded actions, none failed: a flawless session.
	for i := 0; i < 25; i++ {
		a.RecordAction("0xP", "answer", models.ActionContext{Perfect: i%2 == 0})
		clock.advance(2 * time.Second)
	}

	res := v.ValidateScore("0xP", 40000, 60, 100, "math-quiz")
	if res.Reason != ReasonPerfectAccuracy {
		t.Fatalf("reason = %q, want %q", res.Reason, ReasonPerfectAccuracy)
	}
	if res.Confidence != 0.85 {
		t.Errorf("confidence = %v, want 0.85", res.Confidence)
	}

	// A single recorded failure clears the signature.
	a.RecordAction("0xP", "answer", models.ActionContext{Failed: true})
	if res := v.ValidateScore("0xP", 40000, 60, 100, "math-quiz"); res.Suspicious {
		t.Errorf("unexpected rejection after a failed action: %s", res.Reason)
	}

	// Below the score floor the streak is fine.
	if res := v.ValidateScore("0xQ", 0, 60, 0, "math-quiz"); res.Suspicious {
		t.Errorf("actor with no history rejected: %s", res.Reason)
	}
}

func TestValidateScore_HighScoreShortDuration(t *testing.T) {
	a, _ := newTestAnalyzer()
	cfg := DefaultValidatorConfig()
	cfg.MaxScorePerSecond = 100000
	v := NewScoreValidator(a, cfg)

	res := v.ValidateScore("0xH", 60000, 5, 10, "reflex-run")
	if res.Reason != ReasonHighScoreShortDuration {
		t.Fatalf("reason = %q, want %q", res.Reason, ReasonHighScoreShortDuration)
	}
	if res.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", res.Confidence)
	}
}
