package detect

import (
	"math"

	"github.com/rewardloop/abuse-engine/pkg/models"
)

// Score Validator
//
// Post-session plausibility check. The session's aggregate result
// (score, duration, action count) is judged together with the action
// history the analyzer already recorded for the actor. Checks run in a
// fixed order and the first failure blocks; every blocking outcome is
// deterministic and non-retryable.

// Rejection reasons returned by ValidateScore.
const (
	ReasonScoreTooHigh           = "score_too_high"
	ReasonScorePerActionTooHigh  = "score_per_action_too_high"
	ReasonHighScoreShortDuration = "high_score_short_duration"
	ReasonPerfectAccuracy        = "perfect_accuracy_high_score"
	ReasonInvalidDuration        = "invalid_duration"
	ReasonTooManyActionsPerSec   = "too_many_actions_per_second"
	ReasonInvalidScoreValue      = "invalid_score_value"
)

// ValidatorConfig holds the plausibility ceilings.
type ValidatorConfig struct {
	MaxScorePerSecond    float64 // points per second any human could plausibly earn
	MaxScorePerAction    float64
	ShortDurationScore   float64 // score above this with a short session is rejected
	ShortDurationSeconds float64
	AccuracyLookback     int     // recorded actions consulted for the accuracy check
	AccuracyMinSample    int     // minimum actions before perfect accuracy is judged
	AccuracyScoreFloor   float64 // perfect accuracy only suspicious above this score
	MaxActionsPerSecond  float64
	MaxScore             float64 // absolute score ceiling
}

// DefaultValidatorConfig returns the production ceilings.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxScorePerSecond:    5000,
		MaxScorePerAction:    10000,
		ShortDurationScore:   50000,
		ShortDurationSeconds: 10,
		AccuracyLookback:     100,
		AccuracyMinSample:    20,
		AccuracyScoreFloor:   30000,
		MaxActionsPerSecond:  20,
		MaxScore:             1000000,
	}
}

// ScoreValidator judges final session results against the actor's
// recorded action stream. It holds no state of its own.
type ScoreValidator struct {
	analyzer *Analyzer
	cfg      ValidatorConfig
}

// NewScoreValidator creates a validator reading history from the given
// analyzer.
func NewScoreValidator(analyzer *Analyzer, cfg ValidatorConfig) *ScoreValidator {
	def := DefaultValidatorConfig()
	if cfg.MaxScorePerSecond <= 0 {
		cfg.MaxScorePerSecond = def.MaxScorePerSecond
	}
	if cfg.MaxScorePerAction <= 0 {
		cfg.MaxScorePerAction = def.MaxScorePerAction
	}
	if cfg.ShortDurationScore <= 0 {
		cfg.ShortDurationScore = def.ShortDurationScore
	}
	if cfg.ShortDurationSeconds <= 0 {
		cfg.ShortDurationSeconds = def.ShortDurationSeconds
	}
	if cfg.AccuracyLookback <= 0 {
		cfg.AccuracyLookback = def.AccuracyLookback
	}
	if cfg.AccuracyMinSample <= 0 {
		cfg.AccuracyMinSample = def.AccuracyMinSample
	}
	if cfg.AccuracyScoreFloor <= 0 {
		cfg.AccuracyScoreFloor = def.AccuracyScoreFloor
	}
	if cfg.MaxActionsPerSecond <= 0 {
		cfg.MaxActionsPerSecond = def.MaxActionsPerSecond
	}
	if cfg.MaxScore <= 0 {
		cfg.MaxScore = def.MaxScore
	}
	return &ScoreValidator{analyzer: analyzer, cfg: cfg}
}

// ValidateScore runs the plausibility checks in order. activityID is
// accepted for audit logging parity with the caller's contract; the
// ceilings themselves are activity-independent.
func (v *ScoreValidator) ValidateScore(actorID string, score, durationSeconds float64, actionsCount int, activityID string) models.CheckResult {
	// Score rate against a floor duration of 1s so instant submissions
	// cannot divide by zero their way past the ceiling.
	if score/math.Max(durationSeconds, 1) > v.cfg.MaxScorePerSecond {
		return blockedResult(ReasonScoreTooHigh, 0.95)
	}

	if actionsCount > 0 && score/float64(actionsCount) > v.cfg.MaxScorePerAction {
		return blockedResult(ReasonScorePerActionTooHigh, 0.95)
	}

	if score > v.cfg.ShortDurationScore && durationSeconds < v.cfg.ShortDurationSeconds {
		return blockedResult(ReasonHighScoreShortDuration, 0.9)
	}

	// Perfect accuracy over a meaningful sample combined with a big
	// score is the classic replay-bot signature.
	if history := v.analyzer.history(actorID); len(history) > 0 {
		if len(history) > v.cfg.AccuracyLookback {
			history = history[len(history)-v.cfg.AccuracyLookback:]
		}
		failed := 0
		for _, r := range history {
			if r.Context.Failed {
				failed++
			}
		}
		if failed == 0 && len(history) > v.cfg.AccuracyMinSample && score > v.cfg.AccuracyScoreFloor {
			return blockedResult(ReasonPerfectAccuracy, 0.85)
		}
	}

	if durationSeconds <= 0 {
		return blockedResult(ReasonInvalidDuration, 1.0)
	}

	if float64(actionsCount)/durationSeconds > v.cfg.MaxActionsPerSecond {
		return blockedResult(ReasonTooManyActionsPerSec, 0.9)
	}

	if score < 0 || score > v.cfg.MaxScore || math.IsNaN(score) || math.IsInf(score, 0) {
		return blockedResult(ReasonInvalidScoreValue, 1.0)
	}

	return models.OK()
}

func blockedResult(reason string, confidence float64) models.CheckResult {
	return models.CheckResult{Suspicious: true, Reason: reason, Confidence: confidence, Blocked: true}
}
