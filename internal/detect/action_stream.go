package detect

import (
	"sync"
	"time"

	"github.com/rewardloop/abuse-engine/pkg/models"
)

// Action Stream Analyzer
//
// Per-actor behavioral analysis of raw game inputs. Recording and
// judging are separate operations: RecordAction always succeeds and
// never validates, CheckAction classifies the newest action against
// the actor's bounded history.
//
// Rules run in a fixed order, first match wins:
//
//   1. cooldown lockout    — still inside the suspicious cooldown window
//   2. hard block          — suspicion counter exhausted
//   3. speed violation     — inter-action gap below the human floor
//   4. burst rate          — too many actions in the last second
//   5. repetition          — constant-cadence identical inputs
//   6. perfect streak      — implausible run of perfect outcomes
//   7. machine-like timing — sub-10ms spread across recent intervals
//   8. rapid state changes — last five actions inside 200ms
//
// Soft rules (3-8) bump the suspicion counter and stamp the cooldown;
// once the counter crosses the max, rule 2 short-circuits every
// subsequent call regardless of new evidence.

// Soft/hard rejection reasons returned by CheckAction.
const (
	ReasonSuspiciousCooldown = "suspicious_cooldown"
	ReasonTooManySuspicious  = "too_many_suspicious_actions"
	ReasonActionTooFast      = "action_too_fast"
	ReasonTooManyActions     = "too_many_actions"
	ReasonRepetitivePattern  = "repetitive_pattern"
	ReasonTooPerfect         = "too_perfect"
	ReasonMachineLikeTiming  = "machine_like_timing"
	ReasonRapidStateChanges  = "rapid_state_changes"
)

// AnalyzerConfig holds the tunable thresholds for the stream analyzer.
type AnalyzerConfig struct {
	MaxHistory           int           // FIFO cap on per-actor action records
	MinActionInterval    time.Duration // floor for human-possible input spacing
	SuspiciousCooldown   time.Duration // lockout after a suspicious outcome
	MaxSuspiciousActions int           // counter value that hard-blocks the actor
	BurstWindow          time.Duration // window for the burst rate rule
	BurstThreshold       int           // actions inside BurstWindow that trip rule 4
	PatternRepetition    int           // identical actions needed for rule 5
	PatternVarianceMax   float64       // max interval variance (ms^2) for rule 5
	PerfectWindow        int           // lookback for the perfect streak rule
	PerfectThreshold     int           // perfect actions inside PerfectWindow
	TimingWindow         int           // lookback for machine-like timing
	TimingSpreadMax      time.Duration // max (max-min) interval spread for rule 7
	TimingMinBelow       time.Duration // rule 7 only fires when min interval is below this
	RapidWindow          int           // actions considered by rule 8
	RapidSpanMax         time.Duration // total span that trips rule 8
}

// DefaultAnalyzerConfig returns the production thresholds.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		MaxHistory:           200,
		MinActionInterval:    50 * time.Millisecond,
		SuspiciousCooldown:   60 * time.Second,
		MaxSuspiciousActions: 3,
		BurstWindow:          time.Second,
		BurstThreshold:       15,
		PatternRepetition:    5,
		PatternVarianceMax:   100, // ms^2
		PerfectWindow:        20,
		PerfectThreshold:     15,
		TimingWindow:         10,
		TimingSpreadMax:      10 * time.Millisecond,
		TimingMinBelow:       100 * time.Millisecond,
		RapidWindow:          5,
		RapidSpanMax:         200 * time.Millisecond,
	}
}

// Analyzer maintains per-actor action histories. Each actor's state is
// only ever touched by calls keyed to that actor, so one mutex over the
// map is enough; evaluation itself is CPU-bound with no suspension
// points.
type Analyzer struct {
	mu     sync.Mutex
	actors map[string]*models.ActorActivity
	cfg    AnalyzerConfig

	now func() time.Time
}

// NewAnalyzer creates an analyzer with the given thresholds. Zero-value
// fields fall back to the defaults.
func NewAnalyzer(cfg AnalyzerConfig) *Analyzer {
	def := DefaultAnalyzerConfig()
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = def.MaxHistory
	}
	if cfg.MinActionInterval <= 0 {
		cfg.MinActionInterval = def.MinActionInterval
	}
	if cfg.SuspiciousCooldown <= 0 {
		cfg.SuspiciousCooldown = def.SuspiciousCooldown
	}
	if cfg.MaxSuspiciousActions <= 0 {
		cfg.MaxSuspiciousActions = def.MaxSuspiciousActions
	}
	if cfg.BurstWindow <= 0 {
		cfg.BurstWindow = def.BurstWindow
	}
	if cfg.BurstThreshold <= 0 {
		cfg.BurstThreshold = def.BurstThreshold
	}
	if cfg.PatternRepetition <= 0 {
		cfg.PatternRepetition = def.PatternRepetition
	}
	if cfg.PatternVarianceMax <= 0 {
		cfg.PatternVarianceMax = def.PatternVarianceMax
	}
	if cfg.PerfectWindow <= 0 {
		cfg.PerfectWindow = def.PerfectWindow
	}
	if cfg.PerfectThreshold <= 0 {
		cfg.PerfectThreshold = def.PerfectThreshold
	}
	if cfg.TimingWindow <= 0 {
		cfg.TimingWindow = def.TimingWindow
	}
	if cfg.TimingSpreadMax <= 0 {
		cfg.TimingSpreadMax = def.TimingSpreadMax
	}
	if cfg.TimingMinBelow <= 0 {
		cfg.TimingMinBelow = def.TimingMinBelow
	}
	if cfg.RapidWindow <= 0 {
		cfg.RapidWindow = def.RapidWindow
	}
	if cfg.RapidSpanMax <= 0 {
		cfg.RapidSpanMax = def.RapidSpanMax
	}

	return &Analyzer{
		actors: make(map[string]*models.ActorActivity),
		cfg:    cfg,
		now:    time.Now,
	}
}

// RecordAction appends an action to the actor's history. It always
// succeeds and performs no validation. The history is FIFO-capped on
// every write, never by a separate cleanup pass.
func (a *Analyzer) RecordAction(actorID, actionType string, ctx models.ActionContext) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	act := a.activityLocked(actorID, now)
	act.LastSeenAt = now
	act.Records = append(act.Records, models.ActionRecord{
		Timestamp:  now,
		ActionType: actionType,
		Context:    ctx,
	})
	if len(act.Records) > a.cfg.MaxHistory {
		act.Records = act.Records[len(act.Records)-a.cfg.MaxHistory:]
	}
}

// CheckAction classifies the actor's newest action. Callers record the
// action first, then check it; the most recent history entry is taken
// as the action under judgment, with the ctx argument supplying its
// client-reported metadata.
func (a *Analyzer) CheckAction(actorID, actionType string, ctx models.ActionContext) models.CheckResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	act := a.activityLocked(actorID, now)

	// Rule 1: still inside the cooldown from the last suspicious hit.
	if !act.LastSuspiciousAt.IsZero() && now.Sub(act.LastSuspiciousAt) < a.cfg.SuspiciousCooldown {
		return models.CheckResult{Suspicious: true, Reason: ReasonSuspiciousCooldown, Confidence: 0.95, Blocked: true}
	}

	// Rule 2: counter exhausted, actor is hard-blocked.
	if act.SuspicionCount >= a.cfg.MaxSuspiciousActions {
		return models.CheckResult{Suspicious: true, Reason: ReasonTooManySuspicious, Confidence: 1.0, Blocked: true}
	}

	if res, hit := a.evaluateSoftRules(act, ctx, now); hit {
		act.SuspicionCount++
		act.LastSuspiciousAt = now
		return res
	}

	return models.OK()
}

// evaluateSoftRules runs rules 3-8 in order against the recorded
// history. It does not mutate the activity.
func (a *Analyzer) evaluateSoftRules(act *models.ActorActivity, ctx models.ActionContext, now time.Time) (models.CheckResult, bool) {
	h := act.Records
	n := len(h)

	// Rule 3: speed violation between the two newest actions.
	if n >= 2 && h[n-1].Timestamp.Sub(h[n-2].Timestamp) < a.cfg.MinActionInterval {
		return models.CheckResult{Suspicious: true, Reason: ReasonActionTooFast, Confidence: 0.95}, true
	}

	// Rule 4: burst rate inside the trailing window.
	cutoff := now.Add(-a.cfg.BurstWindow)
	recent := 0
	for i := n - 1; i >= 0; i-- {
		if h[i].Timestamp.Before(cutoff) {
			break
		}
		recent++
	}
	if recent >= a.cfg.BurstThreshold {
		return models.CheckResult{Suspicious: true, Reason: ReasonTooManyActions, Confidence: 0.9}, true
	}

	// Rule 5: identical action types at near-constant cadence.
	if n >= a.cfg.PatternRepetition {
		tail := h[n-a.cfg.PatternRepetition:]
		same := true
		for _, r := range tail[1:] {
			if r.ActionType != tail[0].ActionType {
				same = false
				break
			}
		}
		if same && intervalVarianceMs2(tail) < a.cfg.PatternVarianceMax {
			return models.CheckResult{Suspicious: true, Reason: ReasonRepetitivePattern, Confidence: 0.9}, true
		}
	}

	// Rule 6: perfect streak. The current action is perfect and the
	// preceding window is dominated by perfects.
	if ctx.Perfect && n >= 2 {
		prior := h[:n-1]
		if len(prior) > a.cfg.PerfectWindow {
			prior = prior[len(prior)-a.cfg.PerfectWindow:]
		}
		perfects := 0
		for _, r := range prior {
			if r.Context.Perfect {
				perfects++
			}
		}
		if perfects >= a.cfg.PerfectThreshold {
			return models.CheckResult{Suspicious: true, Reason: ReasonTooPerfect, Confidence: 0.85}, true
		}
	}

	// Rule 7: machine-like timing. Humans cannot hold a sub-10ms spread
	// across ten consecutive inputs.
	if n >= a.cfg.TimingWindow {
		tail := h[n-a.cfg.TimingWindow:]
		minIv, maxIv := intervalExtremes(tail)
		if maxIv-minIv < a.cfg.TimingSpreadMax && minIv < a.cfg.TimingMinBelow {
			return models.CheckResult{Suspicious: true, Reason: ReasonMachineLikeTiming, Confidence: 0.9}, true
		}
	}

	// Rule 8: rapid state changes across the last few actions.
	if n >= a.cfg.RapidWindow {
		span := h[n-1].Timestamp.Sub(h[n-a.cfg.RapidWindow].Timestamp)
		if span < a.cfg.RapidSpanMax {
			return models.CheckResult{Suspicious: true, Reason: ReasonRapidStateChanges, Confidence: 0.85}, true
		}
	}

	return models.CheckResult{}, false
}

// Snapshot returns a copy of the actor's current activity, or nil if
// the actor has never been seen. Used by the admin/status surface.
func (a *Analyzer) Snapshot(actorID string) *models.ActorActivity {
	a.mu.Lock()
	defer a.mu.Unlock()

	act, ok := a.actors[actorID]
	if !ok {
		return nil
	}
	cp := *act
	cp.Records = append([]models.ActionRecord(nil), act.Records...)
	return &cp
}

// Reset clears tracking for one actor (administrative reset).
func (a *Analyzer) Reset(actorID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.actors, actorID)
}

// ResetAll clears all tracked actors.
func (a *Analyzer) ResetAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actors = make(map[string]*models.ActorActivity)
}

// history returns the actor's recorded actions for cross-detector use
// (the score validator reads the same history it judges against).
func (a *Analyzer) history(actorID string) []models.ActionRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	act, ok := a.actors[actorID]
	if !ok {
		return nil
	}
	return append([]models.ActionRecord(nil), act.Records...)
}

func (a *Analyzer) activityLocked(actorID string, now time.Time) *models.ActorActivity {
	act, ok := a.actors[actorID]
	if !ok {
		act = &models.ActorActivity{FirstSeenAt: now, LastSeenAt: now}
		a.actors[actorID] = act
	}
	return act
}

// intervalVarianceMs2 computes the variance of the inter-arrival
// intervals of the given records, in milliseconds squared.
func intervalVarianceMs2(records []models.ActionRecord) float64 {
	if len(records) < 3 {
		return 0
	}
	intervals := make([]float64, 0, len(records)-1)
	sum := 0.0
	for i := 1; i < len(records); i++ {
		ms := float64(records[i].Timestamp.Sub(records[i-1].Timestamp).Microseconds()) / 1000.0
		intervals = append(intervals, ms)
		sum += ms
	}
	mean := sum / float64(len(intervals))
	variance := 0.0
	for _, v := range intervals {
		diff := v - mean
		variance += diff * diff
	}
	return variance / float64(len(intervals))
}

// intervalExtremes returns the smallest and largest inter-arrival
// interval across the given records.
func intervalExtremes(records []models.ActionRecord) (time.Duration, time.Duration) {
	minIv := time.Duration(1<<63 - 1)
	maxIv := time.Duration(0)
	for i := 1; i < len(records); i++ {
		iv := records[i].Timestamp.Sub(records[i-1].Timestamp)
		if iv < minIv {
			minIv = iv
		}
		if iv > maxIv {
			maxIv = iv
		}
	}
	return minIv, maxIv
}
