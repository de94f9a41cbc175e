package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "5340" {
		t.Errorf("port = %q, want 5340", cfg.Port)
	}
	if cfg.CooldownWindow != 24*time.Hour {
		t.Errorf("cooldown window = %s, want 24h", cfg.CooldownWindow)
	}
	if cfg.Analyzer.MaxHistory != 200 || cfg.Analyzer.MinActionInterval != 50*time.Millisecond {
		t.Errorf("analyzer defaults not applied: %+v", cfg.Analyzer)
	}
	if cfg.Validator.MaxScorePerSecond != 5000 || cfg.Validator.MaxScore != 1000000 {
		t.Errorf("validator defaults not applied: %+v", cfg.Validator)
	}
	if cfg.Referral.MaxPerHour != 3 || cfg.Referral.BlockDuration != time.Hour {
		t.Errorf("referral defaults not applied: %+v", cfg.Referral)
	}
	if cfg.ForcedLossProbability != 0.80 {
		t.Errorf("forced-loss probability = %v, want 0.80", cfg.ForcedLossProbability)
	}
}

func TestLoad_DetectorThresholdOverrides(t *testing.T) {
	t.Setenv("MIN_ACTION_INTERVAL", "80ms")
	t.Setenv("BURST_THRESHOLD", "25")
	t.Setenv("MAX_SUSPICIOUS_ACTIONS", "5")
	t.Setenv("PATTERN_VARIANCE_MAX", "250")
	t.Setenv("MAX_SCORE_PER_SECOND", "9000")
	t.Setenv("ACCURACY_MIN_SAMPLE", "40")
	t.Setenv("REFERRAL_MAX_PER_HOUR", "6")
	t.Setenv("REFERRAL_CHAIN_WINDOW", "10m")

	cfg := Load()

	if cfg.Analyzer.MinActionInterval != 80*time.Millisecond {
		t.Errorf("min interval = %s, want 80ms", cfg.Analyzer.MinActionInterval)
	}
	if cfg.Analyzer.BurstThreshold != 25 || cfg.Analyzer.MaxSuspiciousActions != 5 {
		t.Errorf("analyzer overrides not applied: %+v", cfg.Analyzer)
	}
	if cfg.Analyzer.PatternVarianceMax != 250 {
		t.Errorf("variance max = %v, want 250", cfg.Analyzer.PatternVarianceMax)
	}
	if cfg.Validator.MaxScorePerSecond != 9000 || cfg.Validator.AccuracyMinSample != 40 {
		t.Errorf("validator overrides not applied: %+v", cfg.Validator)
	}
	if cfg.Referral.MaxPerHour != 6 || cfg.Referral.ChainWindow != 10*time.Minute {
		t.Errorf("referral overrides not applied: %+v", cfg.Referral)
	}
}

func TestLoad_ForcedLossZeroIsDisabled(t *testing.T) {
	t.Setenv("FORCED_LOSS_PROBABILITY", "0")

	cfg := Load()
	if cfg.ForcedLossProbability != 0 {
		t.Errorf("probability = %v, want 0 (disabled)", cfg.ForcedLossProbability)
	}
}

func TestLoad_BadValuesFallBack(t *testing.T) {
	t.Setenv("BURST_THRESHOLD", "lots")
	t.Setenv("FORCED_LOSS_PROBABILITY", "1.5")

	cfg := Load()
	if cfg.Analyzer.BurstThreshold != 15 {
		t.Errorf("burst threshold = %d, want default 15", cfg.Analyzer.BurstThreshold)
	}
	if cfg.ForcedLossProbability != 0.80 {
		t.Errorf("probability = %v, want default 0.80", cfg.ForcedLossProbability)
	}
}
