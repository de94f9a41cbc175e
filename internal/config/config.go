package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/rewardloop/abuse-engine/internal/detect"
)

// Environment-driven configuration. A .env file is honored for local
// development; real deployments set the variables directly. Every
// detector threshold defaults to its production value and can be
// overridden per environment (load tests, staging).

type Config struct {
	Port        string
	DatabaseURL string
	LevelDBPath string

	AuthToken  string
	RiskAPIURL string

	WebhookURL         string
	WebhookMinSeverity string

	CooldownWindow        time.Duration
	ForcedLossProbability float64

	RateLimitPerMinute int
	RateLimitBurst     int

	Analyzer  detect.AnalyzerConfig
	Validator detect.ValidatorConfig
	Referral  detect.ReferralConfig
}

// Load reads configuration from the environment, applying defaults and
// logging warnings for implausible values.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getenv("PORT", "5340"),
		DatabaseURL: getenv("DATABASE_URL", ""),
		LevelDBPath: getenv("LEVELDB_PATH", "abuse-engine.db"),

		AuthToken:  getenv("API_AUTH_TOKEN", ""),
		RiskAPIURL: getenv("RISK_API_URL", ""),

		WebhookURL:         getenv("ALERT_WEBHOOK_URL", ""),
		WebhookMinSeverity: getenv("ALERT_WEBHOOK_MIN_SEVERITY", "high"),

		CooldownWindow:        getduration("COOLDOWN_WINDOW", 24*time.Hour),
		ForcedLossProbability: getfloat("FORCED_LOSS_PROBABILITY", 0.80),

		RateLimitPerMinute: getint("RATE_LIMIT_PER_MINUTE", 120),
		RateLimitBurst:     getint("RATE_LIMIT_BURST", 30),

		Analyzer:  analyzerFromEnv(),
		Validator: validatorFromEnv(),
		Referral:  referralFromEnv(),
	}

	if cfg.DatabaseURL == "" {
		log.Println("[config warning] DATABASE_URL not set; ledgers will use the local fallback store")
	}
	if cfg.ForcedLossProbability < 0 || cfg.ForcedLossProbability > 1 {
		log.Printf("[config warning] FORCED_LOSS_PROBABILITY %v out of [0,1], using default 0.80", cfg.ForcedLossProbability)
		cfg.ForcedLossProbability = 0.80
	}
	if cfg.AuthToken == "" {
		log.Println("[config warning] API_AUTH_TOKEN not set; admin endpoints are unauthenticated (dev mode)")
	}

	return cfg
}

// analyzerFromEnv overlays the action-stream thresholds with any
// environment overrides.
func analyzerFromEnv() detect.AnalyzerConfig {
	c := detect.DefaultAnalyzerConfig()
	c.MaxHistory = getint("ACTION_MAX_HISTORY", c.MaxHistory)
	c.MinActionInterval = getduration("MIN_ACTION_INTERVAL", c.MinActionInterval)
	c.SuspiciousCooldown = getduration("SUSPICIOUS_COOLDOWN", c.SuspiciousCooldown)
	c.MaxSuspiciousActions = getint("MAX_SUSPICIOUS_ACTIONS", c.MaxSuspiciousActions)
	c.BurstWindow = getduration("BURST_WINDOW", c.BurstWindow)
	c.BurstThreshold = getint("BURST_THRESHOLD", c.BurstThreshold)
	c.PatternRepetition = getint("PATTERN_REPETITION", c.PatternRepetition)
	c.PatternVarianceMax = getfloat("PATTERN_VARIANCE_MAX", c.PatternVarianceMax)
	c.PerfectWindow = getint("PERFECT_WINDOW", c.PerfectWindow)
	c.PerfectThreshold = getint("PERFECT_THRESHOLD", c.PerfectThreshold)
	c.TimingWindow = getint("TIMING_WINDOW", c.TimingWindow)
	c.TimingSpreadMax = getduration("TIMING_SPREAD_MAX", c.TimingSpreadMax)
	c.TimingMinBelow = getduration("TIMING_MIN_BELOW", c.TimingMinBelow)
	c.RapidWindow = getint("RAPID_WINDOW", c.RapidWindow)
	c.RapidSpanMax = getduration("RAPID_SPAN_MAX", c.RapidSpanMax)
	return c
}

// validatorFromEnv overlays the score plausibility ceilings with any
// environment overrides.
func validatorFromEnv() detect.ValidatorConfig {
	c := detect.DefaultValidatorConfig()
	c.MaxScorePerSecond = getfloat("MAX_SCORE_PER_SECOND", c.MaxScorePerSecond)
	c.MaxScorePerAction = getfloat("MAX_SCORE_PER_ACTION", c.MaxScorePerAction)
	c.ShortDurationScore = getfloat("SHORT_DURATION_SCORE", c.ShortDurationScore)
	c.ShortDurationSeconds = getfloat("SHORT_DURATION_SECONDS", c.ShortDurationSeconds)
	c.AccuracyLookback = getint("ACCURACY_LOOKBACK", c.AccuracyLookback)
	c.AccuracyMinSample = getint("ACCURACY_MIN_SAMPLE", c.AccuracyMinSample)
	c.AccuracyScoreFloor = getfloat("ACCURACY_SCORE_FLOOR", c.AccuracyScoreFloor)
	c.MaxActionsPerSecond = getfloat("MAX_ACTIONS_PER_SECOND", c.MaxActionsPerSecond)
	c.MaxScore = getfloat("MAX_SCORE", c.MaxScore)
	return c
}

// referralFromEnv overlays the referral-abuse thresholds with any
// environment overrides.
func referralFromEnv() detect.ReferralConfig {
	c := detect.DefaultReferralConfig()
	c.MaxPerHour = getint("REFERRAL_MAX_PER_HOUR", c.MaxPerHour)
	c.MaxPerDay = getint("REFERRAL_MAX_PER_DAY", c.MaxPerDay)
	c.MinInterval = getduration("REFERRAL_MIN_INTERVAL", c.MinInterval)
	c.ChainWindow = getduration("REFERRAL_CHAIN_WINDOW", c.ChainWindow)
	c.SuspicionThreshold = getint("REFERRAL_SUSPICION_THRESHOLD", c.SuspicionThreshold)
	c.BlockDuration = getduration("REFERRAL_BLOCK_DURATION", c.BlockDuration)
	c.DiversityWindow = getduration("REFERRAL_DIVERSITY_WINDOW", c.DiversityWindow)
	c.DiversityMaxActors = getint("REFERRAL_DIVERSITY_MAX_ACTORS", c.DiversityMaxActors)
	c.AttemptRetention = getduration("REFERRAL_ATTEMPT_RETENTION", c.AttemptRetention)
	return c
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getint(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		log.Printf("[config warning] %s=%q is not an integer, using %d", key, val, fallback)
		return fallback
	}
	return n
}

func getfloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		log.Printf("[config warning] %s=%q is not a number, using %v", key, val, fallback)
		return fallback
	}
	return f
}

func getduration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		log.Printf("[config warning] %s=%q is not a duration, using %s", key, val, fallback)
		return fallback
	}
	return d
}
