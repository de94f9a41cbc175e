package main

import (
	"context"
	"log"
	"time"

	"github.com/rewardloop/abuse-engine/internal/api"
	"github.com/rewardloop/abuse-engine/internal/config"
	"github.com/rewardloop/abuse-engine/internal/detect"
	"github.com/rewardloop/abuse-engine/internal/iprisk"
	"github.com/rewardloop/abuse-engine/internal/store"
)

func main() {
	log.Println("Starting RewardLoop Anti-Abuse Engine...")

	cfg := config.Load()

	// Layered persistence: Postgres → LevelDB file → memory. The
	// engine keeps serving on the in-memory view whichever backend is
	// active.
	kv := store.Open(context.Background(), cfg.DatabaseURL, cfg.LevelDBPath)
	defer kv.Close()
	log.Printf("Persistence backend: %s", kv.Backend())

	analyzer := detect.NewAnalyzer(cfg.Analyzer)
	validator := detect.NewScoreValidator(analyzer, cfg.Validator)
	guard := detect.NewReferralGuard(kv, cfg.Referral)

	cooldown := detect.NewCooldownGate(kv, cfg.CooldownWindow)
	forcedLoss := detect.NewForcedLoss(cfg.ForcedLossProbability)

	// WebSocket hub feeding live alerts to dashboards.
	wsHub := api.NewHub()
	go wsHub.Run()

	alerts := detect.NewAlertManager(api.BroadcastAlert(wsHub))
	if cfg.WebhookURL != "" {
		alerts.RegisterWebhook("ops", cfg.WebhookURL, cfg.WebhookMinSeverity, nil)
	}

	riskClient := iprisk.NewClient(cfg.RiskAPIURL, 2*time.Second)

	rateLimiter := api.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)

	r := api.SetupRouter(api.Deps{
		Analyzer:     analyzer,
		Validator:    validator,
		Guard:        guard,
		Cooldown:     cooldown,
		ForcedLoss:   forcedLoss,
		Alerts:       alerts,
		Risk:         riskClient,
		Hub:          wsHub,
		StoreBackend: kv.Backend(),
		AuthToken:    cfg.AuthToken,
	}, rateLimiter)

	log.Printf("Engine running on :%s\n", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
