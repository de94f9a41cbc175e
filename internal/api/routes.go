package api

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rewardloop/abuse-engine/internal/detect"
	"github.com/rewardloop/abuse-engine/internal/iprisk"
	"github.com/rewardloop/abuse-engine/internal/metrics"
	"github.com/rewardloop/abuse-engine/pkg/models"
)

// Deps carries everything the router needs. Detectors share only the
// persistence layer underneath, never in-process state.
type Deps struct {
	Analyzer     *detect.Analyzer
	Validator    *detect.ScoreValidator
	Guard        *detect.ReferralGuard
	Cooldown     *detect.CooldownGate
	ForcedLoss   *detect.ForcedLoss
	Alerts       *detect.AlertManager
	Risk         *iprisk.Client
	Hub          *Hub
	StoreBackend string
	AuthToken    string
}

type apiHandler struct {
	deps Deps
}

// SetupRouter builds the gin engine with all routes and middleware.
func SetupRouter(deps Deps, rateLimiter *RateLimiter) *gin.Engine {
	r := gin.Default()

	// CORS — configurable via ALLOWED_ORIGINS env var.
	// Production: ALLOWED_ORIGINS=https://app.rewardloop.io
	// Development: leave empty for *
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	r.Use(metrics.Middleware())

	handler := &apiHandler{deps: deps}

	api := r.Group("/api/v1")
	if rateLimiter != nil {
		api.Use(rateLimiter.Middleware())
	}
	{
		api.POST("/actions/record", handler.handleRecordAction)
		api.POST("/actions/check", handler.handleCheckAction)
		api.POST("/scores/validate", handler.handleValidateScore)
		api.POST("/referrals/validate", handler.handleValidateReferral)
		api.POST("/cooldown/check", handler.handleCooldownCheck)
		api.POST("/cooldown/start", handler.handleCooldownStart)
		api.POST("/rewards/decide", handler.handleDecideReward)
		api.GET("/difficulty/:actorId/:activityId", handler.handleDifficulty)
		api.GET("/health", handler.handleHealth)
		api.GET("/stream", deps.Hub.Subscribe)
	}

	admin := api.Group("/admin")
	admin.Use(AuthMiddleware(deps.AuthToken))
	{
		admin.GET("/actor/:actorId", handler.handleActorStatus)
		admin.GET("/blocked-ips", handler.handleBlockedIPs)
		admin.POST("/block-ip", handler.handleBlockIP)
		admin.POST("/unblock-ip", handler.handleUnblockIP)
		admin.POST("/reset-actor", handler.handleResetActor)
		admin.GET("/alerts", handler.handleAlerts)
	}

	r.GET("/metrics", metrics.Handler())

	return r
}

type actionRequest struct {
	ActorID    string               `json:"actorId" binding:"required"`
	ActionType string               `json:"actionType" binding:"required"`
	Context    models.ActionContext `json:"context"`
}

// handleRecordAction appends an action to the actor's history without
// judging it. Always succeeds given a well-formed body.
func (h *apiHandler) handleRecordAction(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {actorId, actionType, context?}"})
		return
	}

	h.deps.Analyzer.RecordAction(req.ActorID, req.ActionType, req.Context)
	c.JSON(http.StatusOK, gin.H{"recorded": true})
}

// handleCheckAction records the action and classifies it in one call.
// Hard blocks map to 403; soft suspicion still returns 200 with the
// verdict so the caller decides the user-facing outcome.
func (h *apiHandler) handleCheckAction(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {actorId, actionType, context?}"})
		return
	}

	h.deps.Analyzer.RecordAction(req.ActorID, req.ActionType, req.Context)
	result := h.deps.Analyzer.CheckAction(req.ActorID, req.ActionType, req.Context)

	if result.Suspicious {
		metrics.ObserveSuspiciousAction(result.Reason)
		h.deps.Alerts.EmitCheckResult("action_suspicious", req.ActorID, result)
	}

	status := http.StatusOK
	if result.Blocked {
		status = http.StatusForbidden
	}
	c.JSON(status, result)
}

type scoreRequest struct {
	ActorID         string  `json:"actorId" binding:"required"`
	ActivityID      string  `json:"activityId"`
	Score           float64 `json:"score"`
	DurationSeconds float64 `json:"durationSeconds"`
	ActionsCount    int     `json:"actionsCount"`
}

// handleValidateScore runs the post-session plausibility checks.
func (h *apiHandler) handleValidateScore(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {actorId, activityId, score, durationSeconds, actionsCount}"})
		return
	}

	result := h.deps.Validator.ValidateScore(req.ActorID, req.Score, req.DurationSeconds, req.ActionsCount, req.ActivityID)

	if result.Suspicious {
		metrics.ObserveRejectedScore(result.Reason)
		h.deps.Alerts.EmitCheckResult("score_rejected", req.ActorID, result)
	}

	status := http.StatusOK
	if result.Blocked {
		status = http.StatusForbidden
	}
	c.JSON(status, result)
}

type referralRequest struct {
	ReferrerID string `json:"referrerId" binding:"required"`
	NewUserID  string `json:"newUserId" binding:"required"`
	ReferrerIP string `json:"referrerIp"`
}

// handleValidateReferral judges a referral claim. The signup IP comes
// from the request headers, never the body. blocked=true maps to 403,
// a plain rejection to 400. The risk lookup result is informational.
func (h *apiHandler) handleValidateReferral(c *gin.Context) {
	var req referralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {referrerId, newUserId, referrerIp?}"})
		return
	}

	ip := ClientIP(c.Request.Header)
	result := h.deps.Guard.ValidateReferral(ip, req.ReferrerID, req.NewUserID, req.ReferrerIP)

	// A blocked IP must not accumulate further attempt records that
	// could reset its status.
	if result.Reason != detect.ReasonIPBlocked {
		h.deps.Guard.RecordAttempt(ip, req.ReferrerID, req.NewUserID, result.Valid, result.Reason)
	}

	if !result.Valid {
		metrics.ObserveRejectedReferral(result.Reason, result.Blocked)
		h.deps.Alerts.EmitReferralResult(ip, req.ReferrerID, result)
	}

	risk := iprisk.LowRisk(ip)
	if h.deps.Risk != nil {
		risk = h.deps.Risk.Lookup(c.Request.Context(), ip)
	}

	status := http.StatusOK
	if result.Blocked {
		status = http.StatusForbidden
	} else if !result.Valid {
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{
		"valid":   result.Valid,
		"reason":  result.Reason,
		"blocked": result.Blocked,
		"risk":    risk,
	})
}

type cooldownRequest struct {
	ActorID    string `json:"actorId" binding:"required"`
	ActivityID string `json:"activityId"`
}

// handleCooldownCheck returns the actor's global cooldown status. The
// activityId is accepted for the caller's contract but the gate is
// activity-independent: one play locks out everything.
func (h *apiHandler) handleCooldownCheck(c *gin.Context) {
	var req cooldownRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {actorId, activityId?}"})
		return
	}

	c.JSON(http.StatusOK, h.deps.Cooldown.Check(req.ActorID))
}

func (h *apiHandler) handleCooldownStart(c *gin.Context) {
	var req cooldownRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {actorId}"})
		return
	}

	h.deps.Cooldown.Start(req.ActorID)
	c.JSON(http.StatusOK, gin.H{"started": true})
}

type rewardRequest struct {
	ActorID string `json:"actorId" binding:"required"`
	Won     bool   `json:"won"`
}

// handleDecideReward applies the forced-loss overlay at reward time and
// starts the global cooldown: issuing (or denying) a reward is the
// terminal state of a session.
func (h *apiHandler) handleDecideReward(c *gin.Context) {
	var req rewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {actorId, won}"})
		return
	}

	forced := false
	payout := req.Won
	if payout {
		forced = h.deps.ForcedLoss.ShouldForceLoss(req.ActorID, req.Won)
		if forced {
			payout = false
		}
	}

	h.deps.Cooldown.Start(req.ActorID)

	c.JSON(http.StatusOK, gin.H{
		"payout": payout,
		"forced": forced,
	})
}

// handleDifficulty returns the deterministic difficulty for an
// (actor, activity) pair. Optional min/max query params default to 1..3.
func (h *apiHandler) handleDifficulty(c *gin.Context) {
	actorID := c.Param("actorId")
	activityID := c.Param("activityId")

	min, _ := strconv.Atoi(c.DefaultQuery("min", "1"))
	max, _ := strconv.Atoi(c.DefaultQuery("max", "3"))
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}

	difficulty := detect.RandomDifficulty(actorID, activityID, min, max)
	c.JSON(http.StatusOK, gin.H{
		"difficulty": difficulty,
		"multiplier": detect.DifficultyMultiplier(difficulty),
	})
}

// handleHealth returns engine status and capabilities for service
// discovery.
func (h *apiHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
		"engine": "RewardLoop Anti-Abuse Engine v1.0",
		"capabilities": gin.H{
			"action_stream":   true,
			"score_validator": true,
			"referral_guard":  true,
			"cooldown_gate":   true,
			"forced_loss":     true,
			"ip_risk_lookup":  h.deps.Risk != nil,
		},
		"storeBackend": h.deps.StoreBackend,
	})
}

// handleActorStatus returns the actor's recorded activity and cooldown
// state for operator inspection.
func (h *apiHandler) handleActorStatus(c *gin.Context) {
	actorID := c.Param("actorId")

	snapshot := h.deps.Analyzer.Snapshot(actorID)
	if snapshot == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Actor has no recorded activity"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"actorId":  actorID,
		"activity": snapshot,
		"cooldown": h.deps.Cooldown.Check(actorID),
	})
}

func (h *apiHandler) handleBlockedIPs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"blocked": h.deps.Guard.BlockedIPs()})
}

type blockIPRequest struct {
	IP         string `json:"ip" binding:"required"`
	Reason     string `json:"reason"`
	DurationMs int64  `json:"durationMs"`
}

func (h *apiHandler) handleBlockIP(c *gin.Context) {
	var req blockIPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {ip, reason?, durationMs?}"})
		return
	}

	h.deps.Guard.BlockIP(req.IP, req.Reason, time.Duration(req.DurationMs)*time.Millisecond)
	c.JSON(http.StatusOK, gin.H{"blocked": true})
}

type unblockIPRequest struct {
	IP string `json:"ip" binding:"required"`
}

func (h *apiHandler) handleUnblockIP(c *gin.Context) {
	var req unblockIPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {ip}"})
		return
	}

	if !h.deps.Guard.UnblockIP(req.IP) {
		c.JSON(http.StatusNotFound, gin.H{"error": "IP is not blocked"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unblocked": true})
}

type resetActorRequest struct {
	ActorID string `json:"actorId" binding:"required"`
}

// handleResetActor clears an actor's action history and suspicion
// counter (the explicit administrative reset).
func (h *apiHandler) handleResetActor(c *gin.Context) {
	var req resetActorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {actorId}"})
		return
	}

	h.deps.Analyzer.Reset(req.ActorID)
	log.Printf("[Admin] Reset actor %s", req.ActorID)
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

func (h *apiHandler) handleAlerts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	c.JSON(http.StatusOK, gin.H{"alerts": h.deps.Alerts.RecentAlerts(limit)})
}

// BroadcastAlert returns the hub-wiring callback for the alert manager.
func BroadcastAlert(hub *Hub) func(detect.Alert) {
	return func(alert detect.Alert) {
		payload := gin.H{
			"type":  "abuse_alert",
			"alert": alert,
		}
		data, _ := json.Marshal(payload)
		hub.Broadcast(data)
	}
}
