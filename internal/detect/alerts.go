package detect

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rewardloop/abuse-engine/pkg/models"
)

// Alert & Webhook System
//
// Structured alert emission for abuse operations. Alerts are:
//   1. Broadcast via WebSocket to connected dashboards
//   2. Pushed to registered webhook endpoints (Slack, Discord, SIEM)
//   3. Stored in memory for recent alert history
//
// Rate-relevant detail lives in the detectors; this layer only fans
// verdicts out.

// Alert is a structured abuse alert.
type Alert struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Severity   string    `json:"severity"`  // low/medium/high/critical
	AlertType  string    `json:"alertType"` // action_suspicious/score_rejected/referral_rejected/ip_blocked
	ActorID    string    `json:"actorId,omitempty"`
	IP         string    `json:"ip,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Blocked    bool      `json:"blocked"`
}

// WebhookEndpoint is a registered webhook receiver.
type WebhookEndpoint struct {
	Name        string            `json:"name"`
	URL         string            `json:"url"`
	Enabled     bool              `json:"enabled"`
	Headers     map[string]string `json:"headers,omitempty"`
	MinSeverity string            `json:"minSeverity"` // only send alerts >= this severity
}

// AlertManager handles alert emission and webhook delivery.
type AlertManager struct {
	mu            sync.RWMutex
	webhooks      []WebhookEndpoint
	recentAlerts  []Alert
	maxHistory    int
	httpClient    *http.Client
	alertCallback func(Alert) // WebSocket broadcast callback
}

// NewAlertManager creates the alert system. broadcastFn may be nil.
func NewAlertManager(broadcastFn func(Alert)) *AlertManager {
	return &AlertManager{
		webhooks:      make([]WebhookEndpoint, 0),
		recentAlerts:  make([]Alert, 0),
		maxHistory:    1000,
		httpClient:    &http.Client{Timeout: 5 * time.Second},
		alertCallback: broadcastFn,
	}
}

// RegisterWebhook adds a webhook endpoint.
func (am *AlertManager) RegisterWebhook(name, url, minSeverity string, headers map[string]string) {
	am.mu.Lock()
	defer am.mu.Unlock()

	am.webhooks = append(am.webhooks, WebhookEndpoint{
		Name:        name,
		URL:         url,
		Enabled:     true,
		Headers:     headers,
		MinSeverity: minSeverity,
	})

	log.Printf("[AlertManager] Registered webhook: %s → %s (min: %s)", name, url, minSeverity)
}

// EmitAlert processes and distributes an alert.
func (am *AlertManager) EmitAlert(alert Alert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}

	am.mu.Lock()
	am.recentAlerts = append(am.recentAlerts, alert)
	if len(am.recentAlerts) > am.maxHistory {
		am.recentAlerts = am.recentAlerts[len(am.recentAlerts)-am.maxHistory:]
	}
	webhooks := make([]WebhookEndpoint, len(am.webhooks))
	copy(webhooks, am.webhooks)
	am.mu.Unlock()

	if am.alertCallback != nil {
		am.alertCallback(alert)
	}

	// Webhook delivery is async and best-effort.
	for _, wh := range webhooks {
		if !wh.Enabled {
			continue
		}
		if !severityMeetsThreshold(alert.Severity, wh.MinSeverity) {
			continue
		}
		go am.sendWebhook(wh, alert)
	}

	log.Printf("[Alert] [%s] %s: %s (actor: %s, ip: %s)",
		alert.Severity, alert.AlertType, alert.Reason, alert.ActorID, alert.IP)
}

// EmitCheckResult converts a suspicious action/score verdict into an
// alert. Clean results are ignored.
func (am *AlertManager) EmitCheckResult(alertType, actorID string, res models.CheckResult) {
	if !res.Suspicious {
		return
	}
	am.EmitAlert(Alert{
		Severity:   severityFromVerdict(res.Confidence, res.Blocked),
		AlertType:  alertType,
		ActorID:    actorID,
		Reason:     res.Reason,
		Confidence: res.Confidence,
		Blocked:    res.Blocked,
	})
}

// EmitReferralResult converts a rejected referral into an alert.
func (am *AlertManager) EmitReferralResult(ip, referrerID string, res models.ReferralResult) {
	if res.Valid {
		return
	}
	severity := "medium"
	if res.Blocked {
		severity = "critical"
	}
	am.EmitAlert(Alert{
		Severity:  severity,
		AlertType: "referral_rejected",
		ActorID:   referrerID,
		IP:        ip,
		Reason:    res.Reason,
		Blocked:   res.Blocked,
	})
}

// RecentAlerts returns up to limit alerts, most recent first.
func (am *AlertManager) RecentAlerts(limit int) []Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	if limit <= 0 || limit > len(am.recentAlerts) {
		limit = len(am.recentAlerts)
	}

	start := len(am.recentAlerts) - limit
	result := make([]Alert, limit)
	for i := 0; i < limit; i++ {
		result[i] = am.recentAlerts[start+limit-1-i]
	}
	return result
}

// sendWebhook delivers an alert to a webhook endpoint.
func (am *AlertManager) sendWebhook(wh WebhookEndpoint, alert Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		log.Printf("[Webhook] Failed to marshal alert: %v", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, wh.URL, bytes.NewBuffer(payload))
	if err != nil {
		log.Printf("[Webhook] Failed to create request for %s: %v", wh.Name, err)
		return
	}

	req.Header.Set("Content-Type", "application/json")
	for key, val := range wh.Headers {
		req.Header.Set(key, val)
	}

	resp, err := am.httpClient.Do(req)
	if err != nil {
		log.Printf("[Webhook] Failed to send to %s: %v", wh.Name, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Printf("[Webhook] %s returned status %d", wh.Name, resp.StatusCode)
	}
}

// severityFromVerdict maps a verdict to an alert severity.
func severityFromVerdict(confidence float64, blocked bool) string {
	switch {
	case blocked:
		return "critical"
	case confidence >= 0.9:
		return "high"
	case confidence >= 0.85:
		return "medium"
	default:
		return "low"
	}
}

// severityMeetsThreshold checks if a severity level meets the minimum.
func severityMeetsThreshold(severity, minimum string) bool {
	levels := map[string]int{
		"low": 0, "medium": 1, "high": 2, "critical": 3,
	}
	return levels[severity] >= levels[minimum]
}
