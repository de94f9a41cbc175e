package detect

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rewardloop/abuse-engine/internal/metrics"
	"github.com/rewardloop/abuse-engine/internal/store"
	"github.com/rewardloop/abuse-engine/pkg/models"
)

// Referral Fraud Guard
//
// Independent per-IP ledger and blocklist for referral claims. Fully
// decoupled from game state; invoked once per claim.
//
// Rule order (first match wins):
//
//   1. active TTL block        — checked before everything else, so a
//                                blocked IP never accumulates attempt
//                                records that could reset its status
//   2. self referral           — referrer and signup are the same actor
//   3. same-IP referral        — referrer transacting from the signup IP
//   4. hourly / daily caps     — successful attempts per IP
//   5. minimum spacing         — attempts less than a minute apart
//   6. address diversity       — young IP already tied to many actors
//   7. chain referral          — the referrer was itself referred from
//                                this IP moments ago
//
// Rules 3, 5, 6 and 7 share an escalation: each hit bumps the IP's
// suspicion counter, and crossing the threshold converts the soft
// rejection into a TTL hard block.

// Rejection reasons returned by ValidateReferral.
const (
	ReasonIPBlocked         = "ip_blocked"
	ReasonSelfReferral      = "self_referral"
	ReasonSameIPReferral    = "same_ip_referral"
	ReasonSuspiciousPattern = "suspicious_pattern"
	ReasonRateLimitExceeded = "rate_limit_exceeded"
	ReasonTooSoon           = "too_soon"
	ReasonTooManyAddresses  = "too_many_addresses"
	ReasonChainReferral     = "chain_referral_same_ip"
)

// ReferralConfig holds the referral-abuse thresholds.
type ReferralConfig struct {
	MaxPerHour         int           // successful referrals per IP per hour
	MaxPerDay          int           // successful referrals per IP per day
	MinInterval        time.Duration // minimum spacing between attempts from one IP
	ChainWindow        time.Duration // lookback for chain-referral detection
	SuspicionThreshold int           // counter value that hard-blocks the IP
	BlockDuration      time.Duration // TTL of a hard block
	DiversityWindow    time.Duration // "young IP" horizon for the diversity rule
	DiversityMaxActors int           // distinct actors a young IP may be tied to
	AttemptRetention   time.Duration // rolling window kept in the attempt ledger
}

// DefaultReferralConfig returns the production thresholds.
func DefaultReferralConfig() ReferralConfig {
	return ReferralConfig{
		MaxPerHour:         3,
		MaxPerDay:          10,
		MinInterval:        60 * time.Second,
		ChainWindow:        5 * time.Minute,
		SuspicionThreshold: 3,
		BlockDuration:      time.Hour,
		DiversityWindow:    time.Hour,
		DiversityMaxActors: 5,
		AttemptRetention:   24 * time.Hour,
	}
}

// ReferralGuard validates referral claims against per-IP history. The
// in-memory ledgers are authoritative; the store is a best-effort
// checkpoint written off the hot path.
type ReferralGuard struct {
	mu      sync.Mutex
	cfg     ReferralConfig
	kv      store.KV
	ips     map[string]*models.IPActivity
	records map[string]*models.IPRecord
	blocks  map[string]models.BlockEntry

	now func() time.Time
}

// NewReferralGuard creates a guard and warm-starts the blocklist from
// the store so TTL bans survive a restart.
func NewReferralGuard(kv store.KV, cfg ReferralConfig) *ReferralGuard {
	def := DefaultReferralConfig()
	if cfg.MaxPerHour <= 0 {
		cfg.MaxPerHour = def.MaxPerHour
	}
	if cfg.MaxPerDay <= 0 {
		cfg.MaxPerDay = def.MaxPerDay
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = def.MinInterval
	}
	if cfg.ChainWindow <= 0 {
		cfg.ChainWindow = def.ChainWindow
	}
	if cfg.SuspicionThreshold <= 0 {
		cfg.SuspicionThreshold = def.SuspicionThreshold
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = def.BlockDuration
	}
	if cfg.DiversityWindow <= 0 {
		cfg.DiversityWindow = def.DiversityWindow
	}
	if cfg.DiversityMaxActors <= 0 {
		cfg.DiversityMaxActors = def.DiversityMaxActors
	}
	if cfg.AttemptRetention <= 0 {
		cfg.AttemptRetention = def.AttemptRetention
	}

	g := &ReferralGuard{
		cfg:     cfg,
		kv:      kv,
		ips:     make(map[string]*models.IPActivity),
		records: make(map[string]*models.IPRecord),
		blocks:  make(map[string]models.BlockEntry),
		now:     time.Now,
	}

	if kv != nil {
		var blocks map[string]models.BlockEntry
		if ok, err := kv.Read(context.Background(), store.NSBlocklist, store.KeyBlocklist, &blocks); err != nil {
			log.Printf("[ReferralGuard] Warning: failed to load blocklist: %v", err)
		} else if ok {
			g.blocks = blocks
		}
	}

	return g
}

// ValidateReferral judges a referral claim. referrerIP may be empty
// when the referrer's origin is unknown.
func (g *ReferralGuard) ValidateReferral(ip, referrerID, newUserID, referrerIP string) models.ReferralResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	// Rule 1: active hard block, evaluated before anything else.
	if entry, ok := g.blocks[ip]; ok {
		if !entry.Expired(now) {
			return models.ReferralResult{Valid: false, Reason: ReasonIPBlocked, Blocked: true}
		}
		delete(g.blocks, ip)
		g.checkpointBlocklistLocked()
	}

	// Rule 2: self referral, independent of IP or history.
	if strings.EqualFold(referrerID, newUserID) {
		return models.ReferralResult{Valid: false, Reason: ReasonSelfReferral}
	}

	act := g.activityLocked(ip, now)
	rec := g.recordLocked(ip, now)

	// Rule 3: referrer transacting from the signup's own IP.
	if referrerIP != "" && referrerIP == ip {
		if g.escalateLocked(ip, act, now) {
			return models.ReferralResult{Valid: false, Reason: ReasonSuspiciousPattern, Blocked: true}
		}
		return models.ReferralResult{Valid: false, Reason: ReasonSameIPReferral}
	}

	// Rule 4: successful-referral caps for this IP.
	hourly, daily := 0, 0
	for _, at := range act.Attempts {
		if !at.Success {
			continue
		}
		age := now.Sub(at.Timestamp)
		if age < time.Hour {
			hourly++
		}
		if age < 24*time.Hour {
			daily++
		}
	}
	if hourly >= g.cfg.MaxPerHour || daily >= g.cfg.MaxPerDay {
		return models.ReferralResult{Valid: false, Reason: ReasonRateLimitExceeded}
	}

	// Rule 5: minimum spacing between attempts.
	if !act.LastAttemptAt.IsZero() && now.Sub(act.LastAttemptAt) < g.cfg.MinInterval {
		if g.escalateLocked(ip, act, now) {
			return models.ReferralResult{Valid: false, Reason: ReasonSuspiciousPattern, Blocked: true}
		}
		return models.ReferralResult{Valid: false, Reason: ReasonTooSoon}
	}

	// Rule 6: a young IP already tied to many distinct actors.
	if now.Sub(rec.FirstSeenAt) < g.cfg.DiversityWindow && len(rec.Actors) > g.cfg.DiversityMaxActors {
		if g.escalateLocked(ip, act, now) {
			return models.ReferralResult{Valid: false, Reason: ReasonSuspiciousPattern, Blocked: true}
		}
		return models.ReferralResult{Valid: false, Reason: ReasonTooManyAddresses}
	}

	// Rule 7: the referrer was itself referred from this IP moments ago.
	for _, at := range act.Attempts {
		if at.Success && now.Sub(at.Timestamp) < g.cfg.ChainWindow && strings.EqualFold(at.NewUserID, referrerID) {
			if g.escalateLocked(ip, act, now) {
				return models.ReferralResult{Valid: false, Reason: ReasonSuspiciousPattern, Blocked: true}
			}
			return models.ReferralResult{Valid: false, Reason: ReasonChainReferral}
		}
	}

	return models.ReferralResult{Valid: true}
}

// RecordAttempt appends the attempt to the IP's rolling ledger and
// updates the long-lived IPRecord, then checkpoints both.
func (g *ReferralGuard) RecordAttempt(ip, referrerID, newUserID string, success bool, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	act := g.activityLocked(ip, now)

	act.Attempts = append(act.Attempts, models.ReferralAttempt{
		ID:         uuid.NewString(),
		IP:         ip,
		ReferrerID: referrerID,
		NewUserID:  newUserID,
		Timestamp:  now,
		Success:    success,
		Reason:     reason,
	})
	act.Attempts = pruneAttempts(act.Attempts, now.Add(-g.cfg.AttemptRetention))
	act.LastAttemptAt = now
	act.UniqueActors[strings.ToLower(referrerID)] = true
	act.UniqueActors[strings.ToLower(newUserID)] = true

	rec := g.recordLocked(ip, now)
	rec.LastSeenAt = now
	rec.Actors = appendActor(rec.Actors, referrerID)
	rec.Actors = appendActor(rec.Actors, newUserID)
	if success {
		rec.SuccessfulReferralCount++
	}

	g.checkpointActivityLocked(ip, act)
	g.checkpointRecordLocked(ip, rec)
}

// IsBlocked reports whether the IP is under an unexpired block.
func (g *ReferralGuard) IsBlocked(ip string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.blocks[ip]
	return ok && !entry.Expired(g.now())
}

// BlockIP imposes a TTL hard block (administrative).
func (g *ReferralGuard) BlockIP(ip, reason string, duration time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if duration <= 0 {
		duration = g.cfg.BlockDuration
	}
	g.blocks[ip] = models.BlockEntry{UnblockAt: g.now().Add(duration), Reason: reason}
	g.checkpointBlocklistLocked()
	log.Printf("[ReferralGuard] Blocked IP %s for %s: %s", ip, duration, reason)
}

// UnblockIP lifts a block (administrative reset). Reports whether an
// entry existed.
func (g *ReferralGuard) UnblockIP(ip string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.blocks[ip]; !ok {
		return false
	}
	delete(g.blocks, ip)
	g.checkpointBlocklistLocked()
	log.Printf("[ReferralGuard] Unblocked IP %s", ip)
	return true
}

// BlockedIPs returns the currently active blocks. Expired entries are
// dropped lazily on the way out.
func (g *ReferralGuard) BlockedIPs() map[string]models.BlockEntry {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	out := make(map[string]models.BlockEntry)
	for ip, entry := range g.blocks {
		if !entry.Expired(now) {
			out[ip] = entry
		}
	}
	return out
}

// escalateLocked bumps the IP's suspicion counter and converts the
// rejection into a TTL block once the threshold is crossed. Returns
// true when the IP is now blocked.
func (g *ReferralGuard) escalateLocked(ip string, act *models.IPActivity, now time.Time) bool {
	act.SuspicionCount++
	act.LastSuspiciousAt = now
	g.checkpointActivityLocked(ip, act)

	if act.SuspicionCount >= g.cfg.SuspicionThreshold {
		g.blocks[ip] = models.BlockEntry{
			UnblockAt: now.Add(g.cfg.BlockDuration),
			Reason:    ReasonSuspiciousPattern,
		}
		g.checkpointBlocklistLocked()
		log.Printf("[ReferralGuard] IP %s hard-blocked until %s (suspicion count %d)",
			ip, g.blocks[ip].UnblockAt.Format(time.RFC3339), act.SuspicionCount)
		return true
	}
	return false
}

// activityLocked returns the IP's ledger, loading it from the store on
// first touch and pruning it to the retention window.
func (g *ReferralGuard) activityLocked(ip string, now time.Time) *models.IPActivity {
	act, ok := g.ips[ip]
	if !ok {
		act = &models.IPActivity{UniqueActors: make(map[string]bool)}
		if g.kv != nil {
			var stored models.IPActivity
			if found, err := g.kv.Read(context.Background(), store.NSIPActivity, ip, &stored); err != nil {
				log.Printf("[ReferralGuard] Warning: failed to load activity for %s: %v", ip, err)
			} else if found {
				act = &stored
				if act.UniqueActors == nil {
					act.UniqueActors = make(map[string]bool)
				}
			}
		}
		g.ips[ip] = act
	}
	act.Attempts = pruneAttempts(act.Attempts, now.Add(-g.cfg.AttemptRetention))
	return act
}

// recordLocked returns the IP's long-lived record, loading it from the
// store on first touch. Never time-pruned.
func (g *ReferralGuard) recordLocked(ip string, now time.Time) *models.IPRecord {
	rec, ok := g.records[ip]
	if !ok {
		rec = &models.IPRecord{FirstSeenAt: now, LastSeenAt: now}
		if g.kv != nil {
			var stored models.IPRecord
			if found, err := g.kv.Read(context.Background(), store.NSIPRecords, ip, &stored); err != nil {
				log.Printf("[ReferralGuard] Warning: failed to load record for %s: %v", ip, err)
			} else if found {
				rec = &stored
			}
		}
		g.records[ip] = rec
	}
	return rec
}

// checkpoint*Locked snapshot the state under the lock and write it out
// on a separate goroutine: the in-memory decision never waits on, or
// rolls back for, a storage write.

func (g *ReferralGuard) checkpointActivityLocked(ip string, act *models.IPActivity) {
	if g.kv == nil {
		return
	}
	snapshot := *act
	snapshot.Attempts = append([]models.ReferralAttempt(nil), act.Attempts...)
	snapshot.UniqueActors = make(map[string]bool, len(act.UniqueActors))
	for k, v := range act.UniqueActors {
		snapshot.UniqueActors[k] = v
	}
	go g.write(store.NSIPActivity, ip, snapshot)
}

func (g *ReferralGuard) checkpointRecordLocked(ip string, rec *models.IPRecord) {
	if g.kv == nil {
		return
	}
	snapshot := *rec
	snapshot.Actors = append([]string(nil), rec.Actors...)
	go g.write(store.NSIPRecords, ip, snapshot)
}

func (g *ReferralGuard) checkpointBlocklistLocked() {
	if g.kv == nil {
		return
	}
	snapshot := make(map[string]models.BlockEntry, len(g.blocks))
	for ip, entry := range g.blocks {
		snapshot[ip] = entry
	}
	go g.write(store.NSBlocklist, store.KeyBlocklist, snapshot)
}

func (g *ReferralGuard) write(namespace, key string, value any) {
	if err := g.kv.Write(context.Background(), namespace, key, value); err != nil {
		metrics.ObserveStoreWriteFailure(namespace)
		log.Printf("[ReferralGuard] Warning: checkpoint %s/%s failed: %v", namespace, key, err)
	}
}

func pruneAttempts(attempts []models.ReferralAttempt, cutoff time.Time) []models.ReferralAttempt {
	kept := attempts[:0]
	for _, at := range attempts {
		if !at.Timestamp.Before(cutoff) {
			kept = append(kept, at)
		}
	}
	return kept
}

func appendActor(actors []string, actor string) []string {
	lowered := strings.ToLower(actor)
	for _, a := range actors {
		if strings.ToLower(a) == lowered {
			return actors
		}
	}
	return append(actors, actor)
}
