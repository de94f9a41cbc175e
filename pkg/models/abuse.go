package models

import "time"

// ActionContext carries the per-action metadata submitted by the game
// client alongside each input. It is stored verbatim in the action
// history and consulted by the streak and accuracy rules.
type ActionContext struct {
	Perfect bool              `json:"perfect,omitempty"` // client reported a perfect hit/answer
	Failed  bool              `json:"failed,omitempty"`  // client reported a miss/failure
	Meta    map[string]string `json:"meta,omitempty"`
}

// ActionRecord is a single recorded game input. Immutable once created.
type ActionRecord struct {
	Timestamp  time.Time     `json:"timestamp"`
	ActionType string        `json:"actionType"`
	Context    ActionContext `json:"context"`
}

// ActorActivity is the bounded per-actor action history plus the
// suspicion bookkeeping the stream analyzer maintains for that actor.
type ActorActivity struct {
	Records          []ActionRecord `json:"records"`
	SuspicionCount   int            `json:"suspicionCount"`
	LastSuspiciousAt time.Time      `json:"lastSuspiciousAt"`
	FirstSeenAt      time.Time      `json:"firstSeenAt"`
	LastSeenAt       time.Time      `json:"lastSeenAt"`
}

// CheckResult is the structured verdict returned by the action stream
// analyzer and the score validator. Detectors never return errors for
// decisions; the HTTP layer alone maps results to status codes.
type CheckResult struct {
	Suspicious bool    `json:"suspicious"`
	Reason     string  `json:"reason,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Blocked    bool    `json:"blocked"`
}

// OK is the non-suspicious result.
func OK() CheckResult {
	return CheckResult{}
}

// ReferralResult is the verdict for a single referral claim.
// Blocked=true maps to forbidden, Valid=false with Blocked=false to a
// plain bad request.
type ReferralResult struct {
	Valid   bool   `json:"valid"`
	Reason  string `json:"reason,omitempty"`
	Blocked bool   `json:"blocked,omitempty"`
}

// ReferralAttempt is one referral claim observed from an IP.
// Append-only; the per-IP list is pruned to a rolling 24h window.
type ReferralAttempt struct {
	ID         string    `json:"id"`
	IP         string    `json:"ip"`
	ReferrerID string    `json:"referrerId"`
	NewUserID  string    `json:"newUserId"`
	Timestamp  time.Time `json:"timestamp"`
	Success    bool      `json:"success"`
	Reason     string    `json:"reason,omitempty"`
}

// IPActivity is the rolling 24h referral ledger for one IP.
type IPActivity struct {
	Attempts         []ReferralAttempt `json:"attempts"`
	LastAttemptAt    time.Time         `json:"lastAttemptAt"`
	UniqueActors     map[string]bool   `json:"uniqueActors"`
	SuspicionCount   int               `json:"suspicionCount"`
	LastSuspiciousAt time.Time         `json:"lastSuspiciousAt"`
}

// IPRecord is the long-lived, never-pruned view of an IP, used for
// address diversity detection across the IP's whole lifetime.
type IPRecord struct {
	Actors                  []string  `json:"actors"`
	FirstSeenAt             time.Time `json:"firstSeenAt"`
	LastSeenAt              time.Time `json:"lastSeenAt"`
	SuccessfulReferralCount int       `json:"successfulReferralCount"`
}

// BlockEntry is a TTL hard block. Presence with an unexpired UnblockAt
// means the IP is denied before any other rule runs. Expiry is lazy:
// compared against now at read time, never swept by a timer.
type BlockEntry struct {
	UnblockAt time.Time `json:"unblockAt"`
	Reason    string    `json:"reason,omitempty"`
}

// Expired reports whether the block has lapsed as of now.
func (b BlockEntry) Expired(now time.Time) bool {
	return !now.Before(b.UnblockAt)
}

// CooldownStatus is the cooldown gate response contract.
type CooldownStatus struct {
	IsOnCooldown     bool  `json:"isOnCooldown"`
	CanPlay          bool  `json:"canPlay"`
	LastPlayTime     int64 `json:"lastPlayTime"` // epoch ms, 0 if never played
	RemainingMs      int64 `json:"remainingMs"`
	RemainingHours   int   `json:"remainingHours"`
	RemainingMinutes int   `json:"remainingMinutes"`
}
