package detect

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/rewardloop/abuse-engine/internal/metrics"
	"github.com/rewardloop/abuse-engine/internal/store"
	"github.com/rewardloop/abuse-engine/pkg/models"
)

// Cooldown Gate
//
// One global last-play timestamp per actor, shared across every game
// variant: any completed or claimed activity locks out all activities
// for the window. Checked before admitting a session and started at the
// session's terminal state.

// CooldownGate tracks the per-actor last-play timestamp.
type CooldownGate struct {
	mu     sync.Mutex
	window time.Duration
	kv     store.KV
	last   map[string]time.Time

	now func() time.Time
}

// DefaultCooldownWindow is the production lockout window.
const DefaultCooldownWindow = 24 * time.Hour

// NewCooldownGate creates a gate with the given window (defaults to
// 24h when zero).
func NewCooldownGate(kv store.KV, window time.Duration) *CooldownGate {
	if window <= 0 {
		window = DefaultCooldownWindow
	}
	return &CooldownGate{
		window: window,
		kv:     kv,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Check reports whether the actor is still inside the cooldown window
// and how long remains, broken into hours and minutes for display.
func (c *CooldownGate) Check(actorID string) models.CooldownStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	last := c.lastPlayLocked(actorID)

	status := models.CooldownStatus{CanPlay: true}
	if last.IsZero() {
		return status
	}

	status.LastPlayTime = last.UnixMilli()
	elapsed := now.Sub(last)
	if elapsed >= c.window {
		return status
	}

	remaining := c.window - elapsed
	status.IsOnCooldown = true
	status.CanPlay = false
	status.RemainingMs = remaining.Milliseconds()
	status.RemainingHours = int(remaining / time.Hour)
	status.RemainingMinutes = int((remaining % time.Hour) / time.Minute)
	return status
}

// Start stamps the actor's last-play time to now and checkpoints it.
func (c *CooldownGate) Start(actorID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.last[actorID] = now

	if c.kv != nil {
		go func() {
			if err := c.kv.Write(context.Background(), store.NSCooldowns, actorID, now); err != nil {
				metrics.ObserveStoreWriteFailure(store.NSCooldowns)
				log.Printf("[Cooldown] Warning: checkpoint for %s failed: %v", actorID, err)
			}
		}()
	}
}

// lastPlayLocked returns the actor's last-play time, loading it from
// the store on first touch.
func (c *CooldownGate) lastPlayLocked(actorID string) time.Time {
	if last, ok := c.last[actorID]; ok {
		return last
	}
	var stored time.Time
	if c.kv != nil {
		if found, err := c.kv.Read(context.Background(), store.NSCooldowns, actorID, &stored); err != nil {
			log.Printf("[Cooldown] Warning: failed to load last play for %s: %v", actorID, err)
		} else if found {
			c.last[actorID] = stored
		}
	}
	return stored
}
