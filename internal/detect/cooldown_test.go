package detect

import (
	"testing"
	"time"

	"github.com/rewardloop/abuse-engine/internal/store"
)

func TestCooldown_FreshActor(t *testing.T) {
	c := NewCooldownGate(nil, 0)
	clock := newFakeClock()
	c.now = clock.now

	status := c.Check("0xA")
	if !status.CanPlay || status.IsOnCooldown {
		t.Errorf("fresh actor: canPlay = %v onCooldown = %v", status.CanPlay, status.IsOnCooldown)
	}
	if status.LastPlayTime != 0 {
		t.Errorf("lastPlayTime = %d, want 0", status.LastPlayTime)
	}
}

func TestCooldown_StartThenCheck(t *testing.T) {
	c := NewCooldownGate(nil, 0)
	clock := newFakeClock()
	c.now = clock.now

	c.Start("0xB")
	clock.advance(30 * time.Minute)

	status := c.Check("0xB")
	if status.CanPlay || !status.IsOnCooldown {
		t.Fatalf("canPlay = %v onCooldown = %v", status.CanPlay, status.IsOnCooldown)
	}
	want := (23*time.Hour + 30*time.Minute).Milliseconds()
	if status.RemainingMs != want {
		t.Errorf("remainingMs = %d, want %d", status.RemainingMs, want)
	}
	if status.RemainingHours != 23 || status.RemainingMinutes != 30 {
		t.Errorf("remaining = %dh%dm, want 23h30m", status.RemainingHours, status.RemainingMinutes)
	}

	clock.advance(24 * time.Hour)
	status = c.Check("0xB")
	if !status.CanPlay || status.IsOnCooldown {
		t.Errorf("after window: canPlay = %v onCooldown = %v", status.CanPlay, status.IsOnCooldown)
	}
	if status.LastPlayTime == 0 {
		t.Error("lastPlayTime should remain visible after expiry")
	}
}

func TestCooldown_GlobalAcrossActivities(t *testing.T) {
	// The stamp is per actor, not per activity: starting any session
	// locks out every variant.
	c := NewCooldownGate(nil, time.Hour)
	clock := newFakeClock()
	c.now = clock.now

	c.Start("0xC")
	clock.advance(time.Minute)
	if status := c.Check("0xC"); status.CanPlay {
		t.Error("actor should be locked out regardless of which activity stamped")
	}
}

func TestCooldown_SurvivesRestart(t *testing.T) {
	kv := store.NewMemoryKV()
	c1 := NewCooldownGate(kv, time.Hour)
	clock := newFakeClock()
	c1.now = clock.now
	c1.Start("0xD")

	// The checkpoint is written off the hot path; wait for it to land.
	deadline := time.Now().Add(2 * time.Second)
	for {
		c2 := NewCooldownGate(kv, time.Hour)
		c2.now = clock.now
		if status := c2.Check("0xD"); status.IsOnCooldown {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("checkpointed last-play time never became visible")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
