package schedule

import (
	"testing"
	"time"

	"github.com/verte-zerg/gazemap/internal/clock"
)

func TestThrottleFirstTriggerRendersImmediately(t *testing.T) {
	c := clock.NewManual(time.Unix(0, 0))
	count := 0
	th := New(c, 100*time.Millisecond, func() { count++ })
	th.Trigger()
	if count != 1 || th.Pending() {
		t.Fatalf("expected immediate render, count=%d pending=%v", count, th.Pending())
	}
}

func TestThrottleBurstCoalesces(t *testing.T) {
	c := clock.NewManual(time.Unix(0, 0))
	var at []time.Duration
	start := c.Now()
	th := New(c, 100*time.Millisecond, func() { at = append(at, c.Now().Sub(start)) })

	th.Trigger()
	for i := 0; i < 20; i++ {
		c.Advance(time.Millisecond)
		th.Trigger()
	}
	if len(at) != 1 {
		t.Fatalf("expected one render during burst, got %v", at)
	}
	c.Advance(200 * time.Millisecond)
	if len(at) != 2 {
		t.Fatalf("expected one trailing render, got %v", at)
	}
	if at[1] != 100*time.Millisecond {
		t.Fatalf("expected trailing render at the window boundary, got %v", at[1])
	}
}

func TestThrottleRemainingDelay(t *testing.T) {
	c := clock.NewManual(time.Unix(0, 0))
	count := 0
	th := New(c, 100*time.Millisecond, func() { count++ })
	th.Trigger()
	c.Advance(60 * time.Millisecond)
	th.Trigger()
	c.Advance(39 * time.Millisecond)
	if count != 1 {
		t.Fatalf("rendered too early")
	}
	c.Advance(time.Millisecond)
	if count != 2 {
		t.Fatalf("expected render after remaining 40ms, count=%d", count)
	}
}

func TestThrottleSpacedTriggers(t *testing.T) {
	c := clock.NewManual(time.Unix(0, 0))
	count := 0
	th := New(c, 100*time.Millisecond, func() { count++ })
	for i := 0; i < 3; i++ {
		th.Trigger()
		c.Advance(150 * time.Millisecond)
	}
	if count != 3 || th.Pending() {
		t.Fatalf("expected 3 immediate renders, got %d", count)
	}
}

func TestThrottleCancel(t *testing.T) {
	c := clock.NewManual(time.Unix(0, 0))
	count := 0
	th := New(c, 100*time.Millisecond, func() { count++ })
	th.Trigger()
	th.Trigger()
	th.Cancel()
	c.Advance(time.Second)
	if count != 1 {
		t.Fatalf("cancelled render ran, count=%d", count)
	}
}
