package clock

import (
	"testing"
	"time"
)

func TestManualFiresInDeadlineOrder(t *testing.T) {
	c := NewManual(time.Unix(0, 0))
	var order []string
	c.AfterFunc(200*time.Millisecond, func() { order = append(order, "b") })
	c.AfterFunc(100*time.Millisecond, func() { order = append(order, "a") })
	c.Advance(150 * time.Millisecond)
	if len(order) != 1 || order[0] != "a" {
		t.Fatalf("expected only a to fire, got %v", order)
	}
	c.Advance(100 * time.Millisecond)
	if len(order) != 2 || order[1] != "b" {
		t.Fatalf("expected b to fire second, got %v", order)
	}
	if c.Pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", c.Pending())
	}
}

func TestManualStop(t *testing.T) {
	c := NewManual(time.Unix(0, 0))
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Fatalf("expected stop to report a pending timer")
	}
	if timer.Stop() {
		t.Fatalf("expected second stop to report false")
	}
	c.Advance(2 * time.Second)
	if fired {
		t.Fatalf("stopped timer fired")
	}
}

func TestManualNowDuringCallback(t *testing.T) {
	start := time.Unix(10, 0)
	c := NewManual(start)
	var seen time.Time
	c.AfterFunc(300*time.Millisecond, func() { seen = c.Now() })
	c.Advance(time.Second)
	if !seen.Equal(start.Add(300 * time.Millisecond)) {
		t.Fatalf("expected callback to see its deadline, got %v", seen)
	}
	if !c.Now().Equal(start.Add(time.Second)) {
		t.Fatalf("expected clock at target after advance")
	}
}

func TestManualChainedTimer(t *testing.T) {
	c := NewManual(time.Unix(0, 0))
	count := 0
	var arm func()
	arm = func() {
		c.AfterFunc(100*time.Millisecond, func() {
			count++
			if count < 3 {
				arm()
			}
		})
	}
	arm()
	c.Advance(time.Second)
	if count != 3 {
		t.Fatalf("expected 3 chained firings, got %d", count)
	}
}
