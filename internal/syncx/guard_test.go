package syncx

import (
	"sync"
	"testing"
)

func TestGuardGetSet(t *testing.T) {
	g := NewGuard("idle")
	if got := g.Get(); got != "idle" {
		t.Errorf("Get() = %q, want idle", got)
	}

	g.Set("active")
	if got := g.Get(); got != "active" {
		t.Errorf("Get() = %q, want active", got)
	}
}

func TestGuardSwap(t *testing.T) {
	g := NewGuard(1)
	if old := g.Swap(2); old != 1 {
		t.Errorf("Swap returned %d, want 1", old)
	}
	if got := g.Get(); got != 2 {
		t.Errorf("Get() = %d, want 2", got)
	}
}

func TestGuardCompareAndSwap(t *testing.T) {
	g := NewGuard("connecting")

	ok := g.CompareAndSwap("active", func(v string) bool { return v == "connecting" })
	if !ok || g.Get() != "active" {
		t.Errorf("CompareAndSwap failed: ok=%v value=%q", ok, g.Get())
	}

	ok = g.CompareAndSwap("failed", func(v string) bool { return v == "connecting" })
	if ok || g.Get() != "active" {
		t.Errorf("CompareAndSwap should not apply: ok=%v value=%q", ok, g.Get())
	}
}

func TestGuardConcurrentCompareAndSwap(t *testing.T) {
	g := NewGuard(0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				cur := g.Get()
				if g.CompareAndSwap(cur+1, func(v int) bool { return v == cur }) {
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := g.Get(); got != 100 {
		t.Errorf("counter = %d, want 100", got)
	}
}
