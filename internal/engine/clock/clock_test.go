package clock

import (
	"sync"
	"testing"
)

func TestTickIsStrictlyIncreasing(t *testing.T) {
	c := New()
	prev := c.Base()
	for i := 0; i < 1000; i++ {
		next := c.Tick()
		if !prev.Less(next) {
			t.Fatalf("tick %d: expected %v < %v", i, prev, next)
		}
		prev = next
	}
}

func TestBaseIsSmallerThanTicks(t *testing.T) {
	c := New()
	ts := c.Tick()
	if !c.Base().Less(ts) {
		t.Fatalf("expected base %v < tick %v", c.Base(), ts)
	}
	if !Zero.Less(c.Base()) {
		t.Fatalf("expected zero < base")
	}
	if c.Base() != c.Base() {
		t.Fatal("base must be a fixed sentinel")
	}
}

func TestZeroValueClock(t *testing.T) {
	var c Clock
	first := c.Tick()
	if !c.Base().Less(first) {
		t.Fatalf("zero-value clock produced %v, want > base", first)
	}
	if c.Current() != first {
		t.Fatalf("current = %v, want %v", c.Current(), first)
	}
}

func TestConcurrentTicksAreUnique(t *testing.T) {
	c := New()
	const workers, perWorker = 8, 500

	var mu sync.Mutex
	seen := make(map[Timestamp]bool, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]Timestamp, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, c.Tick())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, ts := range local {
				if seen[ts] {
					t.Errorf("duplicate timestamp %v", ts)
				}
				seen[ts] = true
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Fatalf("expected %d unique timestamps, got %d", workers*perWorker, len(seen))
	}
}
