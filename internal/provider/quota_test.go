package provider

import (
	"sync"
	"testing"
	"time"
)

func TestDailyQuotaExhaustion(t *testing.T) {
	q := NewDailyQuota(3)
	for i := 0; i < 3; i++ {
		if !q.Allow() {
			t.Fatalf("call %d should be within budget", i)
		}
	}
	if q.Allow() {
		t.Fatal("call past the budget should be denied")
	}
	if q.Remaining() != 0 {
		t.Fatalf("expected 0 remaining, got %d", q.Remaining())
	}
}

func TestDailyQuotaResetsAtUTCMidnight(t *testing.T) {
	now := time.Date(2026, 2, 13, 23, 59, 0, 0, time.UTC)
	q := NewDailyQuota(1)
	q.now = func() time.Time { return now }

	if !q.Allow() {
		t.Fatal("first call should pass")
	}
	if q.Allow() {
		t.Fatal("budget should be exhausted")
	}

	now = now.Add(2 * time.Minute) // crosses the UTC day boundary
	if !q.Allow() {
		t.Fatal("budget should reset on the new UTC day")
	}
}

func TestDailyQuotaConcurrentIncrement(t *testing.T) {
	q := NewDailyQuota(50)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if q.Allow() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Fatalf("expected exactly 50 allowed calls, got %d", allowed)
	}
}
