package provider

import (
	"sync"
	"time"
)

// DailyQuota tracks a provider-imposed daily call budget. The counter
// resets at the UTC midnight boundary. Allow is safe for concurrent
// pipelines: increment and check happen under one lock so parallel
// callers cannot collectively exceed the budget.
type DailyQuota struct {
	mu    sync.Mutex
	limit int
	used  int
	day   time.Time
	now   func() time.Time
}

func NewDailyQuota(limit int) *DailyQuota {
	return &DailyQuota{limit: limit, now: time.Now}
}

// Allow consumes one call from today's budget. It returns false once
// the budget is exhausted; callers must then short-circuit locally
// without a network round-trip.
func (q *DailyQuota) Allow() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	today := q.now().UTC().Truncate(24 * time.Hour)
	if !today.Equal(q.day) {
		q.day = today
		q.used = 0
	}
	if q.limit > 0 && q.used >= q.limit {
		return false
	}
	q.used++
	return true
}

// Remaining reports how many calls are left in the current UTC day.
func (q *DailyQuota) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	today := q.now().UTC().Truncate(24 * time.Hour)
	if !today.Equal(q.day) {
		return q.limit
	}
	left := q.limit - q.used
	if left < 0 {
		return 0
	}
	return left
}
