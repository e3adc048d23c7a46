package limit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryRateLimiter 进程内令牌桶：每个 fingerprint 一个桶，
// 每 per 时间补充 limit 个令牌，突发上限为 limit。
type MemoryRateLimiter struct {
	limit int
	every rate.Limit

	mu       sync.Mutex
	limiters map[string]*entry
	now      func() time.Time
}

type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func NewMemoryRateLimiter(limit int, per time.Duration) *MemoryRateLimiter {
	if limit < 1 {
		limit = 1
	}
	if per <= 0 {
		per = 7 * 24 * time.Hour
	}
	return &MemoryRateLimiter{
		limit:    limit,
		every:    rate.Limit(float64(limit) / per.Seconds()),
		limiters: make(map[string]*entry),
		now:      time.Now,
	}
}

func (m *MemoryRateLimiter) Allow(_ context.Context, fingerprint string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.limiters[fingerprint]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(m.every, m.limit)}
		m.limiters[fingerprint] = e
	}
	e.lastAccess = now
	return e.limiter.AllowN(now, 1), nil
}

// Cleanup 删除 idle 时间内没有访问过的桶，返回删除数量
func (m *MemoryRateLimiter) Cleanup(idle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-idle)
	removed := 0
	for k, e := range m.limiters {
		if e.lastAccess.Before(cutoff) {
			delete(m.limiters, k)
			removed++
		}
	}
	return removed
}

// RunCleanup 周期性清理空闲桶，直到 ctx 结束
func (m *MemoryRateLimiter) RunCleanup(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Cleanup(idle)
		}
	}
}
