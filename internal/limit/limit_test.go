package limit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextThursdayMidnight(t *testing.T) {
	loc := time.UTC
	cases := []struct {
		now  time.Time
		want time.Time
	}{
		// 周一 → 同周周四
		{time.Date(2025, 3, 3, 15, 4, 0, 0, loc), time.Date(2025, 3, 6, 0, 0, 0, 0, loc)},
		// 周四当天 → 下周四
		{time.Date(2025, 3, 6, 0, 0, 1, 0, loc), time.Date(2025, 3, 13, 0, 0, 0, 0, loc)},
		// 周六 → 下周四
		{time.Date(2025, 3, 8, 23, 0, 0, 0, loc), time.Date(2025, 3, 13, 0, 0, 0, 0, loc)},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, nextThursdayMidnight(tc.now), tc.now.String())
	}
}

func TestMemoryRateLimiter_BurstThenRefill(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryRateLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "device-a")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "device-a")
	assert.False(t, ok)

	// 其他设备不受影响
	ok, _ = l.Allow(ctx, "device-b")
	assert.True(t, ok)

	now = now.Add(30 * time.Second)
	ok, _ = l.Allow(ctx, "device-a")
	assert.True(t, ok)
}

func TestMemoryRateLimiter_Cleanup(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryRateLimiter(1, time.Minute)
	l.now = func() time.Time { return now }

	_, _ = l.Allow(context.Background(), "old")
	now = now.Add(time.Hour)
	_, _ = l.Allow(context.Background(), "fresh")

	assert.Equal(t, 1, l.Cleanup(10*time.Minute))
}
