// internal/limit/redis_limiter.go
package limit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RateLimiter 抽象：根据 fingerprint 判断是否允许访问
type RateLimiter interface {
	Allow(ctx context.Context, fingerprint string) (bool, error)
}

// RedisRateLimiter: 每个 fingerprint 在「当前时间到下一个周四凌晨」这段窗口里有 N 次配额
type RedisRateLimiter struct {
	Client    *redis.Client
	Limit     int
	KeyPrefix string
}

func NewRedisRateLimiter(client *redis.Client, limit int, prefix string) *RedisRateLimiter {
	return &RedisRateLimiter{
		Client:    client,
		Limit:     limit,
		KeyPrefix: prefix,
	}
}

// nextThursdayMidnight 计算 now 之后的下一个周四 00:00（当天是周四时取下周）
func nextThursdayMidnight(now time.Time) time.Time {
	daysUntilThursday := (int(time.Thursday) - int(now.Weekday()) + 7) % 7
	if daysUntilThursday == 0 {
		daysUntilThursday = 7
	}
	thursday := now.AddDate(0, 0, daysUntilThursday)
	return time.Date(thursday.Year(), thursday.Month(), thursday.Day(), 0, 0, 0, 0, thursday.Location())
}

func (r *RedisRateLimiter) Allow(ctx context.Context, fingerprint string) (bool, error) {
	key := r.KeyPrefix + fingerprint

	// 不存在则初始化；SETNX 避免并发请求重复写入配额
	expireAt := nextThursdayMidnight(time.Now())
	created, err := r.Client.SetNX(ctx, key, r.Limit, time.Until(expireAt)).Result()
	if err != nil {
		return false, err
	}
	if created {
		log.Info().Str("fingerprint", fingerprint).Int("limit", r.Limit).
			Time("expireAt", expireAt).Msg("新设备指纹已设置访问限制")
	}

	// DECR 不改变 TTL；结果小于 0 说明配额已用完
	left, err := r.Client.Decr(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return left >= 0, nil
}
