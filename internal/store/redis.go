package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisStore 使用 Redis 字符串保存文档，并用 ZSET 维护每个集合的时间索引。
// 过期的文档会在 List 时从索引中清理。
type RedisStore struct {
	Client    *redis.Client
	KeyPrefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		Client:    client,
		KeyPrefix: prefix,
	}
}

func (r *RedisStore) key(collection, id string) string {
	return r.KeyPrefix + collection + ":" + id
}

func (r *RedisStore) index(collection string) string {
	return r.KeyPrefix + collection + ":_index"
}

func (r *RedisStore) Put(ctx context.Context, collection, id string, value []byte, ttl time.Duration) error {
	pipe := r.Client.TxPipeline()
	pipe.Set(ctx, r.key(collection, id), value, ttl)
	// NX：覆盖写不改变原始排序
	pipe.ZAddNX(ctx, r.index(collection), redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: id,
	})
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	raw, err := r.Client.Get(ctx, r.key(collection, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return raw, err
}

func (r *RedisStore) Delete(ctx context.Context, collection, id string) error {
	pipe := r.Client.TxPipeline()
	delCmd := pipe.Del(ctx, r.key(collection, id))
	pipe.ZRem(ctx, r.index(collection), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if delCmd.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// List 分页读取索引，跳过并清理已过期的成员，直到凑满 limit 条或索引读完
func (r *RedisStore) List(ctx context.Context, collection string, limit int) ([][]byte, error) {
	var out [][]byte
	start := int64(0)
	for {
		stop := int64(-1)
		if limit > 0 {
			stop = start + int64(limit-len(out)) - 1
		}
		ids, err := r.Client.ZRevRange(ctx, r.index(collection), start, stop).Result()
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return out, nil
		}

		live, stale, err := r.fetch(ctx, collection, ids)
		if err != nil {
			return nil, err
		}
		out = append(out, live...)

		next := int64(len(ids))
		if len(stale) > 0 {
			if err := r.Client.ZRem(ctx, r.index(collection), stale...).Err(); err != nil {
				log.Warn().Err(err).Str("collection", collection).Msg("清理过期索引失败")
			} else {
				// 已删除的成员不再占用排名
				next -= int64(len(stale))
			}
		}

		if limit <= 0 || len(out) >= limit || len(stale) == 0 {
			return out, nil
		}
		start += next
	}
}

func (r *RedisStore) fetch(ctx context.Context, collection string, ids []string) ([][]byte, []any, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(collection, id)
	}
	values, err := r.Client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, err
	}

	live := make([][]byte, 0, len(values))
	var stale []any
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		live = append(live, []byte(s))
	}
	return live, stale, nil
}
