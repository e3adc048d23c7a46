// internal/store/store.go
//
// 文档存储模块
//
// 任务、账号、消息与对话会话都以 JSON 文档的形式按「集合 + ID」存放。
// 提供两种实现：
// 1. MemoryStore：进程内存储，用于开发环境与测试
// 2. RedisStore：生产环境使用，每个集合额外维护一个按时间排序的索引
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound 表示文档不存在或已过期
var ErrNotFound = errors.New("记录不存在")

// Store 定义按集合存取 JSON 文档的通用接口
type Store interface {
	// Put 写入（或覆盖）一条文档，ttl 为 0 表示永不过期
	Put(ctx context.Context, collection, id string, value []byte, ttl time.Duration) error
	// Get 读取一条文档，不存在时返回 ErrNotFound
	Get(ctx context.Context, collection, id string) ([]byte, error)
	// Delete 删除一条文档，不存在时返回 ErrNotFound
	Delete(ctx context.Context, collection, id string) error
	// List 按写入时间倒序返回最多 limit 条文档，limit <= 0 表示全部
	List(ctx context.Context, collection string, limit int) ([][]byte, error)
}

// PutJSON 序列化 v 后写入
func PutJSON(ctx context.Context, s Store, collection, id string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化 %s/%s 失败: %w", collection, id, err)
	}
	return s.Put(ctx, collection, id, raw, ttl)
}

// GetJSON 读取并反序列化到 dst
func GetJSON(ctx context.Context, s Store, collection, id string, dst any) error {
	raw, err := s.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("解析 %s/%s 失败: %w", collection, id, err)
	}
	return nil
}

// ListJSON 读取集合中的文档并逐条反序列化
func ListJSON[T any](ctx context.Context, s Store, collection string, limit int) ([]T, error) {
	raws, err := s.List(ctx, collection, limit)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("解析 %s 列表失败: %w", collection, err)
		}
		out = append(out, v)
	}
	return out, nil
}
