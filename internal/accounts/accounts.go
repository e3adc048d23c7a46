// Package accounts 管理上游模型服务的账号与密钥，/v1 代理按轮询方式选用
package accounts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"learnhub-server/internal/model"
	"learnhub-server/internal/store"
)

const (
	// Collection 账号在存储中的集合名
	Collection = "accounts"
	// UsageCollection 调用统计单独存放，轮询不会回写账号文档
	UsageCollection = "account_usage"
)

// 选中的账号在轮询期间被删除或停用时重新选择的次数
const pickAttempts = 3

var (
	// ErrNotFound 账号不存在
	ErrNotFound = errors.New("账号不存在")
	// ErrNoAccount 没有可用账号
	ErrNoAccount = errors.New("没有可用的上游账号")
)

// Account 一个上游账号
type Account struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Provider     string    `json:"provider"`
	APIKey       string    `json:"apiKey"`
	Weight       int       `json:"weight"`
	Enabled      bool      `json:"enabled"`
	RequestCount int64     `json:"requestCount"`
	LastUsedAt   time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Masked 返回隐藏密钥后的副本，用于接口响应
func (a Account) Masked() Account {
	a.APIKey = MaskKey(a.APIKey)
	return a
}

// MaskKey 只保留密钥首尾各 4 位
func MaskKey(raw string) string {
	key := strings.TrimSpace(raw)
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// Input 创建与更新时的请求体，指针字段为空表示不修改
type Input struct {
	Name     *string `json:"name"`
	Provider *string `json:"provider"`
	APIKey   *string `json:"apiKey"`
	Weight   *int    `json:"weight"`
	Enabled  *bool   `json:"enabled"`
}

type usage struct {
	RequestCount int64     `json:"requestCount"`
	LastUsedAt   time.Time `json:"lastUsedAt"`
}

// Service 账号增删改查与轮询
type Service struct {
	store  store.Store
	cursor atomic.Uint64
	now    func() time.Time

	// usageMu 串行化调用统计的读改写
	usageMu sync.Mutex
}

// NewService 创建账号服务
func NewService(s store.Store) *Service {
	return &Service{store: s, now: time.Now}
}

// Create 新建账号，name 与 apiKey 必填
func (s *Service) Create(ctx context.Context, in Input) (*Account, error) {
	now := s.now().UTC()
	acc := &Account{ID: uuid.NewString(), Provider: "openai", Weight: 1, Enabled: true, CreatedAt: now, UpdatedAt: now}
	apply(acc, in)
	if err := validate(acc); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// Get 读取账号
func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	var acc Account
	if err := store.GetJSON(ctx, s.store, Collection, id, &acc); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := s.withUsage(ctx, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

// List 列出全部账号，按创建时间倒序
func (s *Service) List(ctx context.Context) ([]Account, error) {
	all, err := store.ListJSON[Account](ctx, s.store, Collection, 0)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if err := s.withUsage(ctx, &all[i]); err != nil {
			return nil, err
		}
	}
	return all, nil
}

// Update 按 Input 中非空字段修改账号
func (s *Service) Update(ctx context.Context, id string, in Input) (*Account, error) {
	acc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	apply(acc, in)
	if err := validate(acc); err != nil {
		return nil, err
	}
	acc.UpdatedAt = s.now().UTC()
	if err := s.persist(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// Delete 删除账号
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, Collection, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := s.store.Delete(ctx, UsageCollection, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// Next 按权重轮询选出一个启用的账号，并累加其调用次数。
// 账号文档只读不写，并发的修改与删除不会被轮询覆盖。
func (s *Service) Next(ctx context.Context) (*Account, error) {
	for attempt := 0; attempt < pickAttempts; attempt++ {
		candidate, err := s.pick(ctx)
		if err != nil {
			return nil, err
		}
		// 列表是快照，以最新的账号文档为准
		acc, err := s.Get(ctx, candidate.ID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !acc.Enabled || acc.APIKey == "" {
			continue
		}
		if err := s.recordUsage(ctx, acc); err != nil {
			return nil, err
		}
		return acc, nil
	}
	return nil, ErrNoAccount
}

func (s *Service) pick(ctx context.Context) (*Account, error) {
	all, err := store.ListJSON[Account](ctx, s.store, Collection, 0)
	if err != nil {
		return nil, err
	}

	var pool []Account
	for _, acc := range all {
		if !acc.Enabled || acc.APIKey == "" {
			continue
		}
		for i := 0; i < max(acc.Weight, 1); i++ {
			pool = append(pool, acc)
		}
	}
	if len(pool) == 0 {
		return nil, ErrNoAccount
	}
	// List 的顺序依赖存储实现，这里固定为按创建时间正序
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].CreatedAt.Before(pool[j].CreatedAt) })

	n := s.cursor.Add(1) - 1
	picked := pool[n%uint64(len(pool))]
	return &picked, nil
}

func (s *Service) recordUsage(ctx context.Context, acc *Account) error {
	s.usageMu.Lock()
	defer s.usageMu.Unlock()

	var u usage
	if err := store.GetJSON(ctx, s.store, UsageCollection, acc.ID, &u); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("读取账号使用记录失败: %w", err)
	}
	u.RequestCount++
	u.LastUsedAt = s.now().UTC()
	if err := store.PutJSON(ctx, s.store, UsageCollection, acc.ID, u, 0); err != nil {
		return fmt.Errorf("更新账号使用记录失败: %w", err)
	}
	acc.RequestCount = u.RequestCount
	acc.LastUsedAt = u.LastUsedAt
	return nil
}

func (s *Service) withUsage(ctx context.Context, acc *Account) error {
	var u usage
	err := store.GetJSON(ctx, s.store, UsageCollection, acc.ID, &u)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	acc.RequestCount = u.RequestCount
	acc.LastUsedAt = u.LastUsedAt
	return nil
}

// persist 只写账号配置，调用统计留在 UsageCollection
func (s *Service) persist(ctx context.Context, acc *Account) error {
	doc := *acc
	doc.RequestCount = 0
	doc.LastUsedAt = time.Time{}
	return store.PutJSON(ctx, s.store, Collection, acc.ID, doc, 0)
}

func apply(acc *Account, in Input) {
	if in.Name != nil {
		acc.Name = strings.TrimSpace(*in.Name)
	}
	if in.Provider != nil {
		acc.Provider = strings.TrimSpace(*in.Provider)
	}
	if in.APIKey != nil {
		acc.APIKey = strings.TrimSpace(*in.APIKey)
	}
	if in.Weight != nil {
		acc.Weight = *in.Weight
	}
	if in.Enabled != nil {
		acc.Enabled = *in.Enabled
	}
}

func validate(acc *Account) error {
	if acc.Name == "" {
		return model.NewValidationError("name", "名称不能为空")
	}
	if acc.APIKey == "" {
		return model.NewValidationError("apiKey", "密钥不能为空")
	}
	if acc.Weight < 1 || acc.Weight > 100 {
		return model.NewValidationError("weight", "权重必须在 1 到 100 之间")
	}
	return nil
}
