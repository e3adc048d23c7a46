// Package dialogue 维护多轮对话会话，角色扮演与校园模拟共用
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"learnhub-server/internal/llm"
	"learnhub-server/internal/model"
	"learnhub-server/internal/store"
)

// ErrNotFound 会话不存在或已过期
var ErrNotFound = errors.New("会话不存在")

// MaxInputRunes 单轮用户输入的最大字符数
const MaxInputRunes = 2000

// lockStripes 会话锁分段数，按会话 ID 哈希取锁，占用固定
const lockStripes = 64

// Turn 会话中的一轮发言
type Turn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Session 一次对话会话
type Session struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	System    string            `json:"-"`
	Meta      map[string]string `json:"meta,omitempty"`
	Turns     []Turn            `json:"turns"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// stored 持久化形式，系统提示词不返回给客户端但需要保存
type stored struct {
	Session
	System string `json:"system"`
}

// Manager 负责会话的创建、读取与推进
type Manager struct {
	Store store.Store
	LLM   llm.Client
	// Kind 同时作为存储集合名
	Kind string
	// TTL 会话空闲过期时间，0 表示永不过期
	TTL time.Duration
	// Window 每次发送给模型的最近轮数
	Window int

	now   func() time.Time
	locks [lockStripes]sync.Mutex
}

// NewManager 创建会话管理器
func NewManager(s store.Store, c llm.Client, kind string, ttl time.Duration, window int) *Manager {
	if window <= 0 {
		window = 12
	}
	return &Manager{Store: s, LLM: c, Kind: kind, TTL: ttl, Window: window, now: time.Now}
}

// Start 创建会话；opening 非空时先让模型根据 opening 生成开场白
func (m *Manager) Start(ctx context.Context, system string, meta map[string]string, opening string) (*Session, error) {
	now := m.now().UTC()
	s := &Session{
		ID:        uuid.NewString(),
		Kind:      m.Kind,
		System:    system,
		Meta:      meta,
		Turns:     []Turn{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if strings.TrimSpace(opening) != "" {
		reply, err := m.LLM.Chat(ctx, llm.Request{
			System:   system,
			Messages: []llm.Message{{Role: llm.RoleUser, Content: opening}},
		})
		if err != nil {
			return nil, err
		}
		s.Turns = append(s.Turns, Turn{Role: llm.RoleAssistant, Content: strings.TrimSpace(reply), At: now})
	}

	if err := m.save(ctx, s); err != nil {
		return nil, err
	}
	log.Debug().Str("kind", m.Kind).Str("session", s.ID).Msg("🔹 会话已创建")
	return s, nil
}

// Get 读取会话
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	var st stored
	if err := store.GetJSON(ctx, m.Store, m.Kind, id, &st); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s := st.Session
	s.System = st.System
	return &s, nil
}

// Step 追加一轮用户输入并生成回复；同一会话的并发请求按顺序处理
func (m *Manager) Step(ctx context.Context, id, input string) (*Session, string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, "", model.NewValidationError("input", "输入不能为空")
	}
	if len([]rune(input)) > MaxInputRunes {
		return nil, "", model.NewValidationError("input", fmt.Sprintf("输入不能超过 %d 个字符", MaxInputRunes))
	}

	// 不存在的会话直接返回，不参与排队
	if _, err := m.Get(ctx, id); err != nil {
		return nil, "", err
	}

	mu := m.lock(id)
	mu.Lock()
	defer mu.Unlock()

	s, err := m.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}

	now := m.now().UTC()
	s.Turns = append(s.Turns, Turn{Role: llm.RoleUser, Content: input, At: now})

	reply, err := m.LLM.Chat(ctx, llm.Request{System: s.System, Messages: m.window(s.Turns)})
	if err != nil {
		return nil, "", err
	}
	reply = strings.TrimSpace(reply)

	s.Turns = append(s.Turns, Turn{Role: llm.RoleAssistant, Content: reply, At: m.now().UTC()})
	s.UpdatedAt = m.now().UTC()
	if err := m.save(ctx, s); err != nil {
		return nil, "", err
	}
	return s, reply, nil
}

// window 取最近 Window 轮发言
func (m *Manager) window(turns []Turn) []llm.Message {
	if len(turns) > m.Window {
		turns = turns[len(turns)-m.Window:]
	}
	out := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, llm.Message{Role: t.Role, Content: t.Content})
	}
	return out
}

func (m *Manager) save(ctx context.Context, s *Session) error {
	return store.PutJSON(ctx, m.Store, m.Kind, s.ID, stored{Session: *s, System: s.System}, m.TTL)
}

func (m *Manager) lock(id string) *sync.Mutex {
	return &m.locks[stripe(id)]
}

func stripe(id string) uint64 {
	return xxhash.Sum64String(id) % lockStripes
}
