// internal/routes/table.go
//
// 路由聚合模块
//
// 本模块负责把各业务子路由（handler-set）按前缀挂载到同一个 Gin 引擎上，
// 并维护一张启动后只读的「前缀 → 标签 → 子路由」路由表：
// 1. 构造阶段校验前缀格式、唯一性与互不重叠
// 2. 任意一个子路由缺失或挂载失败都视为致命错误
// 3. 构造完成后路由表不可变，可被所有请求协程并发读取
package routes

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

var (
	// ErrInvalidPrefix 前缀不是以 / 开头的合法路径
	ErrInvalidPrefix = errors.New("前缀格式非法")
	// ErrDuplicatePrefix 两个条目注册了相同前缀
	ErrDuplicatePrefix = errors.New("前缀重复注册")
	// ErrOverlappingPrefix 一个前缀是另一个前缀的路径段前缀
	ErrOverlappingPrefix = errors.New("前缀相互重叠")
	// ErrEmptyTag 条目缺少标签
	ErrEmptyTag = errors.New("标签不能为空")
	// ErrNilRouter 条目引用的子路由未构造
	ErrNilRouter = errors.New("子路由未构造")
	// ErrMountFailed 子路由在挂载过程中失败
	ErrMountFailed = errors.New("子路由挂载失败")
)

// prefixPattern 允许的前缀：一个或多个 /segment，不含参数、通配符与尾部斜杠
var prefixPattern = regexp.MustCompile(`^(/[A-Za-z0-9_.~-]+)+$`)

// Mounter 是一个业务子路由：把自己的接口注册到给定分组下
type Mounter interface {
	Mount(rg *gin.RouterGroup)
}

// MountFunc 让普通函数满足 Mounter
type MountFunc func(rg *gin.RouterGroup)

// Mount 实现 Mounter
func (f MountFunc) Mount(rg *gin.RouterGroup) { f(rg) }

// Entry 路由表中的一条记录
type Entry struct {
	// Prefix 挂载前缀，例如 "/api/tasks"
	Prefix string
	// Tag 文档分组标签，不参与路由匹配
	Tag string
	// Router 该前缀下的子路由
	Router Mounter
}

// RegistrationError 描述哪个前缀导致路由表构造失败
type RegistrationError struct {
	Prefix string
	Tag    string
	Err    error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("注册路由 %q (%s) 失败: %v", e.Prefix, e.Tag, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// Table 启动时构造、之后只读的路由表
type Table struct {
	entries  []Entry
	byPrefix map[string]int
}

// NewTable 校验条目并生成路由表，不做任何挂载。
//
// 校验规则：
//   - 前缀必须满足 prefixPattern
//   - 标签非空，子路由非 nil
//   - 前缀两两不同，且不存在路径段意义上的包含关系
func NewTable(entries ...Entry) (*Table, error) {
	t := &Table{
		entries:  make([]Entry, 0, len(entries)),
		byPrefix: make(map[string]int, len(entries)),
	}

	for _, e := range entries {
		if err := t.add(e); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Table) add(e Entry) error {
	fail := func(err error) error {
		return &RegistrationError{Prefix: e.Prefix, Tag: e.Tag, Err: err}
	}

	if !prefixPattern.MatchString(e.Prefix) {
		return fail(ErrInvalidPrefix)
	}
	if strings.TrimSpace(e.Tag) == "" {
		return fail(ErrEmptyTag)
	}
	if isNil(e.Router) {
		return fail(ErrNilRouter)
	}
	if _, ok := t.byPrefix[e.Prefix]; ok {
		return fail(ErrDuplicatePrefix)
	}
	for _, existing := range t.entries {
		if segmentPrefix(existing.Prefix, e.Prefix) || segmentPrefix(e.Prefix, existing.Prefix) {
			return fail(fmt.Errorf("%w: 与 %q 冲突", ErrOverlappingPrefix, existing.Prefix))
		}
	}

	t.byPrefix[e.Prefix] = len(t.entries)
	t.entries = append(t.entries, e)
	return nil
}

// isNil 同时识别 nil 接口与装着 nil 指针的接口
func isNil(m Mounter) bool {
	if m == nil {
		return true
	}
	v := reflect.ValueOf(m)
	switch v.Kind() {
	case reflect.Ptr, reflect.Func, reflect.Map, reflect.Interface, reflect.Slice:
		return v.IsNil()
	}
	return false
}

// segmentPrefix 判断 prefix 是否按路径段覆盖 path（"/api" 覆盖 "/api/tasks"，但不覆盖 "/apix"）
func segmentPrefix(prefix, path string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

// Len 返回条目数量
func (t *Table) Len() int { return len(t.entries) }

// Entries 按注册顺序返回条目副本
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Lookup 找到覆盖 path 的最长前缀条目。
// 从完整路径开始逐段截短，每一步一次 map 查询。
func (t *Table) Lookup(path string) (Entry, bool) {
	candidate := strings.TrimRight(path, "/")
	for candidate != "" {
		if idx, ok := t.byPrefix[candidate]; ok {
			return t.entries[idx], true
		}
		cut := strings.LastIndexByte(candidate, '/')
		if cut <= 0 {
			break
		}
		candidate = candidate[:cut]
	}
	return Entry{}, false
}

// Build 校验条目并把每个子路由挂载到 r 上，返回只读路由表。
// 每个分组会先执行 Tagged 中间件，使日志与指标能拿到所属标签。
func Build(r gin.IRouter, entries ...Entry) (*Table, error) {
	t, err := NewTable(entries...)
	if err != nil {
		return nil, err
	}
	for _, e := range t.entries {
		if err := mount(r, e); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// mount 把 gin 在注册阶段抛出的 panic（例如路径冲突）转成错误
func mount(r gin.IRouter, e Entry) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &RegistrationError{
				Prefix: e.Prefix,
				Tag:    e.Tag,
				Err:    fmt.Errorf("%w: %v", ErrMountFailed, rec),
			}
		}
	}()

	group := r.Group(e.Prefix, Tagged(e.Tag))
	e.Router.Mount(group)
	return nil
}
