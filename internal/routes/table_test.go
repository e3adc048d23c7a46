package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// recordingMounter 在前缀下挂一个通配路由，并记录被调用次数
type recordingMounter struct {
	name  string
	calls int
}

func (m *recordingMounter) Mount(rg *gin.RouterGroup) {
	rg.Any("/*path", func(c *gin.Context) {
		m.calls++
		c.String(http.StatusOK, m.name+":"+c.Param("path"))
	})
}

func noop() Mounter {
	return MountFunc(func(rg *gin.RouterGroup) {})
}

func TestNewTable_RejectsDuplicatePrefix(t *testing.T) {
	_, err := NewTable(
		Entry{Prefix: "/api/tasks", Tag: "Tasks", Router: noop()},
		Entry{Prefix: "/api/tasks", Tag: "Tasks again", Router: noop()},
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicatePrefix)

	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "/api/tasks", regErr.Prefix)
	assert.Contains(t, err.Error(), "/api/tasks")
}

func TestNewTable_RejectsOverlappingPrefix(t *testing.T) {
	_, err := NewTable(
		Entry{Prefix: "/api", Tag: "Root", Router: noop()},
		Entry{Prefix: "/api/tasks", Tag: "Tasks", Router: noop()},
	)
	assert.ErrorIs(t, err, ErrOverlappingPrefix)

	// 仅字符串前缀相同、路径段不同，不算重叠
	_, err = NewTable(
		Entry{Prefix: "/api/task", Tag: "Task", Router: noop()},
		Entry{Prefix: "/api/tasks", Tag: "Tasks", Router: noop()},
	)
	assert.NoError(t, err)
}

func TestNewTable_InvalidEntries(t *testing.T) {
	cases := []struct {
		name  string
		entry Entry
		want  error
	}{
		{"missing slash", Entry{Prefix: "api/tasks", Tag: "Tasks", Router: noop()}, ErrInvalidPrefix},
		{"root only", Entry{Prefix: "/", Tag: "Root", Router: noop()}, ErrInvalidPrefix},
		{"trailing slash", Entry{Prefix: "/api/tasks/", Tag: "Tasks", Router: noop()}, ErrInvalidPrefix},
		{"param segment", Entry{Prefix: "/api/:id", Tag: "Tasks", Router: noop()}, ErrInvalidPrefix},
		{"empty tag", Entry{Prefix: "/api/tasks", Tag: " ", Router: noop()}, ErrEmptyTag},
		{"nil router", Entry{Prefix: "/api/tasks", Tag: "Tasks"}, ErrNilRouter},
		{"typed nil router", Entry{Prefix: "/api/tasks", Tag: "Tasks", Router: (*recordingMounter)(nil)}, ErrNilRouter},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTable(tc.entry)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestTable_LookupLongestSegmentMatch(t *testing.T) {
	table, err := NewTable(
		Entry{Prefix: "/v1", Tag: "V1 Proxy", Router: noop()},
		Entry{Prefix: "/api/tasks", Tag: "Tasks", Router: noop()},
		Entry{Prefix: "/api/school_sim", Tag: "SchoolSim", Router: noop()},
	)
	require.NoError(t, err)

	e, ok := table.Lookup("/api/tasks/123")
	require.True(t, ok)
	assert.Equal(t, "Tasks", e.Tag)

	e, ok = table.Lookup("/api/tasks")
	require.True(t, ok)
	assert.Equal(t, "Tasks", e.Tag)

	e, ok = table.Lookup("/v1/chat/completions")
	require.True(t, ok)
	assert.Equal(t, "V1 Proxy", e.Tag)

	for _, miss := range []string{"/api/unknown", "/api/tasksx", "/api", "/", "", "/v2/models"} {
		_, ok := table.Lookup(miss)
		assert.False(t, ok, miss)
	}
}

func TestTable_EntriesIsACopy(t *testing.T) {
	table, err := NewTable(Entry{Prefix: "/api/tasks", Tag: "Tasks", Router: noop()})
	require.NoError(t, err)

	entries := table.Entries()
	entries[0].Tag = "mutated"
	assert.Equal(t, "Tasks", table.Entries()[0].Tag)
}

func TestBuild_DelegatesOnlyToOwningRouter(t *testing.T) {
	tasks := &recordingMounter{name: "tasks"}
	textbook := &recordingMounter{name: "textbook"}
	v1 := &recordingMounter{name: "v1"}

	engine := gin.New()
	_, err := Build(engine,
		Entry{Prefix: "/v1", Tag: "V1 Proxy", Router: v1},
		Entry{Prefix: "/api/tasks", Tag: "Tasks", Router: tasks},
		Entry{Prefix: "/api/textbook", Tag: "Textbook", Router: textbook},
	)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/tasks/123", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tasks:/123", w.Body.String())
	assert.Equal(t, 1, tasks.calls)
	assert.Zero(t, textbook.calls)
	assert.Zero(t, v1.calls)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 1, tasks.calls)
	assert.Zero(t, textbook.calls)
	assert.Zero(t, v1.calls)
}

func TestBuild_TagIsVisibleToHandlers(t *testing.T) {
	engine := gin.New()
	_, err := Build(engine, Entry{
		Prefix: "/api/story",
		Tag:    "Story",
		Router: MountFunc(func(rg *gin.RouterGroup) {
			rg.GET("/tag", func(c *gin.Context) { c.String(http.StatusOK, TagFromContext(c)) })
		}),
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/story/tag", nil))
	assert.Equal(t, "Story", w.Body.String())
}

func TestBuild_MountPanicBecomesError(t *testing.T) {
	conflicting := MountFunc(func(rg *gin.RouterGroup) {
		h := func(c *gin.Context) {}
		rg.GET("/x", h)
		rg.GET("/x", h)
	})

	_, err := Build(gin.New(), Entry{Prefix: "/api/rpg", Tag: "RPG", Router: conflicting})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMountFailed)

	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "/api/rpg", regErr.Prefix)
}

func TestBuild_DuplicateFailsBeforeMounting(t *testing.T) {
	first := &recordingMounter{name: "first"}
	mounted := false
	second := MountFunc(func(rg *gin.RouterGroup) { mounted = true })

	_, err := Build(gin.New(),
		Entry{Prefix: "/api/tasks", Tag: "Tasks", Router: first},
		Entry{Prefix: "/api/tasks", Tag: "Tasks", Router: second},
	)
	assert.ErrorIs(t, err, ErrDuplicatePrefix)
	assert.False(t, mounted)
}

func TestTable_LookupProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		names := rapid.SliceOfNDistinct(
			rapid.StringMatching(`[a-z][a-z0-9_]{0,8}`), 1, 12, rapid.ID[string],
		).Draw(t, "names")

		entries := make([]Entry, 0, len(names))
		for _, n := range names {
			entries = append(entries, Entry{Prefix: "/api/" + n, Tag: n, Router: noop()})
		}
		table, err := NewTable(entries...)
		if err != nil {
			t.Fatalf("distinct single-segment prefixes must build: %v", err)
		}
		if table.Len() != len(names) {
			t.Fatalf("expected %d entries, got %d", len(names), table.Len())
		}

		pick := rapid.IntRange(0, len(names)-1).Draw(t, "pick")
		rest := rapid.StringMatching(`(/[a-z0-9]{1,5}){0,3}`).Draw(t, "rest")
		got, ok := table.Lookup("/api/" + names[pick] + rest)
		if !ok || got.Tag != names[pick] {
			t.Fatalf("lookup %q: got %+v ok=%v", "/api/"+names[pick]+rest, got, ok)
		}

		dup := append(entries, Entry{Prefix: entries[pick].Prefix, Tag: "dup", Router: noop()})
		if _, err := NewTable(dup...); err == nil {
			t.Fatalf("duplicate prefix %q must fail", entries[pick].Prefix)
		}
	})
}
