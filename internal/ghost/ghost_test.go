package ghost

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/Atharva-Kanherkar/echo/internal/llm"
	"github.com/Atharva-Kanherkar/echo/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

type fakeLLM struct {
	mu      sync.Mutex
	reply   string
	prompts []string
}

func (f *fakeLLM) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeLLM) ChatWithSystem(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, user)
	return f.reply, nil
}

func fakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/octo/repos", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "updated", r.URL.Query().Get("sort"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(`[{"name": "api", "full_name": "octo/api"}, {"name": "empty", "full_name": "octo/empty"}]`))
	})
	mux.HandleFunc("GET /repos/octo/api/commits", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"sha": "a1", "commit": {"message": "fix: handle nil config"}}, {"sha": "b2", "commit": {"message": "feat: add retries"}}]`))
	})
	mux.HandleFunc("GET /repos/octo/empty/commits", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	mux.HandleFunc("GET /repos/octo/api/commits/a1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"files": [{"patch": "+def load_config(path):"}, {"patch": ""}, {"patch": "+    return None"}]}`))
	})
	mux.HandleFunc("GET /repos/octo/api/commits/b2", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"files": [{"patch": "+def retry(fn, attempts=3):"}]}`))
	})
	return httptest.NewServer(mux)
}

func TestIndexAndMimic(t *testing.T) {
	srv := fakeGitHub(t)
	defer srv.Close()

	ctx := context.Background()
	st := store.NewMemoryStore()
	gh := NewGitHub("tok", zap.NewNop())
	gh.SetBaseURL(srv.URL)
	fake := &fakeLLM{reply: `{"naming_convention": "snake_case", "comment_style": "minimal", "code_organization": "functional", "preferred_patterns": ["early return"], "tone": "technical", "commit_style": "conventional commits"}`}
	g := New(st, fake, gh, "alice", zap.NewNop())

	p, err := g.Index(ctx, "octo")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Repos)
	assert.Equal(t, 3, p.SampleCount)
	assert.Equal(t, 2, p.CommitCount)
	assert.Equal(t, "conventional commits", p.Style.CommitStyle)
	assert.Contains(t, fake.prompts[0], "fix: handle nil config")
	assert.Contains(t, fake.prompts[0], "+def retry(fn, attempts=3):")

	stored, err := g.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "octo", stored.Username)
	assert.Equal(t, []string{"early return"}, stored.Style.Patterns)
	assert.Len(t, stored.Samples, 3)

	fake.reply = "```python\ndef parse(path):\n    return None\n```"
	code, err := g.Mimic(ctx, "parse a config file", "uses yaml")
	require.NoError(t, err)
	assert.Equal(t, "def parse(path):\n    return None", code)
	last := fake.prompts[len(fake.prompts)-1]
	assert.Contains(t, last, "Naming: snake_case")
	assert.Contains(t, last, "Patterns: early return")
	assert.Contains(t, last, "Task: parse a config file")
	assert.Contains(t, last, "Context: uses yaml")
}

func TestIndexSkipsManyEmptyRepos(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/octo/repos", func(w http.ResponseWriter, r *http.Request) {
		var names []string
		for i := 0; i < 9; i++ {
			names = append(names, `{"name": "empty`+strconv.Itoa(i)+`"}`)
		}
		names = append(names, `{"name": "real"}`)
		w.Write([]byte("[" + strings.Join(names, ",") + "]"))
	})
	mux.HandleFunc("GET /repos/octo/{repo}/commits", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("repo") != "real" {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.Write([]byte(`[{"sha": "c1", "commit": {"message": "feat: parser"}}]`))
	})
	mux.HandleFunc("GET /repos/octo/real/commits/c1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"files": [{"patch": "+func parse() {}"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	gh := NewGitHub("", zap.NewNop())
	gh.SetBaseURL(srv.URL)
	fake := &fakeLLM{reply: `{"naming_convention": "camelCase"}`}
	g := New(store.NewMemoryStore(), fake, gh, "alice", zap.NewNop())

	p, err := g.Index(context.Background(), "octo")
	require.NoError(t, err)
	assert.Equal(t, 1, p.CommitCount)
	assert.Equal(t, 1, p.SampleCount)
}

func TestIndexNoActivity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	gh := NewGitHub("", zap.NewNop())
	gh.SetBaseURL(srv.URL)
	g := New(store.NewMemoryStore(), &fakeLLM{}, gh, "alice", zap.NewNop())
	_, err := g.Index(context.Background(), "nobody")
	assert.ErrorContains(t, err, "no public activity")
}

func TestIndexReposError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	gh := NewGitHub("", zap.NewNop())
	gh.SetBaseURL(srv.URL)
	g := New(store.NewMemoryStore(), &fakeLLM{}, gh, "alice", zap.NewNop())
	_, err := g.Index(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "404"))
}

func TestMimicWithoutProfile(t *testing.T) {
	g := New(store.NewMemoryStore(), &fakeLLM{}, NewGitHub("", zap.NewNop()), "alice", zap.NewNop())
	_, err := g.Mimic(context.Background(), "anything", "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
