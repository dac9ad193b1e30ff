package workspace

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/cognition"
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
	err     error
	prompts []string
}

func (f *fakeLLM) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	return f.ChatWithSystem(ctx, "", messages[len(messages)-1].Content)
}

func (f *fakeLLM) ChatWithSystem(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, user)
	return f.reply, f.err
}

func TestIsTask(t *testing.T) {
	assert.True(t, IsTask("TASK: build a login form"))
	assert.True(t, IsTask("todo: write docs"))
	assert.True(t, IsTask("  Task:  spaced"))
	assert.False(t, IsTask("remember the milk"))
	assert.False(t, IsTask("my task: not a prefix"))
}

func TestTaskDescription(t *testing.T) {
	assert.Equal(t, "build a login form", TaskDescription("TASK: build a login form"))
	assert.Equal(t, "ratio 1:2 layout", TaskDescription("TODO: ratio 1:2 layout"))
	assert.Equal(t, "plain", TaskDescription("plain"))
}

func TestSpawnTask(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	c := NewCanvas(st, zap.NewNop())

	id, err := c.SpawnTask(ctx, "alice", "TASK: Fibonacci calculator")
	require.NoError(t, err)

	d, err := st.Get(ctx, store.CollectionTasks, id)
	require.NoError(t, err)
	assert.Equal(t, "Fibonacci calculator", d.Data.String("description"))
	assert.Equal(t, AssigneeIDE, d.Data.String("assigned_to"))
	assert.Equal(t, StatusPending, d.Data.String("status"))
	assert.Equal(t, "alice", d.Data.String("created_by"))

	_, err = c.SpawnTask(ctx, "alice", "TASK:   ")
	assert.Error(t, err)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "fibonacci_calculator.py", Filename("Fibonacci Calculator"))
	assert.Equal(t, "build_a_rest_api_with_authenti.py", Filename("Build a REST API with authentication"))
	assert.Equal(t, "a_b.py", Filename("a/b"))
	assert.Equal(t, "task.py", Filename(""))
}

func TestProcessPendingBuildsFiles(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	dir := t.TempDir()
	fake := &fakeLLM{reply: "```python\ndef fib(n):\n    return n\n```"}

	c := NewCanvas(st, zap.NewNop())
	id, err := c.SpawnTask(ctx, "alice", "TASK: Fibonacci calculator")
	require.NoError(t, err)
	other, err := st.Add(ctx, store.CollectionTasks, store.Doc{"description": "canvas only", "assigned_to": AssigneeCanvas, "status": StatusPending})
	require.NoError(t, err)

	w := NewIDEWorker(st, fake, dir, zap.NewNop())
	var built []string
	w.OnBuilt = func(desc, path string) { built = append(built, path) }

	n, err := w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	path := filepath.Join(dir, "fibonacci_calculator.py")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "def fib(n):\n    return n", string(data))
	assert.Equal(t, []string{path}, built)
	require.Len(t, fake.prompts, 1)
	assert.Contains(t, fake.prompts[0], "Fibonacci calculator")

	d, err := st.Get(ctx, store.CollectionTasks, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, d.Data.String("status"))
	assert.Equal(t, path, d.Data.String("file_path"))

	d, err = st.Get(ctx, store.CollectionTasks, other)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, d.Data.String("status"))

	n, err = w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestProcessPendingMarksFailures(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	fake := &fakeLLM{err: errors.New("quota exceeded")}

	id, err := NewCanvas(st, zap.NewNop()).SpawnTask(ctx, "bob", "TODO: parser")
	require.NoError(t, err)

	w := NewIDEWorker(st, fake, t.TempDir(), zap.NewNop())
	n, err := w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	d, err := st.Get(ctx, store.CollectionTasks, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, d.Data.String("status"))
	assert.Contains(t, d.Data.String("error"), "quota exceeded")
}

func TestIDEWorkerRunStops(t *testing.T) {
	st := store.NewMemoryStore()
	w := NewIDEWorker(st, &fakeLLM{reply: "pass"}, t.TempDir(), zap.NewNop())
	w.SetInterval(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := NewCanvas(st, zap.NewNop()).SpawnTask(ctx, "alice", "TASK: noop")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		docs, _ := st.Query(context.Background(), store.CollectionTasks, store.Doc{"status": StatusCompleted}, 0)
		return len(docs) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestSocraticTriggerFiresOncePerEpisode(t *testing.T) {
	ctx := context.Background()
	fake := &fakeLLM{reply: "# ECHO: What does the loop do when n is 0?"}
	trig := NewSocraticTrigger(fake, time.Minute)
	file := &OpenFile{Path: "fib.py", Content: "def fib(n):\n    for i in range(n):\n        pass", Line: 1}

	t0 := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	q, ok, err := trig.Check(ctx, cognition.StateStuck, t0, file)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, q)

	_, ok, err = trig.Check(ctx, cognition.StateStuck, t0.Add(30*time.Second), file)
	require.NoError(t, err)
	assert.False(t, ok)

	q, ok, err = trig.Check(ctx, cognition.StateStuck, t0.Add(61*time.Second), file)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "# ECHO: What does the loop do when n is 0?", q)
	require.Len(t, fake.prompts, 1)
	assert.Contains(t, fake.prompts[0], "The cursor is at line 2.")

	_, ok, err = trig.Check(ctx, cognition.StateStuck, t0.Add(2*time.Minute), file)
	require.NoError(t, err)
	assert.False(t, ok)

	// leaving STUCK re-arms
	_, ok, _ = trig.Check(ctx, cognition.StateFlowing, t0.Add(3*time.Minute), file)
	assert.False(t, ok)
	_, ok, _ = trig.Check(ctx, cognition.StateStuck, t0.Add(4*time.Minute), file)
	assert.False(t, ok)
	_, ok, err = trig.Check(ctx, cognition.StateStuck, t0.Add(5*time.Minute+time.Second), file)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSocraticTriggerNeedsOpenFile(t *testing.T) {
	fake := &fakeLLM{reply: "# ECHO: ?"}
	trig := NewSocraticTrigger(fake, time.Second)
	t0 := time.Now()

	trig.Observe(cognition.StateStuck, t0)
	_, ok, err := trig.Check(context.Background(), cognition.StateStuck, t0.Add(2*time.Second), nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, fake.prompts)
}

func TestSocraticQuestionAddsPrefix(t *testing.T) {
	fake := &fakeLLM{reply: "What is the base case?\nextra rambling"}
	trig := NewSocraticTrigger(fake, 0)
	q, err := trig.Question(context.Background(), &OpenFile{Content: "x = 1"})
	require.NoError(t, err)
	assert.Equal(t, "# ECHO: What is the base case?", q)
}

func TestAroundAndInsertComment(t *testing.T) {
	content := strings.Join([]string{"l0", "l1", "l2", "l3", "l4", "l5", "l6", "l7"}, "\n")
	assert.Equal(t, "l0\nl1\nl2\nl3", Around(content, 2, 2))
	assert.Equal(t, "l5\nl6\nl7", Around(content, 7, 2))

	out := InsertComment("a\nb\nc", 0, "# ECHO: why?")
	assert.Equal(t, "a\n# ECHO: why?\nb\nc", out)
	out = InsertComment("a", 10, "# ECHO: end")
	assert.Equal(t, "a\n# ECHO: end", out)
}

func TestLatestFile(t *testing.T) {
	dir := t.TempDir()
	f, err := LatestFile(dir)
	require.NoError(t, err)
	assert.Nil(t, f)

	old := filepath.Join(dir, "old.py")
	require.NoError(t, os.WriteFile(old, []byte("a\n"), 0644))
	require.NoError(t, os.Chtimes(old, time.Now().Add(-time.Hour), time.Now().Add(-time.Hour)))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg"), 0755))
	recent := filepath.Join(dir, "pkg", "main.py")
	require.NoError(t, os.WriteFile(recent, []byte("one\ntwo\nthree\n"), 0644))

	f, err = LatestFile(dir)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, recent, f.Path)
	assert.Equal(t, 2, f.Line)
}

func TestRepoName(t *testing.T) {
	assert.Equal(t, "echo", RepoName("https://github.com/Atharva-Kanherkar/echo.git"))
	assert.Equal(t, "echo", RepoName("https://github.com/Atharva-Kanherkar/echo/"))
	assert.Equal(t, "repo", RepoName("git@github.com:user/repo.git"))
}

func TestCloneRepoRefusesExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "echo"), 0755))
	_, err := CloneRepo(context.Background(), "https://github.com/x/echo.git", dir)
	assert.ErrorContains(t, err, "already exists")
}

func TestParseFileKey(t *testing.T) {
	key, err := ParseFileKey("https://www.figma.com/file/AbC123/My-Design?node-id=0")
	require.NoError(t, err)
	assert.Equal(t, "AbC123", key)

	key, err = ParseFileKey("https://www.figma.com/design/XyZ/Thing")
	require.NoError(t, err)
	assert.Equal(t, "XyZ", key)

	_, err = ParseFileKey("https://example.com/nothing")
	assert.Error(t, err)
}

func TestFigmaImport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.Header.Get("X-Figma-Token"))
		switch r.URL.Path {
		case "/v1/files/KEY":
			w.Write([]byte(`{"name":"App","document":{"id":"0:0","type":"DOCUMENT","children":[
				{"id":"1:1","type":"CANVAS","children":[
					{"id":"2:1","type":"FRAME"},
					{"id":"2:2","type":"TEXT"},
					{"id":"2:3","type":"FRAME","children":[{"id":"3:1","type":"FRAME"}]}
				]}
			]}}`))
		case "/v1/images/KEY":
			assert.Equal(t, "2:1,2:3,3:1", r.URL.Query().Get("ids"))
			assert.Equal(t, "png", r.URL.Query().Get("format"))
			w.Write([]byte(`{"err":null,"images":{"2:1":"https://img/1.png","2:3":"https://img/3.png","3:1":"https://img/4.png"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewFigmaClient("tok", zap.NewNop())
	c.SetBaseURL(srv.URL)

	images, err := c.Import(context.Background(), "https://www.figma.com/file/KEY/App")
	require.NoError(t, err)
	assert.Len(t, images, 3)
	assert.Equal(t, "https://img/1.png", images["2:1"])
}

func TestFigmaRequiresToken(t *testing.T) {
	c := NewFigmaClient("", zap.NewNop())
	_, err := c.File(context.Background(), "KEY")
	assert.ErrorContains(t, err, "token")
}
