package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/cognition"
	"github.com/Atharva-Kanherkar/echo/internal/llm"
)

// DefaultStuckAfter is how long the user must stay STUCK before a question
// is asked.
const DefaultStuckAfter = 60 * time.Second

const commentPrefix = "# ECHO:"

const socraticPrompt = "The user is stuck on this code:\n\n```\n%s\n```\n\n" +
	"The cursor is at line %d.\n\n" +
	"Do not solve it. Ask a single, Socratic question to un-block them.\n" +
	"Format: # ECHO: [your question]"

// OpenFile is the file the user has in front of them.
type OpenFile struct {
	Path    string
	Content string
	Line    int // zero-based cursor line
}

// SocraticTrigger asks one guiding question per stuck episode.
type SocraticTrigger struct {
	llm        llm.Completer
	stuckAfter time.Duration

	mu         sync.Mutex
	stuckSince time.Time
	fired      bool
}

// NewSocraticTrigger creates a trigger. stuckAfter <= 0 selects 60 seconds.
func NewSocraticTrigger(c llm.Completer, stuckAfter time.Duration) *SocraticTrigger {
	if stuckAfter <= 0 {
		stuckAfter = DefaultStuckAfter
	}
	return &SocraticTrigger{llm: c, stuckAfter: stuckAfter}
}

// Observe records the state at now and reports whether a question is due.
// Leaving STUCK re-arms the trigger.
func (t *SocraticTrigger) Observe(state cognition.State, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state != cognition.StateStuck {
		t.stuckSince = time.Time{}
		t.fired = false
		return false
	}
	if t.stuckSince.IsZero() {
		t.stuckSince = now
	}
	return !t.fired && now.Sub(t.stuckSince) > t.stuckAfter
}

// Check observes state and, when a question is due and a file is open, asks
// for it. It returns the comment line and true at most once per episode.
func (t *SocraticTrigger) Check(ctx context.Context, state cognition.State, now time.Time, file *OpenFile) (string, bool, error) {
	if !t.Observe(state, now) || file == nil {
		return "", false, nil
	}

	q, err := t.Question(ctx, file)
	if err != nil {
		return "", false, err
	}

	t.mu.Lock()
	t.fired = true
	t.mu.Unlock()
	return q, true, nil
}

// Question asks the model for a Socratic question about the lines around
// the cursor.
func (t *SocraticTrigger) Question(ctx context.Context, file *OpenFile) (string, error) {
	snippet := Around(file.Content, file.Line, 5)
	reply, err := t.llm.ChatWithSystem(ctx,
		"Act as an expert pair programmer.",
		fmt.Sprintf(socraticPrompt, snippet, file.Line+1))
	if err != nil {
		return "", fmt.Errorf("failed to ask question: %w", err)
	}

	q := strings.TrimSpace(strings.SplitN(strings.TrimSpace(reply), "\n", 2)[0])
	if !strings.HasPrefix(q, commentPrefix) {
		q = commentPrefix + " " + strings.TrimSpace(strings.TrimLeft(q, "# "))
	}
	return q, nil
}

// Around returns the lines [line-n, line+n) of content.
func Around(content string, line, n int) string {
	lines := strings.Split(content, "\n")
	start := max(0, line-n)
	end := min(len(lines), line+n)
	if start >= end {
		return ""
	}
	return strings.Join(lines[start:end], "\n")
}

// InsertComment puts comment on its own line after the given zero-based line.
func InsertComment(content string, line int, comment string) string {
	lines := strings.Split(content, "\n")
	at := min(max(line+1, 0), len(lines))
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:at]...)
	out = append(out, comment)
	out = append(out, lines[at:]...)
	return strings.Join(out, "\n")
}

// maxOpenFileSize bounds the files LatestFile considers.
const maxOpenFileSize = 256 << 10

// LatestFile returns the most recently modified file under dir, skipping
// hidden entries, with the cursor on its last line. It returns nil when dir
// holds no file.
func LatestFile(dir string) (*OpenFile, error) {
	var latest string
	var latestMod int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxOpenFileSize {
			return nil
		}
		if mod := info.ModTime().UnixNano(); latest == "" || mod > latestMod {
			latest, latestMod = path, mod
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	if latest == "" {
		return nil, nil
	}

	data, err := os.ReadFile(latest)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", latest, err)
	}
	content := string(data)
	return &OpenFile{
		Path:    latest,
		Content: content,
		Line:    max(0, strings.Count(strings.TrimRight(content, "\n"), "\n")),
	}, nil
}
