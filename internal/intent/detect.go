// Package intent captures unspoken TODOs from what the user mutters while
// coding.
//
// Speech is recorded in short chunks, transcribed, and buffered. Every few
// seconds the recent transcriptions are checked against fixed patterns
// (refactor, todo, bug, ...) and, failing that, by a model. Captured intents
// wait in the captured_intents collection until the user turns them into
// canvas tasks.
package intent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Atharva-Kanherkar/echo/internal/llm"
)

// Confidence labels.
const (
	ConfidencePattern = "pattern_match"
	ConfidenceLLM     = "llm_detected"
)

// minLLMText is the shortest text worth a model call.
const minLLMText = 20

// Intent is one captured intent.
type Intent struct {
	ID         string `json:"id,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	Type       string `json:"type"`
	Text       string `json:"text"`
	Task       string `json:"task,omitempty"`
	Urgency    string `json:"urgency,omitempty"`
	Confidence string `json:"confidence"`
	Status     string `json:"status,omitempty"`
}

// Signature identifies an intent for de-duplication: type plus the task, or
// the first 50 characters of the text when there is no task.
func (i Intent) Signature() string {
	key := i.Task
	if key == "" {
		key = i.Text
		if r := []rune(key); len(r) > 50 {
			key = string(r[:50])
		}
	}
	return i.Type + ":" + key
}

// patterns are tried in order; the first match wins.
var patterns = []struct {
	kind string
	re   *regexp.Regexp
}{
	{"refactor", regexp.MustCompile(`(should|need to|gotta|have to).*(refactor|break out|split|separate|extract)`)},
	{"todo", regexp.MustCompile(`(later|tomorrow|eventually|remind me|don't forget)`)},
	{"bug", regexp.MustCompile(`(bug|broken|not working|issue|problem|error)`)},
	{"feature", regexp.MustCompile(`(add|build|create|implement|need).*(feature|functionality)`)},
	{"optimize", regexp.MustCompile(`(slow|optimize|performance|faster|speed up)`)},
	{"document", regexp.MustCompile(`(document|comment|explain|write docs)`)},
	{"test", regexp.MustCompile(`(test|testing|unit test|integration test)`)},
}

// MatchPattern returns the first intent type whose pattern matches text.
func MatchPattern(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, p := range patterns {
		if p.re.MatchString(lower) {
			return p.kind, true
		}
	}
	return "", false
}

const detectPrompt = `Analyze this developer's muttering for actionable intent:

"%s"

Is there an unspoken TODO, refactor need, or concern? Respond in JSON:
{"has_intent": true/false, "type": "refactor/todo/bug/feature/none", "task": "brief description", "urgency": "low/medium/high"}

Only detect genuine intents, not casual remarks.`

// Detector finds intents in text.
type Detector struct {
	llm llm.Completer
}

// NewDetector creates a detector. c may be nil to disable the model pass.
func NewDetector(c llm.Completer) *Detector {
	return &Detector{llm: c}
}

// Detect returns the intent in text, or nil when there is none. Model errors
// are returned alongside a nil intent.
func (d *Detector) Detect(ctx context.Context, text string) (*Intent, error) {
	if kind, ok := MatchPattern(text); ok {
		return &Intent{Type: kind, Text: text, Confidence: ConfidencePattern}, nil
	}
	if d.llm == nil || len(text) <= minLLMText {
		return nil, nil
	}

	var reply struct {
		HasIntent bool   `json:"has_intent"`
		Type      string `json:"type"`
		Task      string `json:"task"`
		Urgency   string `json:"urgency"`
	}
	if err := llm.ChatJSON(ctx, d.llm, "You detect developer intents.", fmt.Sprintf(detectPrompt, text), &reply); err != nil {
		return nil, err
	}
	if !reply.HasIntent {
		return nil, nil
	}

	in := &Intent{
		Type:       reply.Type,
		Text:       text,
		Task:       reply.Task,
		Urgency:    reply.Urgency,
		Confidence: ConfidenceLLM,
	}
	if in.Type == "" || in.Type == "none" {
		in.Type = "todo"
	}
	return in, nil
}
