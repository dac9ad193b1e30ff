package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// StripCodeFence removes a surrounding ``` fence. When the reply starts with
// a fence, its first line (which may carry a language tag) and its closing
// fence line are dropped.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	lines = lines[1:]
	if n := len(lines); n > 0 && strings.HasPrefix(strings.TrimSpace(lines[n-1]), "```") {
		lines = lines[:n-1]
	}
	return strings.Join(lines, "\n")
}

// ExtractJSON returns the outermost {...} object in a model reply, which
// tends to wrap JSON in prose or fences.
func ExtractJSON(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// ChatJSON asks c and decodes the JSON object in the reply into out.
func ChatJSON(ctx context.Context, c Completer, systemPrompt, userMessage string, out any) error {
	reply, err := c.ChatWithSystem(ctx, systemPrompt, userMessage)
	if err != nil {
		return err
	}
	raw, ok := ExtractJSON(reply)
	if !ok {
		return fmt.Errorf("no JSON object in reply: %q", truncate(reply, 80))
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("failed to decode reply: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
