package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/Atharva-Kanherkar/echo/internal/breaker"
)

// Model is one entry of the provider's model catalog. OpenAI fills ID and
// OwnedBy; OpenRouter-style providers also fill Name and ContextLength.
type Model struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	OwnedBy       string `json:"owned_by,omitempty"`
	ContextLength int    `json:"context_length,omitempty"`
}

type modelsResponse struct {
	Data []Model `json:"data"`
}

// Models lists the models the provider serves, sorted by id.
func (c *Client) Models(ctx context.Context) ([]Model, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	body, err := breaker.Do(c.cb, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &breaker.StatusError{Service: "llm", Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}

	var mr modelsResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return nil, fmt.Errorf("failed to parse models: %w", err)
	}
	sort.Slice(mr.Data, func(i, j int) bool { return mr.Data[i].ID < mr.Data[j].ID })
	return mr.Data, nil
}

// FilterModels keeps the models whose id or name contains query,
// case-insensitively.
func FilterModels(models []Model, query string) []Model {
	query = strings.ToLower(query)
	var filtered []Model
	for _, m := range models {
		if strings.Contains(strings.ToLower(m.ID), query) ||
			strings.Contains(strings.ToLower(m.Name), query) {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

// Provider extracts the provider from a "provider/model" id, falling back
// to OwnedBy.
func (m Model) Provider() string {
	if p, _, ok := strings.Cut(m.ID, "/"); ok {
		return p
	}
	return m.OwnedBy
}

// String formats the model for a one-line listing.
func (m Model) String() string {
	s := m.ID
	if p := m.Provider(); p != "" {
		s += " | " + p
	}
	if m.ContextLength > 0 {
		s += " | ctx: " + formatContextLength(m.ContextLength)
	}
	return s
}

func formatContextLength(n int) string {
	if n >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	if n >= 1000 {
		return fmt.Sprintf("%dk", n/1000)
	}
	return fmt.Sprintf("%d", n)
}
