package ghost

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/breaker"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Repo is the subset of a GitHub repository we use.
type Repo struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Language string `json:"language"`
}

// Commit is one commit with its message.
type Commit struct {
	SHA     string
	Message string
}

// GitHub reads public activity from the GitHub REST API.
type GitHub struct {
	token      string
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
}

// NewGitHub creates a client. token may be empty for unauthenticated
// (rate-limited) access.
func NewGitHub(token string, logger *zap.Logger) *GitHub {
	return &GitHub{
		token:      token,
		baseURL:    "https://api.github.com",
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cb:         breaker.New("github", logger),
	}
}

// SetBaseURL points the client at another host.
func (g *GitHub) SetBaseURL(u string) {
	g.baseURL = strings.TrimRight(u, "/")
}

// Repos returns up to limit of user's repositories, most recently updated
// first.
func (g *GitHub) Repos(ctx context.Context, user string, limit int) ([]Repo, error) {
	q := url.Values{}
	q.Set("sort", "updated")
	q.Set("per_page", fmt.Sprint(limit))

	var repos []Repo
	if err := g.get(ctx, "/users/"+url.PathEscape(user)+"/repos", q, &repos); err != nil {
		return nil, err
	}
	if len(repos) > limit {
		repos = repos[:limit]
	}
	return repos, nil
}

// Commits returns up to limit recent commits of owner/repo.
func (g *GitHub) Commits(ctx context.Context, owner, repo string, limit int) ([]Commit, error) {
	q := url.Values{}
	q.Set("per_page", fmt.Sprint(limit))

	var raw []struct {
		SHA    string `json:"sha"`
		Commit struct {
			Message string `json:"message"`
		} `json:"commit"`
	}
	if err := g.get(ctx, fmt.Sprintf("/repos/%s/%s/commits", url.PathEscape(owner), url.PathEscape(repo)), q, &raw); err != nil {
		return nil, err
	}
	if len(raw) > limit {
		raw = raw[:limit]
	}

	out := make([]Commit, len(raw))
	for i, c := range raw {
		out[i] = Commit{SHA: c.SHA, Message: c.Commit.Message}
	}
	return out, nil
}

// Patches returns the diffs of up to limit files changed by a commit.
func (g *GitHub) Patches(ctx context.Context, owner, repo, sha string, limit int) ([]string, error) {
	var raw struct {
		Files []struct {
			Patch string `json:"patch"`
		} `json:"files"`
	}
	path := fmt.Sprintf("/repos/%s/%s/commits/%s", url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(sha))
	if err := g.get(ctx, path, nil, &raw); err != nil {
		return nil, err
	}

	var out []string
	for _, f := range raw.Files {
		if len(out) == limit {
			break
		}
		if f.Patch != "" {
			out = append(out, f.Patch)
		}
	}
	return out, nil
}

func (g *GitHub) get(ctx context.Context, path string, q url.Values, out any) error {
	u := g.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	body, err := breaker.Do(g.cb, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		if g.token != "" {
			req.Header.Set("Authorization", "Bearer "+g.token)
		}

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &breaker.StatusError{Service: "github", Code: resp.StatusCode}
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse github response: %w", err)
	}
	return nil
}
