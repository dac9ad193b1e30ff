package workspace

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

// maxFigmaFrames caps how many frames one import renders.
const maxFigmaFrames = 5

// FigmaNode is a node of a Figma document tree.
type FigmaNode struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	Children []FigmaNode `json:"children"`
}

// FigmaFile is the subset of GET /v1/files/{key} we use.
type FigmaFile struct {
	Name     string    `json:"name"`
	Document FigmaNode `json:"document"`
}

// FigmaClient reads design files from the Figma REST API.
type FigmaClient struct {
	token      string
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
}

// NewFigmaClient creates a client authenticating with a personal token.
func NewFigmaClient(token string, logger *zap.Logger) *FigmaClient {
	return &FigmaClient{
		token:      token,
		baseURL:    "https://api.figma.com",
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cb:         breaker.New("figma", logger),
	}
}

// SetBaseURL points the client at another host.
func (c *FigmaClient) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

// ParseFileKey extracts the key from https://www.figma.com/file/{key}/...
// (or /design/{key}/...).
func ParseFileKey(figmaURL string) (string, error) {
	parts := strings.Split(strings.TrimRight(figmaURL, "/"), "/")
	for i, p := range parts {
		if (p == "file" || p == "design") && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}
	return "", fmt.Errorf("invalid Figma URL: %s", figmaURL)
}

// File fetches a design file.
func (c *FigmaClient) File(ctx context.Context, key string) (*FigmaFile, error) {
	var f FigmaFile
	if err := c.get(ctx, "/v1/files/"+url.PathEscape(key), nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Images renders the given node ids as PNGs and returns id -> image URL.
func (c *FigmaClient) Images(ctx context.Context, key string, ids []string) (map[string]string, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("format", "png")

	var resp struct {
		Err    any               `json:"err"`
		Images map[string]string `json:"images"`
	}
	if err := c.get(ctx, "/v1/images/"+url.PathEscape(key), q, &resp); err != nil {
		return nil, err
	}
	return resp.Images, nil
}

// Import resolves a Figma URL to rendered images of its first frames.
func (c *FigmaClient) Import(ctx context.Context, figmaURL string) (map[string]string, error) {
	key, err := ParseFileKey(figmaURL)
	if err != nil {
		return nil, err
	}
	f, err := c.File(ctx, key)
	if err != nil {
		return nil, err
	}
	ids := FrameIDs(f.Document)
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	if len(ids) > maxFigmaFrames {
		ids = ids[:maxFigmaFrames]
	}
	return c.Images(ctx, key, ids)
}

// FrameIDs collects the ids of FRAME nodes depth-first.
func FrameIDs(n FigmaNode) []string {
	var ids []string
	if n.Type == "FRAME" {
		ids = append(ids, n.ID)
	}
	for _, child := range n.Children {
		ids = append(ids, FrameIDs(child)...)
	}
	return ids
}

func (c *FigmaClient) get(ctx context.Context, path string, q url.Values, out any) error {
	if c.token == "" {
		return fmt.Errorf("figma token not configured")
	}
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	body, err := breaker.Do(c.cb, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("X-Figma-Token", c.token)

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
			return nil, &breaker.StatusError{Service: "figma", Code: resp.StatusCode}
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse figma response: %w", err)
	}
	return nil
}
