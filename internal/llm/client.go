// Package llm provides chat and transcription through an OpenAI-compatible
// API.
//
// Every feature that needs a model goes through the Completer interface, so
// the feature packages can be tested with fakes. Requests pass a circuit
// breaker: when the API is down, callers get breaker.ErrOpen immediately and
// fall back to their canned answers.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/Atharva-Kanherkar/echo/internal/breaker"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrNoAPIKey is returned by every call when no API key is configured.
var ErrNoAPIKey = errors.New("no LLM API key configured")

// Completer is the chat surface the feature modules depend on.
type Completer interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	ChatWithSystem(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// Transcriber turns recorded speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// Client is an OpenAI-compatible API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	logger     *zap.Logger

	ChatModel       string
	TranscribeModel string
	MaxTokens       int
	Temperature     float64
}

// NewClient creates a client for baseURL (e.g. https://api.openai.com/v1).
func NewClient(apiKey, baseURL string, logger *zap.Logger) *Client {
	return &Client{
		apiKey:          apiKey,
		baseURL:         strings.TrimRight(baseURL, "/"),
		httpClient:      &http.Client{Timeout: 120 * time.Second},
		cb:              breaker.New("llm", logger),
		logger:          logger.Named("llm"),
		ChatModel:       "gpt-4o-mini",
		TranscribeModel: "whisper-1",
		MaxTokens:       1500,
		Temperature:     0.7,
	}
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", or "assistant"
	Content string `json:"content"`
}

// ChatRequest is the request body for chat completions.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// ChatResponse is the response from chat completions.
type ChatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type transcriptionResponse struct {
	Text  string    `json:"text"`
	Error *apiError `json:"error,omitempty"`
}

// Chat sends a chat completion request.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}

	body, err := json.Marshal(ChatRequest{
		Model:       c.ChatModel,
		Messages:    messages,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	respBody, err := c.post(ctx, "/chat/completions", "application/json", body)
	if err != nil {
		return "", err
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w (body: %s)", err, string(respBody))
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("API error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	choice := chatResp.Choices[0]
	if choice.FinishReason == "length" {
		c.logger.Debug("response truncated", zap.Int("max_tokens", c.MaxTokens))
	}
	return choice.Message.Content, nil
}

// ChatWithSystem sends a chat with a system prompt.
func (c *Client) ChatWithSystem(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	messages := []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userMessage},
	}
	return c.Chat(ctx, messages)
}

// Transcribe sends WAV audio to the transcription endpoint and returns the
// English text.
func (c *Client) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("failed to write audio: %w", err)
	}
	_ = mw.WriteField("model", c.TranscribeModel)
	_ = mw.WriteField("language", "en")
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish form: %w", err)
	}

	respBody, err := c.post(ctx, "/audio/transcriptions", mw.FormDataContentType(), buf.Bytes())
	if err != nil {
		return "", err
	}

	var tr transcriptionResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return "", fmt.Errorf("failed to parse transcription: %w", err)
	}
	if tr.Error != nil {
		return "", fmt.Errorf("API error: %s", tr.Error.Message)
	}
	return strings.TrimSpace(tr.Text), nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body []byte) ([]byte, error) {
	return breaker.Do(c.cb, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &breaker.StatusError{Service: "llm", Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
		}
		return respBody, nil
	})
}
