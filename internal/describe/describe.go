// Package describe talks to an OpenAI-compatible chat completions
// endpoint (Groq by default) to generate YouTube description text and to
// repair whisper transcription slips. Everything here is best-effort
// garnish on top of a finished render; callers treat failures as
// "continue without the artifact".
package describe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirinuki/kirinuki-agent/internal/subtitles"
)

const (
	// DefaultBaseURL is the Groq OpenAI-compatible API root.
	DefaultBaseURL = "https://api.groq.com/openai/v1"

	// DefaultModel is the completion model used when none is configured.
	DefaultModel = "llama-3.3-70b-versatile"

	// TranscriptPlaceholder marks where the transcript is spliced into a
	// description prompt template.
	TranscriptPlaceholder = "（ここに文字起こしを貼る）"

	descriptionTemperature = 0.7
	descriptionMaxTokens   = 2048
)

// DefaultTemplate is the built-in description prompt, used when no
// template file is configured.
const DefaultTemplate = `以下は切り抜き動画の文字起こしです。この内容をもとに、YouTubeの説明欄に使う紹介文を日本語で書いてください。動画の見どころを2〜3文でまとめ、最後に関連するハッシュタグを付けてください。説明文以外の出力は不要です。

（ここに文字起こしを貼る）`

// APIError represents a non-2xx response from the completions endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat completion failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for rate limits and server errors. Other
// client errors (bad key, bad request) are permanent.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client is a minimal chat-completions client.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
	maxRetries int
	backoff    time.Duration
}

// NewClient creates a Client. Empty baseURL and model fall back to the
// Groq defaults.
func NewClient(baseURL, apiKey, model string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger:     logger,
		maxRetries: 3,
		backoff:    2 * time.Second,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends a single user message and returns the model's reply,
// retrying rate limits and server errors with linear backoff.
func (c *Client) Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("no API key configured")
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	c.logger.Info("requesting chat completion",
		"model", c.model,
		"prompt_bytes", len(prompt),
		"max_tokens", maxTokens,
	)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying chat completion", "attempt", attempt, "error", lastErr)
			select {
			case <-time.After(c.backoff * time.Duration(attempt)):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := c.complete(ctx, body)
		if err == nil {
			return text, nil
		}
		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			return "", err
		}
	}
	return "", lastErr
}

func (c *Client) complete(ctx context.Context, body []byte) (string, error) {
	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("chat response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// GenerateDescription splices the transcript into the prompt template and
// asks the model for description text.
func (c *Client) GenerateDescription(ctx context.Context, template, transcript string) (string, error) {
	if template == "" {
		template = DefaultTemplate
	}
	prompt := strings.ReplaceAll(template, TranscriptPlaceholder, transcript)

	description, err := c.Complete(ctx, prompt, descriptionTemperature, descriptionMaxTokens)
	if err != nil {
		return "", err
	}
	c.logger.Info("description generated", "chars", len([]rune(description)))
	return description, nil
}

// ExtractTranscript joins the text of every cue into the plain transcript
// fed to the description prompt. Timing and numbering are discarded.
func ExtractTranscript(cues []subtitles.Cue) string {
	var lines []string
	for _, cue := range cues {
		for _, line := range strings.Split(cue.Text, "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				lines = append(lines, line)
			}
		}
	}
	return strings.Join(lines, "\n")
}
