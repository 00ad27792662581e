package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gemini-chat/internal/domain"
)

const defaultBaseURL = "https://api.openai.com/v1"

// chatRequest is the minimal request shape for the Chat Completions endpoint.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
}

// chatMessage carries either a plain string or a list of contentParts.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type       string      `json:"type"`
	Text       string      `json:"text,omitempty"`
	ImageURL   *imageURL   `json:"image_url,omitempty"`
	InputAudio *inputAudio `json:"input_audio,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type inputAudio struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

// chatResponse is the minimal response shape returned by the Chat Completions endpoint.
type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client generates replies through an OpenAI-compatible Chat Completions API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("openai: api key must not be empty")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolvedHTTPClient returns the configured HTTP client, or a default with a
// 60s timeout if none was set.
func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 60 * time.Second}
}

func chatURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

func (c *Client) Generate(ctx context.Context, model string, conv domain.Conversation, opts domain.GenerationOptions) (string, error) {
	if model == "" {
		return "", errors.New("openai: model must not be empty")
	}
	messages, err := toMessages(conv, opts.SystemPrompt)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	url := chatURL(c.baseURL)

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return "", fmt.Errorf("openai: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return "", fmt.Errorf("openai: request failed: %w", err)
	}

	var payload chatResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return "", fmt.Errorf("openai: decode response: %w", decErr)
	}
	if len(payload.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	return payload.Choices[0].Message.Content, nil
}

func toMessages(conv domain.Conversation, systemPrompt string) ([]chatMessage, error) {
	messages := make([]chatMessage, 0, len(conv)+1)
	if s := strings.TrimSpace(systemPrompt); s != "" {
		messages = append(messages, chatMessage{Role: "system", Content: s})
	}
	for i, turn := range conv {
		content, err := toContent(turn.Parts)
		if err != nil {
			return nil, fmt.Errorf("openai: turn %d: %w", i, err)
		}
		role := "user"
		if turn.Role == domain.RoleModel {
			role = "assistant"
		}
		messages = append(messages, chatMessage{Role: role, Content: content})
	}
	return messages, nil
}

// toContent keeps text-only turns as a plain string and switches to the
// content-part array once a turn carries an attachment.
func toContent(parts []domain.Part) (any, error) {
	if len(parts) == 1 {
		if t, ok := parts[0].(domain.Text); ok {
			return t.Text, nil
		}
	}
	out := make([]contentPart, 0, len(parts))
	for _, p := range parts {
		switch v := p.(type) {
		case domain.Text:
			out = append(out, contentPart{Type: "text", Text: v.Text})
		case domain.Blob:
			cp, err := blobPart(v)
			if err != nil {
				return nil, err
			}
			out = append(out, cp)
		default:
			return nil, fmt.Errorf("unsupported part kind %q", p.PartKind())
		}
	}
	return out, nil
}

func blobPart(b domain.Blob) (contentPart, error) {
	encoded := base64.StdEncoding.EncodeToString(b.Data)
	switch {
	case strings.HasPrefix(b.MIMEType, "image/"):
		return contentPart{Type: "image_url", ImageURL: &imageURL{URL: "data:" + b.MIMEType + ";base64," + encoded}}, nil
	case strings.HasPrefix(b.MIMEType, "audio/"):
		format, ok := audioFormats[b.MIMEType]
		if !ok {
			return contentPart{}, fmt.Errorf("unsupported audio format %q", b.MIMEType)
		}
		return contentPart{Type: "input_audio", InputAudio: &inputAudio{Data: encoded, Format: format}}, nil
	default:
		return contentPart{}, fmt.Errorf("unsupported attachment type %q", b.MIMEType)
	}
}

var audioFormats = map[string]string{
	"audio/wav":   "wav",
	"audio/x-wav": "wav",
	"audio/wave":  "wav",
	"audio/mpeg":  "mp3",
	"audio/mp3":   "mp3",
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
