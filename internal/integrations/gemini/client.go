package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"gemini-chat/internal/domain"
)

// modelsAPI is the subset of *genai.Models used by Client.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client generates replies through the Gemini API.
type Client struct {
	models modelsAPI
}

// NewClient creates a Gemini API client authenticated with apiKey.
func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini: api key must not be empty")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Client{models: c.Models}, nil
}

func newWithModels(m modelsAPI) (*Client, error) {
	if m == nil {
		return nil, errors.New("gemini: models api must not be nil")
	}
	return &Client{models: m}, nil
}

func (c *Client) Generate(ctx context.Context, model string, conv domain.Conversation, opts domain.GenerationOptions) (string, error) {
	if model == "" {
		return "", errors.New("gemini: model must not be empty")
	}
	contents, err := toContents(conv)
	if err != nil {
		return "", err
	}

	resp, err := c.models.GenerateContent(ctx, model, contents, toConfig(opts))
	if err != nil {
		return "", fmt.Errorf("gemini: generate with %s: %w", model, err)
	}
	text, err := responseText(resp)
	if err != nil {
		return "", fmt.Errorf("gemini: %s: %w", model, err)
	}
	return text, nil
}

func toContents(conv domain.Conversation) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(conv))
	for i, turn := range conv {
		parts := make([]*genai.Part, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			switch v := p.(type) {
			case domain.Text:
				parts = append(parts, genai.NewPartFromText(v.Text))
			case domain.Blob:
				parts = append(parts, genai.NewPartFromBytes(v.Data, v.MIMEType))
			default:
				return nil, fmt.Errorf("gemini: turn %d: unsupported part kind %q", i, p.PartKind())
			}
		}
		contents = append(contents, genai.NewContentFromParts(parts, toRole(turn.Role)))
	}
	return contents, nil
}

func toRole(r domain.Role) genai.Role {
	if r == domain.RoleModel {
		return genai.RoleModel
	}
	return genai.RoleUser
}

func toConfig(opts domain.GenerationOptions) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{Temperature: opts.Temperature}
	if s := strings.TrimSpace(opts.SystemPrompt); s != "" {
		cfg.SystemInstruction = genai.NewContentFromText(s, genai.RoleUser)
	}
	return cfg
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return "", errors.New("no candidates in response")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return "", fmt.Errorf("empty candidate (finish reason %s)", cand.FinishReason)
	}
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		sb.WriteString(p.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("no text in response (finish reason %s)", cand.FinishReason)
	}
	return sb.String(), nil
}
