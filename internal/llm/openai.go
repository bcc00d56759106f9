package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompat talks to OpenAI and any OpenAI-compatible API.
type OpenAICompat struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAICompat creates a client; an empty BaseURL keeps the OpenAI default.
func NewOpenAICompat(opts Options) *OpenAICompat {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	cfg.HTTPClient = opts.httpClient()
	return &OpenAICompat{
		client:    openai.NewClientWithConfig(cfg),
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
	}
}

// Complete sends a chat completion and returns the first choice's text.
func (p *OpenAICompat) Complete(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		content := m.Content
		// Some providers reject empty string content
		if content == "" {
			content = " "
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: content})
	}

	oaiReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
	}
	if mt := firstPositive(req.MaxTokens, p.maxTokens); mt > 0 {
		oaiReq.MaxTokens = mt
	}

	resp, err := p.client.CreateChatCompletion(ctx, oaiReq)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
