// Package llm wraps the generative text services used for classification and
// reply generation behind a single Provider interface. Two wire families are
// supported: OpenAI-compatible chat completions (OpenAI itself and Gemini's
// OpenAI endpoint) and the Anthropic Messages API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Roles accepted in Request.Messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// GeminiBaseURL is Gemini's OpenAI-compatible endpoint.
const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// ErrEmptyResponse is returned when the service answered without any text.
var ErrEmptyResponse = errors.New("llm: empty response")

// Message is one conversational turn.
type Message struct {
	Role    string
	Content string
}

// Request is a single completion call. Model and MaxTokens fall back to the
// provider defaults when zero.
type Request struct {
	Model     string
	System    string
	Messages  []Message
	MaxTokens int
}

// Provider turns a Request into free text.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Options configures a provider client.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	HTTPClient *http.Client
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: o.Timeout}
}

// New builds the provider named by kind: gemini, openai or anthropic.
func New(kind string, opts Options) (Provider, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("llm: api key is required")
	}
	switch strings.ToLower(kind) {
	case "gemini":
		if opts.BaseURL == "" {
			opts.BaseURL = GeminiBaseURL
		}
		return NewOpenAICompat(opts), nil
	case "openai":
		return NewOpenAICompat(opts), nil
	case "anthropic":
		return NewAnthropic(opts), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", kind)
	}
}

// UserPrompt is shorthand for a request with one user turn.
func UserPrompt(system, text string) Request {
	return Request{
		System:   system,
		Messages: []Message{{Role: RoleUser, Content: text}},
	}
}
