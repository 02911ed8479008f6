package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Backend is one LLM provider the router can call.
type Backend interface {
	Name() string
	Model() string
	Generate(ctx context.Context, req Request) (string, TokenUsage, error)
}

// BackendConfig configures one langchaingo-backed provider.
type BackendConfig struct {
	Provider    string  `json:"provider"` // "openai", "gemini", "ollama"
	APIKey      string  `json:"api_key"`
	Model       string  `json:"model"`
	BaseURL     string  `json:"base_url,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

type langchainBackend struct {
	name  string
	model string
	llm   llms.Model
	cfg   BackendConfig
}

// NewBackend constructs a provider backend from config.
func NewBackend(ctx context.Context, cfg BackendConfig) (Backend, error) {
	var model llms.Model
	var err error

	log.Debug().
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Msg("Creating LLM backend")

	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case "gemini":
		opts := []googleai.Option{
			googleai.WithAPIKey(cfg.APIKey),
			googleai.WithDefaultModel(cfg.Model),
		}
		model, err = googleai.New(ctx, opts...)
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model, err = ollama.New(
			ollama.WithServerURL(baseURL),
			ollama.WithModel(cfg.Model),
		)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", cfg.Provider, err)
	}

	return &langchainBackend{
		name:  cfg.Provider,
		model: cfg.Model,
		llm:   model,
		cfg:   cfg,
	}, nil
}

func (b *langchainBackend) Name() string  { return b.name }
func (b *langchainBackend) Model() string { return b.model }

func (b *langchainBackend) Generate(ctx context.Context, req Request) (string, TokenUsage, error) {
	opts := []llms.CallOption{}

	temp := req.Temperature
	if temp == 0 {
		temp = b.cfg.Temperature
	}
	opts = append(opts, llms.WithTemperature(temp))

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = b.cfg.MaxTokens
	}
	if maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxTokens))
	}

	content := []llms.MessageContent{}
	if req.System != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	resp, err := b.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", TokenUsage{}, err
	}
	if len(resp.Choices) == 0 {
		return "", TokenUsage{}, fmt.Errorf("%s returned no choices", b.name)
	}

	choice := resp.Choices[0]
	return choice.Content, usageFromGenerationInfo(choice.GenerationInfo), nil
}

// usageFromGenerationInfo pulls token counts out of langchaingo's untyped
// per-choice metadata. Not every backend reports them.
func usageFromGenerationInfo(info map[string]any) TokenUsage {
	var u TokenUsage
	u.Prompt = intFromInfo(info, "PromptTokens", "input_tokens")
	u.Completion = intFromInfo(info, "CompletionTokens", "output_tokens")
	u.Total = intFromInfo(info, "TotalTokens")
	if u.Total == 0 {
		u.Total = u.Prompt + u.Completion
	}
	return u
}

func intFromInfo(info map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return v
		case float64:
			return int(v)
		}
	}
	return 0
}
