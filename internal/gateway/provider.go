package gateway

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/fyrsmithlabs/inboxd/internal/config"
	"github.com/fyrsmithlabs/inboxd/internal/logging"
)

// Default models per provider.
const (
	defaultGoogleAIModel  = "gemini-1.5-flash"
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-3-5-haiku-latest"
)

// New builds the gateway described by cfg, wrapped with the configured
// per-call timeout.
func New(ctx context.Context, cfg config.GatewayConfig, logger *logging.Logger) (Gateway, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	var g Gateway
	switch cfg.Provider {
	case "", config.ProviderHeuristic:
		g = NewHeuristicGateway()
	default:
		model, err := NewModel(ctx, cfg)
		if err != nil {
			return nil, err
		}
		g = NewLLMGateway(model,
			WithRateLimit(cfg.RateLimit, cfg.Burst),
			WithLogger(logger.Named("gateway")),
		)
	}

	return WithTimeout(g, cfg.Timeout.Duration()), nil
}

// NewModel creates the langchaingo model for a remote provider.
func NewModel(ctx context.Context, cfg config.GatewayConfig) (llms.Model, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("provider %q requires an api key", cfg.Provider)
	}

	switch cfg.Provider {
	case config.ProviderGoogleAI:
		model := cfg.Model
		if model == "" {
			model = defaultGoogleAIModel
		}
		llm, err := googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey.Value()),
			googleai.WithDefaultModel(model),
		)
		if err != nil {
			return nil, fmt.Errorf("create googleai client: %w", err)
		}
		return llm, nil

	case config.ProviderOpenAI:
		model := cfg.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey.Value()),
			openai.WithModel(model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return llm, nil

	case config.ProviderAnthropic:
		model := cfg.Model
		if model == "" {
			model = defaultAnthropicModel
		}
		opts := []anthropic.Option{
			anthropic.WithToken(cfg.APIKey.Value()),
			anthropic.WithModel(model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		llm, err := anthropic.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create anthropic client: %w", err)
		}
		return llm, nil
	}

	return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
}
