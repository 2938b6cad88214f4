package llm

import (
	"fmt"

	"github.com/rahul/commander/internal/observability"
	"github.com/rahul/commander/pkg/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const openRouterURL = "https://openrouter.ai/api/v1"

// NewFromConfig builds the gateway for the configured provider. The direct
// Ollama client is the default; the langchaingo providers cover hosted APIs.
func NewFromConfig(cfg *config.Config, logger *observability.Logger) (Gateway, error) {
	stages := cfg.Stages()

	var (
		model llms.Model
		err   error
	)
	switch cfg.LLM.Provider {
	case "ollama", "":
		return NewOllamaGateway(cfg.LLM.URL, WithLogger(logger)), nil
	case "langchain-ollama":
		opts := []ollama.Option{ollama.WithModel(stages.StageBModel)}
		if cfg.LLM.URL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.LLM.URL))
		}
		model, err = ollama.New(opts...)
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(cfg.LLM.APIKey),
			openai.WithModel(stages.StageBModel),
		}
		baseURL := cfg.LLM.URL
		if cfg.LLM.Provider == "openrouter" && (baseURL == "" || baseURL == config.Default().LLM.URL) {
			baseURL = openRouterURL
		}
		if baseURL != "" && baseURL != config.Default().LLM.URL {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		model, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("provider %s not supported", cfg.LLM.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s provider: %w", cfg.LLM.Provider, err)
	}
	return NewLangchainGateway(model, stages.StageBModel, logger), nil
}
