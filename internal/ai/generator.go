package ai

import (
	"context"
	"fmt"

	"github.com/pauljones0/promo-reply-bot/internal/config"
	"github.com/pauljones0/promo-reply-bot/internal/models"
)

// Generator is implemented by every reply drafting backend.
type Generator interface {
	GenerateReply(ctx context.Context, post models.CandidatePost, promotion string) (string, error)
}

// NewGenerator returns the backend selected by LLM_PROVIDER.
func NewGenerator(ctx context.Context, cfg *config.Config) (Generator, error) {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		return NewOpenAIGenerator(cfg.OpenAIEndpoint, cfg.OpenAIModel, cfg.OpenAIAPIKey), nil
	case config.ProviderGemini, "":
		return NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}
