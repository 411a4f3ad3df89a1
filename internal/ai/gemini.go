package ai

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/pauljones0/promo-reply-bot/internal/models"
)

type GeminiGenerator struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

func NewGeminiGenerator(ctx context.Context, apiKey, modelID string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiGenerator{
		client: client,
		model:  modelID,
		config: &genai.GenerateContentConfig{
			Temperature:       genai.Ptr[float32](0.7),
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		},
	}, nil
}

func (g *GeminiGenerator) GenerateReply(ctx context.Context, post models.CandidatePost, promotion string) (string, error) {
	if g == nil || g.client == nil {
		return "", unavailable("gemini client not configured")
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(BuildReplyPrompt(post, promotion)), g.config)
	if err != nil {
		return "", unavailable("gemini generation failed: %v", err)
	}

	text, err := responseText(resp)
	if err != nil {
		return "", err
	}
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", unavailable("no response candidates from gemini")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought || part.Text == "" {
			continue
		}
		if reply := CleanReply(part.Text); reply != "" {
			return reply, nil
		}
	}
	return "", unavailable("no text part in gemini response")
}
