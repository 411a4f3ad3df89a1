package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pauljones0/promo-reply-bot/internal/models"
)

const openAIMaxTokens = 100

// OpenAIGenerator drafts replies through an OpenAI-compatible chat completions endpoint.
type OpenAIGenerator struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

func NewOpenAIGenerator(endpoint, model, apiKey string) *OpenAIGenerator {
	return &OpenAIGenerator{
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIGenerator) GenerateReply(ctx context.Context, post models.CandidatePost, promotion string) (string, error) {
	if c == nil || c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", unavailable("openai client misconfigured")
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildReplyPrompt(post, promotion)},
		},
		MaxTokens:   openAIMaxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("marshal openai payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", unavailable("openai request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", unavailable("openai error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", unavailable("decode openai response: %v", err)
	}
	if len(out.Choices) == 0 {
		return "", unavailable("openai returned no choices")
	}
	reply := CleanReply(out.Choices[0].Message.Content)
	if reply == "" {
		return "", unavailable("openai returned an empty reply")
	}
	return reply, nil
}
