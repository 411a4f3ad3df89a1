package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Source provides the product description used in reply prompts.
type Source interface {
	Promotion(ctx context.Context) (string, error)
}

// FileSource reads the promotion text from a markdown file.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Promotion(_ context.Context) (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("failed to read promotion file: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("promotion file %s is empty", s.path)
	}
	return text, nil
}

// URLSource scrapes the promotion text from a landing page.
type URLSource struct {
	client *Client
	url    string
}

func NewURLSource(client *Client, pageURL string) *URLSource {
	return &URLSource{client: client, url: pageURL}
}

func (s *URLSource) Promotion(ctx context.Context) (string, error) {
	return s.client.FetchPromotion(ctx, s.url)
}

// Chain returns the text of the first source that succeeds.
type Chain []Source

func FirstAvailable(sources ...Source) Chain {
	return Chain(sources)
}

func (c Chain) Promotion(ctx context.Context) (string, error) {
	var errs []error
	for i, src := range c {
		text, err := src.Promotion(ctx)
		if err == nil {
			return text, nil
		}
		if i < len(c)-1 {
			slog.Warn("Promotion source failed, trying next", "source", i, "error", err)
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", errors.New("no promotion source configured")
	}
	return "", errors.Join(errs...)
}
