package scraper

import (
	"encoding/json"
	"fmt"
	"os"
)

type SelectorConfig struct {
	Landing PageSelectors `json:"landing_page"`
}

type PageSelectors struct {
	Title       string `json:"title"`
	Description string `json:"description"` // meta tag holding the summary
	JSONLD      string `json:"json_ld"`
	Content     string `json:"content"` // root of the readable page body
	Blocks      string `json:"blocks"`  // text blocks collected inside content
	Ignore      string `json:"ignore"`  // removed before collecting blocks
}

// LoadSelectors loads the selector configuration from the specified JSON file.
func LoadSelectors(path string) (SelectorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to read selector config file: %w", err)
	}

	return LoadSelectorsFromBytes(data)
}

// LoadSelectorsFromBytes parses selector configuration from raw JSON bytes.
// Missing fields keep their default values.
func LoadSelectorsFromBytes(data []byte) (SelectorConfig, error) {
	config := DefaultSelectors()
	if err := json.Unmarshal(data, &config); err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to parse selector config JSON: %w", err)
	}
	if config.Landing.Content == "" || config.Landing.Blocks == "" {
		return SelectorConfig{}, fmt.Errorf("selector config must define landing_page.content and landing_page.blocks")
	}

	return config, nil
}

// DefaultSelectors returns the fallback configuration if no JSON file is loaded.
func DefaultSelectors() SelectorConfig {
	return SelectorConfig{
		Landing: PageSelectors{
			Title:       "title",
			Description: `meta[name="description"], meta[property="og:description"]`,
			JSONLD:      `script[type="application/ld+json"]`,
			Content:     "main, article, body",
			Blocks:      "h1, h2, h3, p, li",
			Ignore:      "script, style, noscript, nav, footer, header, form, svg",
		},
	}
}
