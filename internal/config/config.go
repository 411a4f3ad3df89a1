package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	BackendJSON      = "json"
	BackendFirestore = "firestore"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	DataDir        string `envconfig:"DATA_DIR" default:"data"`
	KeywordsFile   string `envconfig:"KEYWORDS_FILE" default:"config/keywords.json"`
	PromotionFile  string `envconfig:"PROMOTION_FILE" default:"content/promotion.md"`
	PromotionURL   string `envconfig:"PROMOTION_URL"`
	SelectorsFile  string `envconfig:"SELECTORS_CONFIG_PATH"`
	StorageBackend string `envconfig:"STORAGE_BACKEND" default:"json"`
	ProjectID      string `envconfig:"GOOGLE_CLOUD_PROJECT"`

	XBearerToken     string  `envconfig:"X_BEARER_TOKEN"`
	XUserAccessToken string  `envconfig:"X_USER_ACCESS_TOKEN"`
	XAPIBaseURL      string  `envconfig:"X_API_BASE_URL" default:"https://api.twitter.com"`
	XPostsPerSecond  float64 `envconfig:"X_POSTS_PER_SECOND" default:"1"`

	LLMProvider    string `envconfig:"LLM_PROVIDER" default:"gemini"`
	GeminiAPIKey   string `envconfig:"GEMINI_API_KEY"`
	GeminiModel    string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	OpenAIAPIKey   string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel    string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAIEndpoint string `envconfig:"OPENAI_ENDPOINT" default:"https://api.openai.com/v1/chat/completions"`

	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`

	BatchLimit       int           `envconfig:"BATCH_LIMIT" default:"5"`
	RecencyWindow    time.Duration `envconfig:"RECENCY_WINDOW" default:"48h"`
	ReplyTTL         time.Duration `envconfig:"REPLY_TTL" default:"24h"`
	SearchWindow     time.Duration `envconfig:"SEARCH_WINDOW" default:"24h"`
	SearchEndOffset  time.Duration `envconfig:"SEARCH_END_OFFSET" default:"30s"`
	SearchMaxResults int           `envconfig:"SEARCH_MAX_RESULTS" default:"100"`
	MaxSendAttempts  int           `envconfig:"MAX_SEND_ATTEMPTS" default:"5"`
	DropExpired      bool          `envconfig:"DROP_EXPIRED" default:"true"`
	MaxStoredResults int           `envconfig:"MAX_STORED_RESULTS" default:"5000"`
	RequestTimeout   time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	// OPENAI_API is the older variable name still found in existing .env files.
	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = os.Getenv("OPENAI_API")
	}

	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = BackendJSON
	}
	switch cfg.StorageBackend {
	case BackendJSON:
	case BackendFirestore:
		if cfg.ProjectID == "" {
			return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT environment variable is required for the firestore backend")
		}
	default:
		return nil, fmt.Errorf("invalid STORAGE_BACKEND %q: want %q or %q", cfg.StorageBackend, BackendJSON, BackendFirestore)
	}

	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = ProviderGemini
	}
	if cfg.LLMProvider != ProviderGemini && cfg.LLMProvider != ProviderOpenAI {
		return nil, fmt.Errorf("invalid LLM_PROVIDER %q: want %q or %q", cfg.LLMProvider, ProviderGemini, ProviderOpenAI)
	}

	if cfg.BatchLimit <= 0 {
		return nil, fmt.Errorf("invalid BATCH_LIMIT %d: must be positive", cfg.BatchLimit)
	}
	if cfg.ReplyTTL <= 0 {
		return nil, fmt.Errorf("invalid REPLY_TTL %s: must be positive", cfg.ReplyTTL)
	}
	if cfg.RecencyWindow <= 0 {
		return nil, fmt.Errorf("invalid RECENCY_WINDOW %s: must be positive", cfg.RecencyWindow)
	}
	if cfg.SearchWindow <= 0 {
		return nil, fmt.Errorf("invalid SEARCH_WINDOW %s: must be positive", cfg.SearchWindow)
	}
	// Recent search accepts 10..100 results per page.
	if cfg.SearchMaxResults < 10 || cfg.SearchMaxResults > 100 {
		return nil, fmt.Errorf("invalid SEARCH_MAX_RESULTS %d: must be between 10 and 100", cfg.SearchMaxResults)
	}
	if cfg.MaxSendAttempts < 0 {
		return nil, fmt.Errorf("invalid MAX_SEND_ATTEMPTS %d: must not be negative", cfg.MaxSendAttempts)
	}
	if cfg.XPostsPerSecond <= 0 {
		return nil, fmt.Errorf("invalid X_POSTS_PER_SECOND %v: must be positive", cfg.XPostsPerSecond)
	}

	if cfg.PromotionURL != "" {
		if _, err := url.ParseRequestURI(cfg.PromotionURL); err != nil {
			return nil, fmt.Errorf("invalid PROMOTION_URL %q: %w", cfg.PromotionURL, err)
		}
	}

	if cfg.DiscordWebhookURL == "" {
		slog.Warn("DISCORD_WEBHOOK_URL not set, run summaries will only be logged")
	}

	return &cfg, nil
}

// RequireSearch checks the credentials needed by the search stage.
func (c *Config) RequireSearch() error {
	if c.XBearerToken == "" {
		return fmt.Errorf("X_BEARER_TOKEN environment variable is required for search")
	}
	return nil
}

// RequirePrepare checks the credentials needed by the prepare stage.
func (c *Config) RequirePrepare() error {
	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable is required for the openai provider")
		}
	default:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY environment variable is required for the gemini provider")
		}
	}
	return nil
}

// RequireSend checks the credentials needed by the send stage.
func (c *Config) RequireSend() error {
	if c.XUserAccessToken == "" {
		return fmt.Errorf("X_USER_ACCESS_TOKEN environment variable is required for sending replies")
	}
	return nil
}

// PromotionDomains is the scrape allowlist derived from PROMOTION_URL.
func (c *Config) PromotionDomains() []string {
	if c.PromotionURL == "" {
		return nil
	}
	u, err := url.Parse(c.PromotionURL)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	host := u.Hostname()
	domains := []string{host}
	if bare, ok := strings.CutPrefix(host, "www."); ok {
		domains = append(domains, bare)
	} else {
		domains = append(domains, "www."+host)
	}
	return domains
}
