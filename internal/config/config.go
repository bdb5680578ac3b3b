package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"termsearch/internal/embedding"
	"termsearch/internal/embedding/llama"
	"termsearch/internal/embedding/openai"
)

// LlamaEmbedderConfig holds configuration for the llama.cpp style embedding server.
type LlamaEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI embedder.
type OpenAIEmbedderConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
}

// EmbedderConfig selects and configures the embedding provider.
type EmbedderConfig struct {
	Type              string                `yaml:"type"`
	Dimension         int                   `yaml:"dimension"`
	HealthTimeoutSecs int                   `yaml:"health_timeout_secs"`
	Llama             *LlamaEmbedderConfig  `yaml:"llama,omitempty"`
	OpenAI            *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how text is split into sections.
type ChunkerConfig struct {
	Type         string `yaml:"type"`
	Delimiter    string `yaml:"delimiter"`
	DefaultTitle string `yaml:"default_title"`
}

// IndexConfig locates the checkpoint and the document built on cold start.
type IndexConfig struct {
	CacheDir      string `yaml:"cache_dir"`
	Name          string `yaml:"name"`
	DefaultSource string `yaml:"default_source"`
}

// SearchConfig configures query defaults.
type SearchConfig struct {
	TopK int `yaml:"top_k"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type        string `yaml:"type"`
	MaxSections int    `yaml:"max_sections"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder   EmbedderConfig   `yaml:"embedder"`
	Chunker    ChunkerConfig    `yaml:"chunker"`
	Index      IndexConfig      `yaml:"index"`
	Search     SearchConfig     `yaml:"search"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			applyConfigDefaults(cfg)
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg)
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/termsearch/config.yaml.
// If neither exists, it writes defaults to ~/.config/termsearch/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnvOverrides(cfg)
	applyConfigDefaults(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// EmbeddingConfig converts the embedder section into the provider factory input.
func (c *AppConfig) EmbeddingConfig() embedding.Config {
	out := embedding.Config{
		Kind:          embedding.Kind(c.Embedder.Type),
		Dimension:     c.Embedder.Dimension,
		HealthTimeout: time.Duration(c.Embedder.HealthTimeoutSecs) * time.Second,
	}
	if l := c.Embedder.Llama; l != nil {
		out.Llama = llama.Config{
			BaseURL:          l.BaseURL,
			Timeout:          time.Duration(l.TimeoutSecs) * time.Second,
			MaxRetries:       l.MaxRetries,
			DefaultDimension: c.Embedder.Dimension,
		}
	}
	if o := c.Embedder.OpenAI; o != nil {
		out.OpenAI = openai.Config{
			BaseURL:   o.BaseURL,
			APIKeyEnv: o.APIKeyEnv,
			Model:     o.Model,
			BatchSize: o.BatchSize,
		}
	}
	return out
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "termsearch", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder: EmbedderConfig{
			Type:              "llama",
			Dimension:         384,
			HealthTimeoutSecs: 2,
			Llama:             &LlamaEmbedderConfig{BaseURL: "http://localhost:8080", TimeoutSecs: 30},
		},
		Chunker:    ChunkerConfig{Type: "marker", Delimiter: "**", DefaultTitle: "Introduction"},
		Index:      IndexConfig{CacheDir: "cache", Name: "terms_search", DefaultSource: "noterms.md"},
		Search:     SearchConfig{TopK: 5},
		Summarizer: SummarizerConfig{Type: "frequency", MaxSections: 3},
	}
	return cfg
}

// applyEnvOverrides honours EMBEDDING_PROVIDER, EMBEDDING_API_URL,
// EMBEDDING_DIMENSION and TERMSEARCH_CACHE_DIR.
func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv("EMBEDDING_PROVIDER")); v != "" {
		cfg.Embedder.Type = v
	}
	if v := strings.TrimSpace(os.Getenv("EMBEDDING_API_URL")); v != "" {
		if cfg.Embedder.Llama == nil {
			cfg.Embedder.Llama = &LlamaEmbedderConfig{}
		}
		cfg.Embedder.Llama.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("EMBEDDING_DIMENSION")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Embedder.Dimension = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("TERMSEARCH_CACHE_DIR")); v != "" {
		cfg.Index.CacheDir = v
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "llama"
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 384
	}
	if cfg.Embedder.HealthTimeoutSecs == 0 {
		cfg.Embedder.HealthTimeoutSecs = 2
	}
	if cfg.Embedder.Type == "llama" {
		if cfg.Embedder.Llama == nil {
			cfg.Embedder.Llama = &LlamaEmbedderConfig{}
		}
		if cfg.Embedder.Llama.BaseURL == "" {
			cfg.Embedder.Llama.BaseURL = "http://localhost:8080"
		}
		if cfg.Embedder.Llama.TimeoutSecs == 0 {
			cfg.Embedder.Llama.TimeoutSecs = 30
		}
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	}
	if cfg.Chunker.Delimiter == "" {
		cfg.Chunker.Delimiter = "**"
	}
	if cfg.Chunker.DefaultTitle == "" {
		cfg.Chunker.DefaultTitle = "Introduction"
	}
	if cfg.Index.CacheDir == "" {
		cfg.Index.CacheDir = "cache"
	}
	if cfg.Index.Name == "" {
		cfg.Index.Name = "terms_search"
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = 5
	}
	if cfg.Summarizer.MaxSections == 0 {
		cfg.Summarizer.MaxSections = 3
	}
}
