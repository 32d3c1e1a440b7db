package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"personarag/internal/domain"
)

// PersonaConfig is one entry of the persona registry.
type PersonaConfig struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name,omitempty"`
	Corpus      string `yaml:"corpus"`
	Description string `yaml:"description,omitempty"`
	UserAvatar  string `yaml:"user_avatar,omitempty"`
	BotAvatar   string `yaml:"bot_avatar,omitempty"`
}

// HashingEmbedderConfig configures the offline feature-hashing embedder.
type HashingEmbedderConfig struct {
	Dimensions int `yaml:"dimensions"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	// MaxRetries of 0 means DefaultEmbedRetries; a negative value disables retries.
	MaxRetries int `yaml:"max_retries"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type    string                 `yaml:"type"`
	Hashing *HashingEmbedderConfig `yaml:"hashing,omitempty"`
	OpenAI  *OpenAIEmbedderConfig  `yaml:"openai,omitempty"`
}

// GeneratorConfig selects and configures the remote completion service.
type GeneratorConfig struct {
	Type        string   `yaml:"type"`
	BaseURL     string   `yaml:"base_url"`
	APIKeyEnv   string   `yaml:"api_key_env"`
	Model       string   `yaml:"model"`
	TimeoutSecs int      `yaml:"timeout_secs"`
	MaxTokens   int      `yaml:"max_tokens,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
}

// RetrievalConfig configures nearest-neighbour retrieval.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// SummarizerConfig configures the persona corpus summary.
type SummarizerConfig struct {
	MaxSentences int `yaml:"max_sentences"`
}

// LogConfig configures the application logger.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Personas   []PersonaConfig  `yaml:"personas"`
	Embedder   EmbedderConfig   `yaml:"embedder"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Log        LogConfig        `yaml:"log"`

	// BaseDir is the directory relative corpus paths resolve against.
	BaseDir string `yaml:"-"`
}

const (
	DefaultTopK             = 3
	DefaultGeneratorURL     = "https://api.deepseek.com/v1"
	DefaultGeneratorModel   = "deepseek-chat"
	DefaultAPIKeyEnv        = "API_KEY"
	DefaultGeneratorTimeout = 60
	DefaultHashDimensions   = 256
	DefaultEmbedRetries     = 3
)

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			cfg.BaseDir = filepath.Dir(path)
			return cfg, nil
		}
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.BaseDir = filepath.Dir(path)
	return cfg, nil
}

// Parse decodes YAML config bytes and applies defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/personarag/config.yaml.
// If neither exists, it writes defaults to ~/.config/personarag/config.yaml and returns them.
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
	cfg.BaseDir = filepath.Dir(userPath)
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

// Validate checks the persona registry and component selections.
func (c *AppConfig) Validate() error {
	seen := make(map[string]struct{}, len(c.Personas))
	for i, p := range c.Personas {
		if p.ID == "" {
			return fmt.Errorf("personas[%d]: id is required", i)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("personas[%d]: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.Corpus == "" {
			return fmt.Errorf("persona %q: corpus is required", p.ID)
		}
	}
	switch c.Embedder.Type {
	case "hashing", "tfidf":
	case "openai":
		if c.Embedder.OpenAI == nil {
			return errors.New("openai embedder config missing")
		}
	default:
		return fmt.Errorf("unknown embedder: %s", c.Embedder.Type)
	}
	switch c.Generator.Type {
	case "openai", "anthropic", "gemini":
	default:
		return fmt.Errorf("unknown generator: %s", c.Generator.Type)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	return nil
}

// PersonaList converts the registry into domain personas, resolving corpus
// paths against BaseDir.
func (c *AppConfig) PersonaList() []domain.Persona {
	out := make([]domain.Persona, 0, len(c.Personas))
	for _, p := range c.Personas {
		src := p.Corpus
		if src != "" && !filepath.IsAbs(src) && c.BaseDir != "" {
			src = filepath.Join(c.BaseDir, src)
		}
		out = append(out, domain.Persona{
			ID:           p.ID,
			DisplayName:  p.DisplayName,
			CorpusSource: src,
			Description:  p.Description,
			UserAvatar:   p.UserAvatar,
			BotAvatar:    p.BotAvatar,
		})
	}
	return out
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "personarag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder: EmbedderConfig{Type: "hashing", Hashing: &HashingEmbedderConfig{Dimensions: DefaultHashDimensions}},
		Generator: GeneratorConfig{
			Type:        "openai",
			BaseURL:     DefaultGeneratorURL,
			APIKeyEnv:   DefaultAPIKeyEnv,
			Model:       DefaultGeneratorModel,
			TimeoutSecs: DefaultGeneratorTimeout,
		},
		Retrieval:  RetrievalConfig{TopK: DefaultTopK},
		Summarizer: SummarizerConfig{MaxSentences: 3},
		Log:        LogConfig{Level: "info"},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Type == "hashing" {
		if cfg.Embedder.Hashing == nil {
			cfg.Embedder.Hashing = &HashingEmbedderConfig{}
		}
		if cfg.Embedder.Hashing.Dimensions == 0 {
			cfg.Embedder.Hashing.Dimensions = DefaultHashDimensions
		}
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.MaxRetries == 0 {
			cfg.Embedder.OpenAI.MaxRetries = DefaultEmbedRetries
		}
	}
	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "openai"
	}
	if cfg.Generator.APIKeyEnv == "" {
		cfg.Generator.APIKeyEnv = DefaultAPIKeyEnv
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = DefaultGeneratorTimeout
	}
	if cfg.Generator.Type == "openai" {
		if cfg.Generator.BaseURL == "" {
			cfg.Generator.BaseURL = DefaultGeneratorURL
		}
		if cfg.Generator.Model == "" {
			cfg.Generator.Model = DefaultGeneratorModel
		}
	}
	if cfg.Generator.Type == "anthropic" && cfg.Generator.MaxTokens == 0 {
		cfg.Generator.MaxTokens = 1024
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = DefaultTopK
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 3
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
