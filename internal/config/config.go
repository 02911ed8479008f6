package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ProviderConfig configures one LLM backend. A provider with no API key is
// disabled (Ollama needs no key and is enabled by its base URL instead).
type ProviderConfig struct {
	APIKey      string  `koanf:"api_key"`
	Model       string  `koanf:"model"`
	BaseURL     string  `koanf:"base_url"`
	Temperature float64 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`
}

// Config is the application configuration.
type Config struct {
	AI struct {
		// Priority is the ordered provider list; first entry is primary.
		Priority []string `koanf:"priority"`
		// Hybrid toggles failover to the remaining providers.
		Hybrid      bool          `koanf:"hybrid"`
		CallTimeout time.Duration `koanf:"call_timeout"`
		// RateLimit caps router calls per second across all callers.
		// Zero leaves calls unpaced.
		RateLimit float64 `koanf:"rate_limit"`
	} `koanf:"ai"`

	Providers map[string]ProviderConfig `koanf:"providers"`

	Query struct {
		ChunkSize      int `koanf:"chunk_size"`
		MaxConcurrency int `koanf:"max_concurrency"`
		EvidenceCap    int `koanf:"evidence_cap"`
	} `koanf:"query"`

	Drift struct {
		BatchSize int           `koanf:"batch_size"`
		CallDelay time.Duration `koanf:"call_delay"`
		Interval  time.Duration `koanf:"interval"`
	} `koanf:"drift"`

	API struct {
		Port int `koanf:"port"`
	} `koanf:"api"`
}

// envKeyFixes restores the underscores inside multi-word config keys after
// the blanket underscore-to-dot translation of env variable names.
var envKeyFixes = strings.NewReplacer(
	"api.key", "api_key",
	"base.url", "base_url",
	"max.tokens", "max_tokens",
	"call.timeout", "call_timeout",
	"rate.limit", "rate_limit",
	"chunk.size", "chunk_size",
	"max.concurrency", "max_concurrency",
	"evidence.cap", "evidence_cap",
	"batch.size", "batch_size",
	"call.delay", "call_delay",
)

// LoadConfig loads configuration from defaults, an optional TOML file, and
// THREADSCOPE_-prefixed environment variables, in that precedence order.
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	k.Load(confmap.Provider(map[string]interface{}{
		"ai.priority":          []string{"openai", "gemini"},
		"ai.hybrid":            true,
		"ai.call_timeout":      "90s",
		"ai.rate_limit":        0.0,
		"query.chunk_size":     25,
		"query.max_concurrency": 4,
		"query.evidence_cap":   40,
		"drift.batch_size":     20,
		"drift.call_delay":     "2s",
		"drift.interval":       "5m",
		"api.port":             8484,
	}, "."), nil)

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		for _, path := range []string{"./threadscope.toml", "$HOME/.threadscope.toml"} {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// THREADSCOPE_PROVIDERS_OPENAI_API_KEY -> providers.openai.api_key
	k.Load(env.Provider("THREADSCOPE_", ".", func(s string) string {
		key := strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "THREADSCOPE_")), "_", ".", -1)
		return envKeyFixes.Replace(key)
	}), nil)

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	return &config, nil
}

// EnabledProviders returns router-ordered provider names that have working
// credentials. A missing credential silently disables the provider; with
// hybrid mode off only the first enabled provider is kept.
func (c *Config) EnabledProviders() []string {
	var enabled []string
	for _, name := range c.AI.Priority {
		p, ok := c.Providers[name]
		if !ok {
			continue
		}
		if p.APIKey == "" && name != "ollama" {
			continue
		}
		enabled = append(enabled, name)
	}
	if !c.AI.Hybrid && len(enabled) > 1 {
		enabled = enabled[:1]
	}
	return enabled
}

// Validate checks the configuration can run the core at all.
func Validate(c *Config) error {
	if len(c.AI.Priority) == 0 {
		return fmt.Errorf("ai.priority must list at least one provider")
	}
	if len(c.EnabledProviders()) == 0 {
		return fmt.Errorf("no provider has credentials configured")
	}
	if c.Query.ChunkSize <= 0 {
		return fmt.Errorf("query.chunk_size must be positive")
	}
	if c.Query.MaxConcurrency <= 0 {
		return fmt.Errorf("query.max_concurrency must be positive")
	}
	return nil
}

// InitConfig writes a sample configuration file.
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# Threadscope Configuration

[ai]
priority = ["openai", "gemini"]
hybrid = true
call_timeout = "90s"
# Router calls per second across all callers; 0 disables pacing.
rate_limit = 0.0

[providers.openai]
api_key = "your-openai-api-key"
model = "gpt-4o-mini"
temperature = 0.2

[providers.gemini]
api_key = "your-gemini-api-key"
model = "gemini-2.5-flash"
temperature = 0.2

[query]
chunk_size = 25
max_concurrency = 4
evidence_cap = 40

[drift]
batch_size = 20
call_delay = "2s"
interval = "5m"

[api]
port = 8484
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}
