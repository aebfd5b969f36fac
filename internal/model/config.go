package model

import "time"

// Config is the complete Competia configuration.
// Loaded via viper with the hierarchy: flags > COMPETIA_* env > config file > defaults.
type Config struct {
	Routing     RoutingConfig     `yaml:"routing" mapstructure:"routing"`
	Providers   ProvidersConfig   `yaml:"providers" mapstructure:"providers"`
	Ledger      LedgerConfig      `yaml:"ledger" mapstructure:"ledger"`
	Extraction  ExtractionConfig  `yaml:"extraction" mapstructure:"extraction"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
}

// RoutingConfig controls how AI requests map to providers.
// Both the task table and fallback behavior are overridable without
// code change.
type RoutingConfig struct {
	// TaskProviders maps a task type (e.g. "extraction") to a provider
	// name ("openai", "anthropic", "ollama"). Task types absent from the
	// table use the cost-preferring auto policy.
	TaskProviders map[string]string `yaml:"task_providers" mapstructure:"task_providers"`

	// FallbackEnabled allows routing to any available provider when the
	// configured one is unavailable.
	FallbackEnabled bool `yaml:"fallback_enabled" mapstructure:"fallback_enabled"`

	// BreakerThreshold is the number of consecutive failures after which
	// a provider is treated as unavailable for the rest of the run.
	BreakerThreshold int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`

	// Pricing maps model name -> per-1M-token prices, used only for cost
	// estimation. Entries here override the built-in table.
	Pricing map[string]ModelPricing `yaml:"pricing,omitempty" mapstructure:"pricing"`
}

// ModelPricing is the per-1M-token price pair for one model.
type ModelPricing struct {
	InputPer1M  float64 `yaml:"input_per_1m" mapstructure:"input_per_1m"`
	OutputPer1M float64 `yaml:"output_per_1m" mapstructure:"output_per_1m"`
}

// ProvidersConfig holds per-provider connection settings.
type ProvidersConfig struct {
	OpenAI    ProviderSettings `yaml:"openai" mapstructure:"openai"`
	Anthropic ProviderSettings `yaml:"anthropic" mapstructure:"anthropic"`
	Ollama    ProviderSettings `yaml:"ollama" mapstructure:"ollama"`
}

// ProviderSettings configures one AI backend. A provider with Enabled=false
// is absent from routing entirely; absence is a visible configured state.
type ProviderSettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Model   string `yaml:"model" mapstructure:"model"`
	APIKey  string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout int    `yaml:"timeout" mapstructure:"timeout"` // seconds
}

// LedgerConfig configures the durable claim store.
type LedgerConfig struct {
	// Path is the BadgerDB directory. Ignored when InMemory is true.
	Path string `yaml:"path" mapstructure:"path"`

	// InMemory runs the ledger without disk persistence. Testing only.
	InMemory bool `yaml:"in_memory" mapstructure:"in_memory"`

	// SyncWrites forces fsync on commit for crash durability.
	SyncWrites bool `yaml:"sync_writes" mapstructure:"sync_writes"`

	// MinScore is the confidence floor below which a candidate is parked
	// as review_required instead of becoming active.
	MinScore int `yaml:"min_score" mapstructure:"min_score"`
}

// ExtractionConfig tunes the extraction agent.
type ExtractionConfig struct {
	// MaxEvidenceChars caps the evidence text sent to a provider.
	MaxEvidenceChars int `yaml:"max_evidence_chars" mapstructure:"max_evidence_chars"`

	// MaxAttempts bounds retries on transient router failures.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`

	// BackoffBase is the initial retry delay; it doubles per attempt.
	BackoffBase time.Duration `yaml:"backoff_base" mapstructure:"backoff_base"`
}

// ConcurrencyConfig controls the refresh job pool.
type ConcurrencyConfig struct {
	// Workers is the number of concurrent per-competitor jobs.
	Workers int `yaml:"workers" mapstructure:"workers"`

	// StaggerDelay is the pause between job starts, to spread load on
	// third-party backends. It staggers starts; it does not serialize jobs.
	StaggerDelay time.Duration `yaml:"stagger_delay" mapstructure:"stagger_delay"`

	// JobTimeout is the wall-clock budget for one competitor refresh.
	JobTimeout time.Duration `yaml:"job_timeout" mapstructure:"job_timeout"`

	// ExtractionsPerSecond rate-limits extraction calls across all jobs.
	ExtractionsPerSecond float64 `yaml:"extractions_per_second" mapstructure:"extractions_per_second"`

	// Burst is the rate limiter burst size.
	Burst int `yaml:"burst" mapstructure:"burst"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Routing: RoutingConfig{
			TaskProviders: map[string]string{
				"extraction":     "openai",
				"classification": "openai",
				"summarization":  "anthropic",
			},
			FallbackEnabled:  true,
			BreakerThreshold: 3,
		},
		Providers: ProvidersConfig{
			OpenAI:    ProviderSettings{Enabled: true, Model: "gpt-4o-mini", Timeout: 30},
			Anthropic: ProviderSettings{Enabled: false, Model: "claude-3-5-sonnet-20241022", Timeout: 30},
			Ollama:    ProviderSettings{Enabled: false, Model: "llama3.1", BaseURL: "http://localhost:11434", Timeout: 60},
		},
		Ledger: LedgerConfig{
			Path:       "", // resolved to ~/.competia/ledger by the CLI
			SyncWrites: true,
			MinScore:   40,
		},
		Extraction: ExtractionConfig{
			MaxEvidenceChars: 12000,
			MaxAttempts:      3,
			BackoffBase:      500 * time.Millisecond,
		},
		Concurrency: ConcurrencyConfig{
			Workers:              4,
			StaggerDelay:         250 * time.Millisecond,
			JobTimeout:           3 * time.Minute,
			ExtractionsPerSecond: 2,
			Burst:                4,
		},
	}
}
