// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package config

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/engram-dev/engram/internal/logging"
	"github.com/engram-dev/engram/internal/memory"
	"github.com/engram-dev/engram/internal/redact"
	engramerr "github.com/engram-dev/engram/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the top-level engram configuration.
type Config struct {
	DataDir     string            `mapstructure:"data_dir" yaml:"data_dir"`
	Verbose     bool              `mapstructure:"verbose" yaml:"verbose"`
	Storage     StorageConfig     `mapstructure:"storage" yaml:"storage"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding" yaml:"embedding"`
	Retrieval   RetrievalConfig   `mapstructure:"retrieval" yaml:"retrieval"`
	Indexing    IndexingConfig    `mapstructure:"indexing" yaml:"indexing"`
	Compression CompressionConfig `mapstructure:"compression" yaml:"compression"`
	Context     ContextConfig     `mapstructure:"context" yaml:"context"`
	Redaction   RedactionConfig   `mapstructure:"redaction" yaml:"redaction"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// StorageConfig selects the storage backends.
type StorageConfig struct {
	Backend       string        `mapstructure:"backend" yaml:"backend"`
	VectorBackend string        `mapstructure:"vector_backend" yaml:"vector_backend"`
	BusyTimeout   time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout"`
}

// EmbeddingConfig selects the embedding model. APIKey may be a keyring://
// reference.
type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider" yaml:"provider"`
	Model      string        `mapstructure:"model" yaml:"model"`
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`
	Dimensions int           `mapstructure:"dimensions" yaml:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Cooldown   time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
	CacheBytes int64         `mapstructure:"cache_bytes" yaml:"cache_bytes"`
}

// RetrievalConfig tunes hybrid search.
type RetrievalConfig struct {
	Mode                string  `mapstructure:"mode" yaml:"mode"`
	SemanticWeight      float64 `mapstructure:"semantic_weight" yaml:"semantic_weight"`
	KeywordWeight       float64 `mapstructure:"keyword_weight" yaml:"keyword_weight"`
	CandidateMultiplier int     `mapstructure:"candidate_multiplier" yaml:"candidate_multiplier"`
	DefaultLimit        int     `mapstructure:"default_limit" yaml:"default_limit"`
}

// IndexingConfig controls when vectors are written and how failures retry.
type IndexingConfig struct {
	Policy        string        `mapstructure:"policy" yaml:"policy"`
	RetryInterval time.Duration `mapstructure:"retry_interval" yaml:"retry_interval"`
	MaxAttempts   int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BatchSize     int           `mapstructure:"batch_size" yaml:"batch_size"`
}

// CompressionConfig controls session compression.
type CompressionConfig struct {
	Threshold            int    `mapstructure:"threshold" yaml:"threshold"`
	MaxSourcesPerSummary int    `mapstructure:"max_sources_per_summary" yaml:"max_sources_per_summary"`
	Summarizer           string `mapstructure:"summarizer" yaml:"summarizer"`
	Model                string `mapstructure:"model" yaml:"model"`
	Endpoint             string `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey               string `mapstructure:"api_key" yaml:"api_key"`
	MaxTokens            int    `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// ContextConfig bounds session-start context.
type ContextConfig struct {
	Limit    int `mapstructure:"limit" yaml:"limit"`
	MaxChars int `mapstructure:"max_chars" yaml:"max_chars"`
}

// RedactionConfig controls credential scrubbing on write.
type RedactionConfig struct {
	Mode string `mapstructure:"mode" yaml:"mode"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Listen      string   `mapstructure:"listen" yaml:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderGoogle = "google"
	ProviderHash   = "hash"

	SummarizerExtractive = "extractive"
	SummarizerAnthropic  = "anthropic"

	DefaultListen = "127.0.0.1:7437"
)

var (
	validProviders   = []string{ProviderOllama, ProviderOpenAI, ProviderGoogle, ProviderHash}
	validSummarizers = []string{SummarizerExtractive, SummarizerAnthropic}
)

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "~/.engram")
	v.SetDefault("verbose", false)

	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.vector_backend", "sqlite")
	v.SetDefault("storage.busy_timeout", 5*time.Second)

	v.SetDefault("embedding.provider", ProviderOllama)
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.endpoint", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.dimensions", 1024)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.cooldown", 30*time.Second)
	v.SetDefault("embedding.cache_bytes", 16<<20)

	v.SetDefault("retrieval.mode", string(memory.ModeHybrid))
	v.SetDefault("retrieval.semantic_weight", memory.DefaultWeights.Semantic)
	v.SetDefault("retrieval.keyword_weight", memory.DefaultWeights.Keyword)
	v.SetDefault("retrieval.candidate_multiplier", memory.DefaultCandidateMultiplier)
	v.SetDefault("retrieval.default_limit", memory.DefaultLimit)

	v.SetDefault("indexing.policy", string(memory.PolicySync))
	v.SetDefault("indexing.retry_interval", memory.DefaultRetryInterval)
	v.SetDefault("indexing.max_attempts", memory.DefaultMaxAttempts)
	v.SetDefault("indexing.batch_size", memory.DefaultBatchSize)

	v.SetDefault("compression.threshold", memory.DefaultCompressThreshold)
	v.SetDefault("compression.max_sources_per_summary", memory.DefaultMaxSourcesPerSummary)
	v.SetDefault("compression.summarizer", SummarizerExtractive)
	v.SetDefault("compression.model", "")
	v.SetDefault("compression.endpoint", "")
	v.SetDefault("compression.api_key", "")
	v.SetDefault("compression.max_tokens", 1024)

	v.SetDefault("context.limit", memory.DefaultContextLimit)
	v.SetDefault("context.max_chars", memory.DefaultContextMaxChars)

	v.SetDefault("redaction.mode", string(redact.ModeRedact))

	v.SetDefault("server.listen", DefaultListen)
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", logging.FormatText)
}

// SetupEnv maps ENGRAM_SECTION_KEY variables onto section.key.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("ENGRAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from path (or defaults only when empty) with
// ENGRAM_ environment overrides, and validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, engramerr.Errorf(engramerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, engramerr.Errorf(engramerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	dir, err := ExpandHome(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	cfg.DataDir = dir

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, engramerr.Errorf(engramerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}
	return &cfg, nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", engramerr.Errorf(engramerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Validate checks the configuration for logical errors.
// It returns every problem found rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, invalid("config: data_dir must not be empty"))
	}
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateRetrieval()...)
	errs = append(errs, c.validateIndexing()...)
	errs = append(errs, c.validateCompression()...)
	errs = append(errs, c.validateContext()...)
	if _, err := redact.ParseMode(c.Redaction.Mode); err != nil || c.Redaction.Mode == "" {
		errs = append(errs, invalid("config: redaction.mode must be one of [off, redact, block], got %q", c.Redaction.Mode))
	}
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	if c.Storage.Backend != "sqlite" {
		errs = append(errs, invalid("config: storage.backend must be one of [sqlite], got %q", c.Storage.Backend))
	}
	validVector := map[string]bool{"sqlite": true, "chromem": true}
	if !validVector[c.Storage.VectorBackend] {
		errs = append(errs, invalid("config: storage.vector_backend must be one of [sqlite, chromem], got %q",
			c.Storage.VectorBackend))
	}
	if c.Storage.BusyTimeout < 0 {
		errs = append(errs, invalid("config: storage.busy_timeout must not be negative, got %s", c.Storage.BusyTimeout))
	}

	return errs
}

func (c *Config) validateEmbedding() []error {
	var errs []error
	e := c.Embedding

	if !slices.Contains(validProviders, e.Provider) {
		errs = append(errs, invalid("config: embedding.provider must be one of [%s], got %q",
			strings.Join(validProviders, ", "), e.Provider))
	}
	if e.Provider == ProviderOpenAI && e.APIKey == "" {
		errs = append(errs, invalid("config: embedding.api_key is required for provider %q", e.Provider))
	}
	if e.Dimensions <= 0 {
		errs = append(errs, invalid("config: embedding.dimensions must be greater than 0, got %d", e.Dimensions))
	}
	if e.Timeout <= 0 {
		errs = append(errs, invalid("config: embedding.timeout must be greater than 0, got %s", e.Timeout))
	}
	if e.Cooldown < 0 {
		errs = append(errs, invalid("config: embedding.cooldown must not be negative, got %s", e.Cooldown))
	}

	return errs
}

func (c *Config) validateRetrieval() []error {
	var errs []error
	r := c.Retrieval

	if _, err := memory.ParseMode(r.Mode); err != nil || r.Mode == "" {
		errs = append(errs, invalid("config: retrieval.mode must be one of [hybrid, semantic, keyword], got %q", r.Mode))
	}
	if err := (memory.Weights{Semantic: r.SemanticWeight, Keyword: r.KeywordWeight}).Validate(); err != nil {
		errs = append(errs, invalid("config: retrieval weights: %s", err.Error()))
	}
	if r.CandidateMultiplier <= 0 {
		errs = append(errs, invalid("config: retrieval.candidate_multiplier must be greater than 0, got %d", r.CandidateMultiplier))
	}
	if r.DefaultLimit <= 0 {
		errs = append(errs, invalid("config: retrieval.default_limit must be greater than 0, got %d", r.DefaultLimit))
	}

	return errs
}

func (c *Config) validateIndexing() []error {
	var errs []error
	ix := c.Indexing

	if _, err := memory.ParseWritePolicy(ix.Policy); err != nil || ix.Policy == "" {
		errs = append(errs, invalid("config: indexing.policy must be one of [sync, async], got %q", ix.Policy))
	}
	if ix.RetryInterval <= 0 {
		errs = append(errs, invalid("config: indexing.retry_interval must be greater than 0, got %s", ix.RetryInterval))
	}
	if ix.MaxAttempts <= 0 {
		errs = append(errs, invalid("config: indexing.max_attempts must be greater than 0, got %d", ix.MaxAttempts))
	}
	if ix.BatchSize <= 0 {
		errs = append(errs, invalid("config: indexing.batch_size must be greater than 0, got %d", ix.BatchSize))
	}

	return errs
}

func (c *Config) validateCompression() []error {
	var errs []error
	cp := c.Compression

	if cp.Threshold <= 0 {
		errs = append(errs, invalid("config: compression.threshold must be greater than 0, got %d", cp.Threshold))
	}
	if cp.MaxSourcesPerSummary <= 0 {
		errs = append(errs, invalid("config: compression.max_sources_per_summary must be greater than 0, got %d",
			cp.MaxSourcesPerSummary))
	}
	if !slices.Contains(validSummarizers, cp.Summarizer) {
		errs = append(errs, invalid("config: compression.summarizer must be one of [%s], got %q",
			strings.Join(validSummarizers, ", "), cp.Summarizer))
	}
	if cp.Summarizer == SummarizerAnthropic && cp.APIKey == "" {
		errs = append(errs, invalid("config: compression.api_key is required for summarizer %q", cp.Summarizer))
	}
	if cp.MaxTokens <= 0 {
		errs = append(errs, invalid("config: compression.max_tokens must be greater than 0, got %d", cp.MaxTokens))
	}

	return errs
}

func (c *Config) validateContext() []error {
	var errs []error

	if c.Context.Limit <= 0 {
		errs = append(errs, invalid("config: context.limit must be greater than 0, got %d", c.Context.Limit))
	}
	if c.Context.MaxChars <= 0 {
		errs = append(errs, invalid("config: context.max_chars must be greater than 0, got %d", c.Context.MaxChars))
	}

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		return append(errs, invalid("config: server.listen must not be empty"))
	}
	_, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		return append(errs, engramerr.Errorf(engramerr.CodeConfigValidateInvalidValue,
			"config: server.listen must be a valid host:port address, got %q: %w", c.Server.Listen, err))
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, invalid("config: server.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, invalid("config: server.listen port must be between 1 and 65535, got %d", port))
	}

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, invalid("config: logging.level must be one of [debug, info, warn, error], got %q", c.Logging.Level))
	}
	if !logging.ValidFormat(c.Logging.Format) {
		errs = append(errs, invalid("config: logging.format must be one of [text, json], got %q", c.Logging.Format))
	}

	return errs
}

func invalid(format string, args ...any) error {
	return engramerr.Errorf(engramerr.CodeConfigValidateInvalidValue, format, args...)
}
