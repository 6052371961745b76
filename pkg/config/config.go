// Package config assembles the runtime configuration: the model council,
// workflow knobs, search and knowledge-base settings, and output paths.
// Values come from defaults, an optional YAML file with ${VAR} expansion,
// and environment variable overrides, in that order.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Workflow WorkflowConfig `yaml:"workflow"`
	Models   ModelsConfig   `yaml:"models"`
	Search   SearchConfig   `yaml:"search"`
	KB       KBConfig       `yaml:"knowledge_base"`
	Output   OutputConfig   `yaml:"output"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// WorkflowConfig controls the revision loop and reporting.
type WorkflowConfig struct {
	// MaxRevisions bounds the aggregate-critique-verify loop.
	MaxRevisions int `yaml:"max_revisions"`
	// LogFallbackEvents emits a log line for every provider substitution.
	LogFallbackEvents bool `yaml:"log_fallback_events"`
	// ReportHeterogeneity prints the council diversity report at run
	// start and end.
	ReportHeterogeneity bool `yaml:"report_heterogeneity"`
}

// ModelsConfig names every model slot in the graph.
type ModelsConfig struct {
	Generators  []ModelSpec `yaml:"generators"`
	ChallengerA ModelSpec   `yaml:"challenger_a"`
	ChallengerB ModelSpec   `yaml:"challenger_b"`
	ChallengerC ModelSpec   `yaml:"challenger_c"`
	Aggregator  ModelSpec   `yaml:"aggregator"`
	Verifier    ModelSpec   `yaml:"verifier"`

	GeneratorTemperature  float64 `yaml:"generator_temperature"`
	ChallengerTemperature float64 `yaml:"challenger_temperature"`
	AggregatorTemperature float64 `yaml:"aggregator_temperature"`
	VerifierTemperature   float64 `yaml:"verifier_temperature"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// SearchConfig configures the citation verification search backend.
type SearchConfig struct {
	APIKey     string `yaml:"api_key"`
	MaxResults int    `yaml:"max_results"`
}

// KBConfig configures the optional embedded knowledge base.
type KBConfig struct {
	// Path is the persistence directory; empty disables the KB and the
	// baseline reference sources are used alone.
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	TopK       int    `yaml:"top_k"`
}

// OutputConfig controls artifact locations.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// LoggingConfig controls the slog setup.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load builds the configuration: defaults, then the YAML file at path
// (if non-empty) with env expansion, then environment overrides. Defaults
// are applied strictly before the overlays so an explicit zero (say
// MAX_REVISIONS=0) survives; the overlays only touch keys that are set.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.SetDefaults()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}

	var tree map[string]interface{}
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}

	expanded, err := yaml.Marshal(ExpandEnvVarsInData(tree))
	if err != nil {
		return fmt.Errorf("expanding config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(expanded, c); err != nil {
		return fmt.Errorf("decoding config %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays the environment variable surface.
func (c *Config) applyEnv() {
	c.Workflow.MaxRevisions = envInt("MAX_REVISIONS", c.Workflow.MaxRevisions)
	c.Workflow.LogFallbackEvents = envBool("LOG_FALLBACK_EVENTS", c.Workflow.LogFallbackEvents)
	c.Workflow.ReportHeterogeneity = envBool("REPORT_HETEROGENEITY_STATUS", c.Workflow.ReportHeterogeneity)

	if v := os.Getenv("LLM_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Models.RequestTimeout = d
		} else if secs := envInt("LLM_REQUEST_TIMEOUT", 0); secs > 0 {
			c.Models.RequestTimeout = time.Duration(secs) * time.Second
		}
	}
	c.Models.GeneratorTemperature = envFloat("GENERATOR_TEMPERATURE", c.Models.GeneratorTemperature)
	c.Models.ChallengerTemperature = envFloat("CHALLENGER_TEMPERATURE", c.Models.ChallengerTemperature)
	c.Models.AggregatorTemperature = envFloat("AGGREGATOR_TEMPERATURE", c.Models.AggregatorTemperature)
	c.Models.VerifierTemperature = envFloat("VERIFIER_TEMPERATURE", c.Models.VerifierTemperature)

	if v := os.Getenv("GENERATOR_MODELS_WITH_PROVIDERS"); v != "" {
		if specs, err := ParseCouncil(v); err == nil {
			c.Models.Generators = specs
		}
	}

	c.Search.APIKey = envString("TAVILY_API_KEY", c.Search.APIKey)
	c.Search.MaxResults = envInt("SEARCH_MAX_RESULTS", c.Search.MaxResults)

	c.KB.Path = envString("KB_PATH", c.KB.Path)
	c.KB.Collection = envString("KB_COLLECTION", c.KB.Collection)
	c.KB.TopK = envInt("KB_TOP_K", c.KB.TopK)

	c.Output.Dir = envString("OUTPUT_DIR", c.Output.Dir)
	c.Logging.Level = envString("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = envString("LOG_FORMAT", c.Logging.Format)
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Workflow.MaxRevisions == 0 {
		c.Workflow.MaxRevisions = 3
	}
	if len(c.Models.Generators) == 0 {
		c.Models.Generators = DefaultCouncil()
	}
	if c.Models.ChallengerA.IsZero() {
		c.Models.ChallengerA = ModelSpec{Provider: "openai", Model: "gpt-4o"}
	}
	if c.Models.ChallengerB.IsZero() {
		c.Models.ChallengerB = ModelSpec{Provider: "anthropic", Model: "claude-3-5-sonnet-20241022"}
	}
	if c.Models.ChallengerC.IsZero() {
		c.Models.ChallengerC = ModelSpec{Provider: "google", Model: "gemini-1.5-pro"}
	}
	if c.Models.Aggregator.IsZero() {
		c.Models.Aggregator = ModelSpec{Provider: "anthropic", Model: "claude-3-5-sonnet-20241022"}
	}
	if c.Models.Verifier.IsZero() {
		c.Models.Verifier = ModelSpec{Provider: "anthropic", Model: "claude-3-5-sonnet-20241022"}
	}
	if c.Models.ChallengerTemperature == 0 {
		c.Models.ChallengerTemperature = 0.2
	}
	if c.Models.RequestTimeout == 0 {
		c.Models.RequestTimeout = 60 * time.Second
	}
	if c.Search.MaxResults == 0 {
		c.Search.MaxResults = 5
	}
	if c.KB.Collection == "" {
		c.KB.Collection = "iot_security"
	}
	if c.KB.TopK == 0 {
		c.KB.TopK = 3
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "results"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "simple"
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Workflow.MaxRevisions < 0 {
		return fmt.Errorf("workflow.max_revisions must be >= 0, got %d", c.Workflow.MaxRevisions)
	}
	for _, t := range []struct {
		name  string
		value float64
	}{
		{"generator_temperature", c.Models.GeneratorTemperature},
		{"challenger_temperature", c.Models.ChallengerTemperature},
		{"aggregator_temperature", c.Models.AggregatorTemperature},
		{"verifier_temperature", c.Models.VerifierTemperature},
	} {
		if t.value < 0 || t.value > 2 {
			return fmt.Errorf("models.%s must be between 0 and 2, got %v", t.name, t.value)
		}
	}
	if len(c.Models.Generators) == 0 {
		return fmt.Errorf("models.generators must name at least one council slot")
	}
	for i, spec := range c.Models.Generators {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("models.generators[%d]: %w", i, err)
		}
	}
	for _, s := range []struct {
		name string
		spec ModelSpec
	}{
		{"challenger_a", c.Models.ChallengerA},
		{"challenger_b", c.Models.ChallengerB},
		{"challenger_c", c.Models.ChallengerC},
		{"aggregator", c.Models.Aggregator},
		{"verifier", c.Models.Verifier},
	} {
		if err := s.spec.Validate(); err != nil {
			return fmt.Errorf("models.%s: %w", s.name, err)
		}
	}
	return nil
}
