// Package config loads Pythia's process configuration: a YAML file named by
// PYTHIA_CONFIG layered over defaults, then environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wehubfusion/Pythia/internal/nats"
	"github.com/wehubfusion/Pythia/internal/reporting"
	"github.com/wehubfusion/Pythia/internal/tracing"
	"github.com/wehubfusion/Pythia/pkg/executor"
	"github.com/wehubfusion/Pythia/pkg/flow"
	"github.com/wehubfusion/Pythia/pkg/llm"
	"github.com/wehubfusion/Pythia/pkg/worker"
)

const (
	configPathEnv       = "PYTHIA_CONFIG"
	logLevelEnv         = "PYTHIA_LOG_LEVEL"
	pgConnEnv           = "PG_CONN"
	natsURLEnv          = "NATS_URL"
	ollamaBaseURLEnv    = "OLLAMA_BASE_URL"
	ollamaLLMModelEnv   = "OLLAMA_LLM_MODEL"
	ollamaEmbedModelEnv = "OLLAMA_EMBED_MODEL"
	maxAbstractEnv      = "MAX_ABSTRACT_CHARS"
	sentryDSNEnv        = "SENTRY_DSN"
	azureStorageEnv     = "AZURE_STORAGE_CONNECTION_STRING"
	otlpEndpointEnv     = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

// Config is the complete process configuration
type Config struct {
	Log        LogConfig             `yaml:"log"`
	Database   DatabaseConfig        `yaml:"database"`
	NATS       nats.ConnectionConfig `yaml:"nats"`
	Queue      QueueConfig           `yaml:"queue"`
	Ollama     llm.OllamaConfig      `yaml:"ollama"`
	Summarizer SummarizerConfig      `yaml:"summarizer"`
	Flow       FlowConfig            `yaml:"flow"`
	Storage    StorageConfig         `yaml:"storage"`
	Sentry     reporting.Config      `yaml:"sentry"`
	Tracing    tracing.Config        `yaml:"tracing"`
	Feeds      []string              `yaml:"feeds"`
}

// LogConfig selects the logger
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DatabaseConfig describes the Postgres article store
type DatabaseConfig struct {
	DSN       string `yaml:"dsn"`
	BatchSize int    `yaml:"batch_size"`
}

// QueueConfig names the task subject and worker group
type QueueConfig struct {
	Subject string `yaml:"subject"`
	Group   string `yaml:"group"`
}

// SummarizerConfig holds summarizer defaults shared by every flow
type SummarizerConfig struct {
	MaxAbstractChars int `yaml:"max_abstract_chars"`
}

// FlowConfig describes the steps of a run
type FlowConfig struct {
	Steps       []flow.Step   `yaml:"steps"`
	Order       string        `yaml:"order"`
	MergePolicy string        `yaml:"merge_policy"`
	StepTimeout time.Duration `yaml:"step_timeout"`
}

// StorageConfig describes the Azure Blob result archive. An empty
// connection string disables archiving.
type StorageConfig struct {
	ConnectionString string `yaml:"connection_string"`
	Container        string `yaml:"container"`
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		Log:      LogConfig{Level: "info"},
		Database: DatabaseConfig{BatchSize: 50},
		NATS:     *nats.DefaultConnectionConfig("nats://127.0.0.1:4222"),
		Queue: QueueConfig{
			Subject: executor.DefaultSubject,
			Group:   worker.DefaultQueue,
		},
		Ollama:     llm.DefaultOllamaConfig(),
		Summarizer: SummarizerConfig{MaxAbstractChars: 160},
		Flow: FlowConfig{
			Steps: []flow.Step{
				{Name: "cleaner"},
				{Name: "summarizer_llm"},
				{Name: "event_llm"},
			},
			Order:       flow.OrderLinear.String(),
			MergePolicy: flow.LastWriteWins.String(),
		},
		Storage: StorageConfig{Container: "pythia-results"},
		Tracing: tracing.DefaultConfig(),
	}
}

// Load reads the file named by PYTHIA_CONFIG, if any, over the defaults and
// applies environment overrides.
func Load() (Config, error) {
	return LoadFile(os.Getenv(configPathEnv))
}

// LoadFile is Load with an explicit path. An empty path skips the file.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: cannot read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: cannot parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(pgConnEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(natsURLEnv); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv(ollamaBaseURLEnv); v != "" {
		c.Ollama.BaseURL = v
	}
	if v := os.Getenv(ollamaLLMModelEnv); v != "" {
		c.Ollama.Model = v
	}
	if v := os.Getenv(ollamaEmbedModelEnv); v != "" {
		c.Ollama.EmbedModel = v
	}
	if v := os.Getenv(maxAbstractEnv); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s: %w", maxAbstractEnv, err)
		}
		c.Summarizer.MaxAbstractChars = n
	}
	if v := os.Getenv(sentryDSNEnv); v != "" {
		c.Sentry.DSN = v
	}
	if v := os.Getenv(azureStorageEnv); v != "" {
		c.Storage.ConnectionString = v
	}
	if v := os.Getenv(otlpEndpointEnv); v != "" {
		// the exporter wants host:port
		v = strings.TrimPrefix(strings.TrimPrefix(v, "http://"), "https://")
		c.Tracing.OTLPEndpoint = strings.TrimRight(v, "/")
	}
	return nil
}

// Validate checks values that would otherwise fail late
func (c Config) Validate() error {
	if _, ok := flow.ParseOrder(c.Flow.Order); !ok {
		return fmt.Errorf("config: unknown flow order %q", c.Flow.Order)
	}
	if _, ok := flow.ParseMergePolicy(c.Flow.MergePolicy); !ok {
		return fmt.Errorf("config: unknown merge policy %q", c.Flow.MergePolicy)
	}
	for i, s := range c.Flow.Steps {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("config: flow step %d has no name", i)
		}
	}
	if c.Summarizer.MaxAbstractChars <= 0 {
		return fmt.Errorf("config: max_abstract_chars must be positive, got %d", c.Summarizer.MaxAbstractChars)
	}
	if c.Database.BatchSize <= 0 {
		return fmt.Errorf("config: database batch_size must be positive, got %d", c.Database.BatchSize)
	}
	return nil
}

// Options turns the flow section into runner options
func (f FlowConfig) Options() []flow.Option {
	order, _ := flow.ParseOrder(f.Order)
	policy, _ := flow.ParseMergePolicy(f.MergePolicy)

	opts := []flow.Option{
		flow.WithOrder(order),
		flow.WithMergePolicy(policy),
	}
	if len(f.Steps) > 0 {
		opts = append(opts, flow.WithSteps(f.Steps...))
	}
	if f.StepTimeout > 0 {
		opts = append(opts, flow.WithStepTimeout(f.StepTimeout))
	}
	return opts
}
