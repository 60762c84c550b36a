// Package config provides configuration loading for helpdesk.
//
// Values come from three layers, lowest precedence first: built-in defaults,
// an optional YAML file and HELPDESK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds the complete helpdesk configuration.
type Config struct {
	LLM           LLMConfig           `koanf:"llm"`
	Agent         AgentConfig         `koanf:"agent"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Keyword       KeywordConfig       `koanf:"keyword"`
	Vector        VectorConfig        `koanf:"vector"`
	Server        ServerConfig        `koanf:"server"`
	NATS          NATSConfig          `koanf:"nats"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
	Secrets       SecretsConfig       `koanf:"secrets"`
}

// LLMConfig configures the chat model used for planning, tool selection,
// drafting, reflection and the final answer.
type LLMConfig struct {
	Model             string   `koanf:"model"`
	BaseURL           string   `koanf:"base_url"`
	APIKey            Secret   `koanf:"api_key"`
	Temperature       float64  `koanf:"temperature"`
	Seed              int      `koanf:"seed"`
	Timeout           Duration `koanf:"timeout"`
	RequestsPerMinute float64  `koanf:"requests_per_minute"`
	Burst             int      `koanf:"burst"`
	MaxRetries        int      `koanf:"max_retries"`
}

// AgentConfig configures the plan/execute/reflect engine.
type AgentConfig struct {
	// MaxAttempts bounds the select/execute/draft/reflect loop per subtask.
	MaxAttempts int `koanf:"max_attempts"`

	// Concurrency bounds how many subtasks run at once. 1 runs them sequentially.
	Concurrency int `koanf:"concurrency"`

	// PromptsFile optionally overrides the built-in prompts (TOML).
	PromptsFile string `koanf:"prompts_file"`
}

// EmbeddingsConfig selects the embedding provider used by the QA vector search.
type EmbeddingsConfig struct {
	// Provider is "openai" or "fastembed".
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   Secret `koanf:"api_key"`
	CacheDir string `koanf:"cache_dir"`
}

// KeywordConfig configures the full-text index over the product manuals.
type KeywordConfig struct {
	Path         string `koanf:"path"`
	MaxResults   int    `koanf:"max_results"`
	ChunkSize    int    `koanf:"chunk_size"`
	ChunkOverlap int    `koanf:"chunk_overlap"`
}

// VectorConfig configures the similarity index over the QA corpus.
type VectorConfig struct {
	// Provider is "chromem" (embedded) or "qdrant".
	Provider   string        `koanf:"provider"`
	Collection string        `koanf:"collection"`
	MaxResults int           `koanf:"max_results"`
	Chromem    ChromemConfig `koanf:"chromem"`
	Qdrant     QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem-go database.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig configures the Qdrant gRPC connection.
type QdrantConfig struct {
	Host           string   `koanf:"host"`
	Port           int      `koanf:"port"`
	UseTLS         bool     `koanf:"use_tls"`
	APIKey         Secret   `koanf:"api_key"`
	RetryAttempts  int      `koanf:"retry_attempts"`
	RequestTimeout Duration `koanf:"request_timeout"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// NATSConfig configures publication of run progress events.
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// LoggingConfig holds the user-facing logging knobs.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// ObservabilityConfig holds OpenTelemetry export configuration.
type ObservabilityConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"`
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// SecretsConfig controls scrubbing of retrieved content before it reaches the model.
type SecretsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be between 0 and 2, got %v", c.LLM.Temperature))
	}
	if c.LLM.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("llm.requests_per_minute must be positive"))
	}
	if c.Agent.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("agent.max_attempts must be >= 1, got %d", c.Agent.MaxAttempts))
	}
	if c.Agent.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("agent.concurrency must be >= 1, got %d", c.Agent.Concurrency))
	}

	switch c.Embeddings.Provider {
	case "openai", "fastembed":
	default:
		errs = append(errs, fmt.Errorf("embeddings.provider must be openai or fastembed, got %q", c.Embeddings.Provider))
	}

	if c.Keyword.MaxResults < 1 || c.Vector.MaxResults < 1 {
		errs = append(errs, errors.New("max_results must be >= 1"))
	}
	if c.Keyword.ChunkOverlap >= c.Keyword.ChunkSize {
		errs = append(errs, fmt.Errorf("keyword.chunk_overlap (%d) must be smaller than keyword.chunk_size (%d)",
			c.Keyword.ChunkOverlap, c.Keyword.ChunkSize))
	}

	switch c.Vector.Provider {
	case "chromem":
	case "qdrant":
		if c.Vector.Qdrant.Port < 1 || c.Vector.Qdrant.Port > 65535 {
			errs = append(errs, fmt.Errorf("invalid qdrant port: %d", c.Vector.Qdrant.Port))
		}
	default:
		errs = append(errs, fmt.Errorf("vector.provider must be chromem or qdrant, got %q", c.Vector.Provider))
	}
	if c.Vector.Collection == "" {
		errs = append(errs, errors.New("vector.collection is required"))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	if c.NATS.Enabled && (c.NATS.URL == "" || c.NATS.SubjectPrefix == "") {
		errs = append(errs, errors.New("nats.url and nats.subject_prefix are required when nats is enabled"))
	}
	if strings.ContainsAny(c.NATS.SubjectPrefix, " *>") {
		errs = append(errs, fmt.Errorf("nats.subject_prefix contains wildcard or space: %q", c.NATS.SubjectPrefix))
	}

	if c.Observability.Enabled && c.Observability.ServiceName == "" {
		errs = append(errs, errors.New("observability.service_name is required when telemetry is enabled"))
	}

	return errors.Join(errs...)
}
