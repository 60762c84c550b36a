package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	envPrefix = "HELPDESK_"
)

// defaultsYAML is loaded before the user file so every key has a value.
const defaultsYAML = `
llm:
  model: gpt-4o-2024-08-06
  temperature: 0
  seed: 0
  timeout: 60s
  requests_per_minute: 50
  burst: 5
  max_retries: 3
agent:
  max_attempts: 3
  concurrency: 4
embeddings:
  provider: openai
  model: text-embedding-3-small
  cache_dir: ~/.cache/helpdesk/models
keyword:
  path: ~/.config/helpdesk/manuals.bleve
  max_results: 3
  chunk_size: 300
  chunk_overlap: 20
vector:
  provider: chromem
  collection: documents
  max_results: 3
  chromem:
    path: ~/.config/helpdesk/vectorstore
    compress: true
  qdrant:
    host: localhost
    port: 6334
    retry_attempts: 3
    request_timeout: 30s
server:
  host: localhost
  port: 9090
  shutdown_timeout: 10s
nats:
  enabled: false
  url: nats://127.0.0.1:4222
  subject_prefix: helpdesk.runs
logging:
  level: info
  format: json
observability:
  enabled: false
  endpoint: localhost:4317
  protocol: grpc
  insecure: true
  service_name: helpdesk
  sample_rate: 1.0
secrets:
  enabled: true
`

// nestedSections lists the second-level blocks that env keys can address,
// e.g. HELPDESK_VECTOR_QDRANT_HOST -> vector.qdrant.host.
var nestedSections = map[string][]string{
	"vector": {"chromem", "qdrant"},
}

// Load loads configuration from the default path.
func Load() (*Config, error) {
	return LoadWithFile("")
}

// LoadWithFile loads defaults, then the YAML file at configPath (if it
// exists), then HELPDESK_* environment variables.
//
// The file must live under ~/.config/helpdesk/ or /etc/helpdesk/, be at
// most 1MB and have 0600 or 0400 permissions because it may hold API keys.
//
// Environment variables map section-first:
//
//	HELPDESK_LLM_MODEL          -> llm.model
//	HELPDESK_AGENT_MAX_ATTEMPTS -> agent.max_attempts
//	HELPDESK_VECTOR_QDRANT_HOST -> vector.qdrant.host
//
// OPENAI_API_KEY is used for llm.api_key and embeddings.api_key when they
// are not set explicitly.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider([]byte(defaultsYAML)), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "helpdesk", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyFallbacks(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// envKey maps HELPDESK_SECTION_FIELD to section.field.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))

	section, field, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	for _, sub := range nestedSections[section] {
		if rest, found := strings.CutPrefix(field, sub+"_"); found {
			return section + "." + sub + "." + rest
		}
	}
	return section + "." + field
}

// readConfigFile opens the file once and validates it through the open
// descriptor so the checked file is the one that gets read.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// validateConfigPath checks that path resolves into an allowed directory.
// Runs even when the file does not exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "helpdesk"),
		"/etc/helpdesk",
	}
	for _, dir := range allowedDirs {
		if resolvedPath == dir || strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			return nil
		}
	}

	return fmt.Errorf("config file must be in ~/.config/helpdesk/ or /etc/helpdesk/")
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

// applyFallbacks fills values that come from outside the HELPDESK_ namespace.
func applyFallbacks(cfg *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if !cfg.LLM.APIKey.IsSet() {
			cfg.LLM.APIKey = Secret(key)
		}
		if !cfg.Embeddings.APIKey.IsSet() {
			cfg.Embeddings.APIKey = Secret(key)
		}
	}
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
