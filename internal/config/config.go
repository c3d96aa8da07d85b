// Package config loads application settings from config.yaml, .env and DOCCHAT_ variables.
// Precedence: environment > file > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MoeScet/smart-document-chat/internal/platform/logger"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DOCCHAT_"

// Index backends.
const (
	BackendChromem = "chromem"
	BackendSQLite  = "sqlite"
	BackendMemory  = "memory"
)

// OllamaConfig points at the local Ollama server.
type OllamaConfig struct {
	URL              string  `yaml:"url"`
	Model            string  `yaml:"model"`
	EmbedModel       string  `yaml:"embed_model"`
	Temperature      float64 `yaml:"temperature"`
	TopP             float64 `yaml:"top_p"`
	TimeoutSecs      int     `yaml:"timeout_secs"`
	EmbedTimeoutSecs int     `yaml:"embed_timeout_secs"`
	PingTimeoutSecs  int     `yaml:"ping_timeout_secs"`
}

// Timeout is the generation timeout.
func (c OllamaConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSecs) * time.Second }

// EmbedTimeout is the per-embedding timeout.
func (c OllamaConfig) EmbedTimeout() time.Duration {
	return time.Duration(c.EmbedTimeoutSecs) * time.Second
}

// PingTimeout bounds the liveness probe.
func (c OllamaConfig) PingTimeout() time.Duration {
	return time.Duration(c.PingTimeoutSecs) * time.Second
}

// IndexConfig selects and locates the retrieval index.
type IndexConfig struct {
	Backend    string `yaml:"backend"`
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
}

// IngestConfig configures document ingestion.
type IngestConfig struct {
	DocumentsDir string `yaml:"documents_dir"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	Watch        bool   `yaml:"watch"`
}

// RetrievalConfig configures question answering.
type RetrievalConfig struct {
	TopK             int    `yaml:"top_k"`
	MaxContextTokens int    `yaml:"max_context_tokens"`
	Encoding         string `yaml:"encoding"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root application configuration.
type Config struct {
	Ollama    OllamaConfig    `yaml:"ollama"`
	Index     IndexConfig     `yaml:"index"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Ollama: OllamaConfig{
			URL:              "http://localhost:11434",
			Model:            "llama3.1:8b",
			EmbedModel:       "nomic-embed-text",
			Temperature:      0.7,
			TopP:             0.9,
			TimeoutSecs:      120,
			EmbedTimeoutSecs: 60,
			PingTimeoutSecs:  5,
		},
		Index: IndexConfig{
			Backend:    BackendChromem,
			Path:       "./chroma_db",
			Collection: "documents",
		},
		Ingest: IngestConfig{
			DocumentsDir: "./documents",
			ChunkSize:    800,
			ChunkOverlap: 200,
		},
		Retrieval: RetrievalConfig{
			TopK:             5,
			MaxContextTokens: 3000,
			Encoding:         "cl100k_base",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration. A missing config file or env file is not an error.
// envFile "" means ".env" in the working directory.
func Load(path, envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"OLLAMA_URL":    &cfg.Ollama.URL,
		"MODEL":         &cfg.Ollama.Model,
		"EMBED_MODEL":   &cfg.Ollama.EmbedModel,
		"INDEX_BACKEND": &cfg.Index.Backend,
		"INDEX_PATH":    &cfg.Index.Path,
		"DOCUMENTS_DIR": &cfg.Ingest.DocumentsDir,
		"LOG_LEVEL":     &cfg.Log.Level,
		"LOG_FORMAT":    &cfg.Log.Format,
	}
	for key, dst := range strs {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"TOP_K":         &cfg.Retrieval.TopK,
		"CHUNK_SIZE":    &cfg.Ingest.ChunkSize,
		"CHUNK_OVERLAP": &cfg.Ingest.ChunkOverlap,
	}
	for key, dst := range ints {
		v := os.Getenv(EnvPrefix + key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}
	return nil
}

// Validate rejects settings the components cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Ollama.URL == "" {
		errs = append(errs, errors.New("ollama.url is required"))
	}
	if c.Ollama.Model == "" {
		errs = append(errs, errors.New("ollama.model is required"))
	}
	if c.Ollama.TimeoutSecs <= 0 || c.Ollama.EmbedTimeoutSecs <= 0 || c.Ollama.PingTimeoutSecs <= 0 {
		errs = append(errs, errors.New("ollama timeouts must be positive"))
	}
	if c.Ollama.Temperature < 0 || c.Ollama.Temperature > 2 {
		errs = append(errs, fmt.Errorf("ollama.temperature %v out of range [0, 2]", c.Ollama.Temperature))
	}
	if c.Ollama.TopP <= 0 || c.Ollama.TopP > 1 {
		errs = append(errs, fmt.Errorf("ollama.top_p %v out of range (0, 1]", c.Ollama.TopP))
	}

	switch c.Index.Backend {
	case BackendChromem, BackendSQLite:
		if c.Index.Path == "" {
			errs = append(errs, fmt.Errorf("index.path is required for backend %s", c.Index.Backend))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown index.backend %q", c.Index.Backend))
	}

	if c.Ingest.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("ingest.chunk_size %d must be positive", c.Ingest.ChunkSize))
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		errs = append(errs, fmt.Errorf("ingest.chunk_overlap %d must be in [0, chunk_size)", c.Ingest.ChunkOverlap))
	}

	if c.Retrieval.TopK < 1 || c.Retrieval.TopK > 20 {
		errs = append(errs, fmt.Errorf("retrieval.top_k %d out of range [1, 20]", c.Retrieval.TopK))
	}
	if c.Retrieval.MaxContextTokens < 0 {
		errs = append(errs, errors.New("retrieval.max_context_tokens must not be negative"))
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", c.Log.Format))
	}

	return errors.Join(errs...)
}

// LoggerConfig converts the log section for the logger package. Call after Validate.
func (c *Config) LoggerConfig() logger.Config {
	level, _ := logger.ParseLevel(c.Log.Level)
	return logger.Config{Level: level, Format: c.Log.Format}
}
