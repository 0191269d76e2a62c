// Package config loads docent configuration from a JSON file with
// environment-variable overrides.
package config

import (
	"fmt"
)

type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
	// APIToken protects the HTTP API. Empty disables authentication.
	APIToken string
}

type OllamaConfig struct {
	BaseURL    string
	GenModel   string
	EmbedModel string
}

type StorageConfig struct {
	DataDir string
}

type RetrievalConfig struct {
	DocThreshold    float64
	MaxDocs         int
	TopK            int
	MMRLambda       float64
	MinChunks       int
	MinScore        float64
	MemoryThreshold float64
	CitationFloor   float64
	ChunkSize       int
	// MaxRounds bounds search widening; MaxRetries and RetryBackoffMS
	// govern retries against an unavailable index.
	MaxRounds      int
	MaxRetries     int
	RetryBackoffMS int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4200,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			GenModel:   "mistral-nemo",
			EmbedModel: "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Retrieval: RetrievalConfig{
			DocThreshold:    0.6,
			MaxDocs:         5,
			TopK:            8,
			MMRLambda:       0.9,
			MinChunks:       1,
			MinScore:        0.55,
			MemoryThreshold: 0.9,
			CitationFloor:   0.6,
			ChunkSize:       1600,
			MaxRounds:       2,
			MaxRetries:      3,
			RetryBackoffMS:  200,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/docent/config.json and applies DOCENT_* environment
// overrides on top. Missing file means defaults.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", cfg.Server.Port)
	}
	if cfg.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.MMRLambda < 0 {
		return fmt.Errorf("retrieval.mmr_lambda must not be negative, got %v", cfg.Retrieval.MMRLambda)
	}
	if cfg.Retrieval.CitationFloor < 0 || cfg.Retrieval.CitationFloor > 1 {
		return fmt.Errorf("retrieval.citation_floor must be in [0,1], got %v", cfg.Retrieval.CitationFloor)
	}
	if cfg.Retrieval.MaxRounds < 0 {
		return fmt.Errorf("retrieval.max_rounds must not be negative, got %d", cfg.Retrieval.MaxRounds)
	}
	if cfg.Retrieval.MaxRetries < 1 {
		return fmt.Errorf("retrieval.max_retries must be positive, got %d", cfg.Retrieval.MaxRetries)
	}
	if cfg.Retrieval.RetryBackoffMS < 0 {
		return fmt.Errorf("retrieval.retry_backoff_ms must not be negative, got %d", cfg.Retrieval.RetryBackoffMS)
	}
	return nil
}
