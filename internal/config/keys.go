package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "DOCENT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "DOCENT_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "ollama.base_url", typ: kString, env: "DOCENT_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.gen_model", typ: kString, env: "DOCENT_OLLAMA_GEN_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.GenModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.GenModel },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "DOCENT_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "DOCENT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "retrieval.doc_threshold", typ: kFloat, env: "DOCENT_RETRIEVAL_DOC_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.DocThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.DocThreshold },
	},
	{
		key: "retrieval.max_docs", typ: kInt, env: "DOCENT_RETRIEVAL_MAX_DOCS",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.MaxDocs = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.MaxDocs },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "DOCENT_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.mmr_lambda", typ: kFloat, env: "DOCENT_RETRIEVAL_MMR_LAMBDA",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.MMRLambda = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.MMRLambda },
	},
	{
		key: "retrieval.min_chunks", typ: kInt, env: "DOCENT_RETRIEVAL_MIN_CHUNKS",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.MinChunks = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.MinChunks },
	},
	{
		key: "retrieval.min_score", typ: kFloat, env: "DOCENT_RETRIEVAL_MIN_SCORE",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.MinScore = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.MinScore },
	},
	{
		key: "retrieval.memory_threshold", typ: kFloat, env: "DOCENT_RETRIEVAL_MEMORY_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.MemoryThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.MemoryThreshold },
	},
	{
		key: "retrieval.citation_floor", typ: kFloat, env: "DOCENT_RETRIEVAL_CITATION_FLOOR",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.CitationFloor = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.CitationFloor },
	},
	{
		key: "retrieval.chunk_size", typ: kInt, env: "DOCENT_RETRIEVAL_CHUNK_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.ChunkSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.ChunkSize },
	},
	{
		key: "retrieval.max_rounds", typ: kInt, env: "DOCENT_RETRIEVAL_MAX_ROUNDS",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.MaxRounds = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.MaxRounds },
	},
	{
		key: "retrieval.max_retries", typ: kInt, env: "DOCENT_RETRIEVAL_MAX_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.MaxRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.MaxRetries },
	},
	{
		key: "retrieval.retry_backoff_ms", typ: kInt, env: "DOCENT_RETRIEVAL_RETRY_BACKOFF_MS",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.RetryBackoffMS = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.RetryBackoffMS },
	},
	{
		key: "log.level", typ: kString, env: "DOCENT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
