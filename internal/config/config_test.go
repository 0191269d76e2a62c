package config

import (
	"path/filepath"
	"testing"
)

func tempBackend(t *testing.T) Backend {
	t.Helper()
	return newFileBackend(filepath.Join(t.TempDir(), "config.json"))
}

func TestBackendIntRoundTrip(t *testing.T) {
	b := tempBackend(t)
	if err := b.SetInt("server.port", 5000); err != nil {
		t.Fatal(err)
	}
	// Read back on the same instance, before any reload turns the
	// stored int into a JSON float64.
	got, ok, err := b.GetInt("server.port")
	if err != nil {
		t.Fatalf("GetInt: %v", err)
	}
	if !ok || got != 5000 {
		t.Errorf("GetInt = (%d, %v), want (5000, true)", got, ok)
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := loadWith(tempBackend(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4200 {
		t.Errorf("Server.Port = %d, want 4200", cfg.Server.Port)
	}
	if cfg.Server.APIToken != "" {
		t.Errorf("Server.APIToken = %q, want empty", cfg.Server.APIToken)
	}
	if cfg.Ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("Ollama.BaseURL = %q", cfg.Ollama.BaseURL)
	}
	if cfg.Ollama.EmbedModel != "nomic-embed-text" {
		t.Errorf("Ollama.EmbedModel = %q", cfg.Ollama.EmbedModel)
	}
	if cfg.Retrieval.TopK != 8 {
		t.Errorf("Retrieval.TopK = %d, want 8", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.MMRLambda != 0.9 {
		t.Errorf("Retrieval.MMRLambda = %v, want 0.9", cfg.Retrieval.MMRLambda)
	}
	if cfg.Retrieval.CitationFloor != 0.6 {
		t.Errorf("Retrieval.CitationFloor = %v, want 0.6", cfg.Retrieval.CitationFloor)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestBackendValuesOverrideDefaults(t *testing.T) {
	b := tempBackend(t)
	if err := b.SetInt("server.port", 5000); err != nil {
		t.Fatal(err)
	}
	if err := b.SetString("ollama.gen_model", "llama3"); err != nil {
		t.Fatal(err)
	}
	if err := b.SetString("retrieval.mmr_lambda", "0.5"); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Ollama.GenModel != "llama3" {
		t.Errorf("Ollama.GenModel = %q, want llama3", cfg.Ollama.GenModel)
	}
	if cfg.Retrieval.MMRLambda != 0.5 {
		t.Errorf("Retrieval.MMRLambda = %v, want 0.5", cfg.Retrieval.MMRLambda)
	}
}

func TestEnvOverridesBackend(t *testing.T) {
	b := tempBackend(t)
	if err := b.SetInt("server.port", 5000); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOCENT_SERVER_PORT", "6000")
	t.Setenv("DOCENT_API_TOKEN", "secret-token")
	t.Setenv("DOCENT_RETRIEVAL_TOP_K", "12")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Server.APIToken != "secret-token" {
		t.Errorf("Server.APIToken = %q", cfg.Server.APIToken)
	}
	if cfg.Retrieval.TopK != 12 {
		t.Errorf("Retrieval.TopK = %d, want 12", cfg.Retrieval.TopK)
	}
}

func TestRetryBudgetConfigurable(t *testing.T) {
	t.Setenv("DOCENT_RETRIEVAL_MAX_ROUNDS", "4")
	t.Setenv("DOCENT_RETRIEVAL_MAX_RETRIES", "5")
	t.Setenv("DOCENT_RETRIEVAL_RETRY_BACKOFF_MS", "50")

	cfg, err := loadWith(tempBackend(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Retrieval.MaxRounds != 4 {
		t.Errorf("Retrieval.MaxRounds = %d, want 4", cfg.Retrieval.MaxRounds)
	}
	if cfg.Retrieval.MaxRetries != 5 {
		t.Errorf("Retrieval.MaxRetries = %d, want 5", cfg.Retrieval.MaxRetries)
	}
	if cfg.Retrieval.RetryBackoffMS != 50 {
		t.Errorf("Retrieval.RetryBackoffMS = %d, want 50", cfg.Retrieval.RetryBackoffMS)
	}
}

func TestValidateRejectsZeroRetryBudget(t *testing.T) {
	t.Setenv("DOCENT_RETRIEVAL_MAX_RETRIES", "0")
	if _, err := loadWith(tempBackend(t)); err == nil {
		t.Error("expected error for zero max_retries")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("DOCENT_SERVER_PORT", "0")
	if _, err := loadWith(tempBackend(t)); err == nil {
		t.Error("expected error for port 0")
	}
}

func TestValidateRejectsCitationFloorOutOfRange(t *testing.T) {
	t.Setenv("DOCENT_RETRIEVAL_CITATION_FLOOR", "1.5")
	if _, err := loadWith(tempBackend(t)); err == nil {
		t.Error("expected error for citation floor above 1")
	}
}

func TestSetKeyRejectsUnknownAndSecretKeys(t *testing.T) {
	if err := SetKey("nope.nope", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := SetKey("server.api_token", "x"); err == nil {
		t.Error("expected error for secret key")
	}
}

func TestShowAllOmitsSecrets(t *testing.T) {
	for _, info := range ShowAll(defaults()) {
		if info.Key == "server.api_token" {
			t.Error("secret key listed in ShowAll")
		}
	}
}
