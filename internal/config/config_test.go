package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// clearEnv unsets all APERTURE_* variables this package reads, restoring
// them when the test finishes.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APERTURE_API_TOKEN", "APERTURE_PORT", "APERTURE_DATA_DIR",
		"APERTURE_PROVIDER", "APERTURE_OLLAMA_BASE_URL",
		"APERTURE_OPENAI_API_KEY", "APERTURE_OPENAI_BASE_URL",
		"APERTURE_EMBED_MODEL", "APERTURE_ANSWER_MODEL",
		"APERTURE_TOP_K", "APERTURE_SCAN_LIMIT", "APERTURE_LOG_LEVEL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadFromPath(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Provider.Kind != "ollama" {
		t.Errorf("Provider.Kind = %q, want %q", cfg.Provider.Kind, "ollama")
	}
	if cfg.Provider.OllamaBaseURL != "http://localhost:11434" {
		t.Errorf("Provider.OllamaBaseURL = %q, want %q", cfg.Provider.OllamaBaseURL, "http://localhost:11434")
	}
	if cfg.Provider.EmbedModel != "nomic-embed-text" {
		t.Errorf("Provider.EmbedModel = %q, want %q", cfg.Provider.EmbedModel, "nomic-embed-text")
	}
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("Retrieval.TopK = %d, want 5", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.ScanLimit != 1000 {
		t.Errorf("Retrieval.ScanLimit = %d, want 1000", cfg.Retrieval.ScanLimit)
	}
}

func TestFileOverride(t *testing.T) {
	clearEnv(t)

	path := writeTempConfig(t, `{
		"server": {"port": 9000, "api_token": "file-token"},
		"provider": {"embed_model": "mxbai-embed-large"},
		"retrieval": {"scan_limit": 250}
	}`)

	cfg, err := loadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.APIToken != "file-token" {
		t.Errorf("Server.APIToken = %q, want %q", cfg.Server.APIToken, "file-token")
	}
	if cfg.Provider.EmbedModel != "mxbai-embed-large" {
		t.Errorf("Provider.EmbedModel = %q, want %q", cfg.Provider.EmbedModel, "mxbai-embed-large")
	}
	if cfg.Retrieval.ScanLimit != 250 {
		t.Errorf("Retrieval.ScanLimit = %d, want 250", cfg.Retrieval.ScanLimit)
	}
	// Untouched fields keep defaults.
	if cfg.Provider.AnswerModel != "llama3.1" {
		t.Errorf("Provider.AnswerModel = %q, want default %q", cfg.Provider.AnswerModel, "llama3.1")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)

	path := writeTempConfig(t, `{"server": {"port": 9000}}`)
	t.Setenv("APERTURE_PORT", "9100")
	t.Setenv("APERTURE_EMBED_MODEL", "text-embedding-3-small")

	cfg, err := loadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100 (env beats file)", cfg.Server.Port)
	}
	if cfg.Provider.EmbedModel != "text-embedding-3-small" {
		t.Errorf("Provider.EmbedModel = %q, want %q", cfg.Provider.EmbedModel, "text-embedding-3-small")
	}
}

func TestInvalidEnvIntIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("APERTURE_PORT", "not-a-number")

	cfg, err := loadFromPath(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want default 4100", cfg.Server.Port)
	}
}

func TestOpenAIRequiresKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("APERTURE_PROVIDER", "openai")

	if _, err := loadFromPath(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for openai provider without API key")
	}

	t.Setenv("APERTURE_OPENAI_API_KEY", "sk-test")
	cfg, err := loadFromPath(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.Kind != "openai" {
		t.Errorf("Provider.Kind = %q, want %q", cfg.Provider.Kind, "openai")
	}
}

func TestUnknownProviderRejected(t *testing.T) {
	clearEnv(t)
	t.Setenv("APERTURE_PROVIDER", "bedrock")

	if _, err := loadFromPath(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for unknown provider kind")
	}
}

func TestMalformedFileRejected(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{not json`)

	if _, err := loadFromPath(path); err == nil {
		t.Fatal("expected error for malformed config file")
	}
}
