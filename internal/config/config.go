// Package config provides configuration for the Aperture knowledge base.
//
// Values come from three layers, later layers overriding earlier ones:
// built-in defaults, an optional JSON config file at
// $XDG_CONFIG_HOME/aperture/config.json, and APERTURE_* environment
// variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Provider  ProviderConfig
	Retrieval RetrievalConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir string
}

// ProviderConfig selects and configures the embedding/synthesis backend.
// Kind is "ollama" (default, local) or "openai" (hosted, also covers any
// OpenAI-compatible endpoint via BaseURL).
type ProviderConfig struct {
	Kind          string
	OllamaBaseURL string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	EmbedModel    string
	AnswerModel   string
}

type RetrievalConfig struct {
	TopK      int
	ScanLimit int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Provider: ProviderConfig{
			Kind:          "ollama",
			OllamaBaseURL: "http://localhost:11434",
			EmbedModel:    "nomic-embed-text",
			AnswerModel:   "llama3.1",
		},
		Retrieval: RetrievalConfig{
			TopK:      5,
			ScanLimit: 1000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "aperture-data"
		}
	}
	return filepath.Join(dir, "aperture")
}

func defaultConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "aperture", "config.json")
}

// Load reads configuration from the default file path and environment.
func Load() (Config, error) {
	return loadFromPath(defaultConfigPath())
}

func loadFromPath(path string) (Config, error) {
	cfg := defaults()

	if err := applyFile(&cfg, path); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fileConfig mirrors the JSON config file layout. All fields are optional;
// absent fields keep their defaults.
type fileConfig struct {
	Server *struct {
		Port     *int    `json:"port"`
		APIToken *string `json:"api_token"`
	} `json:"server"`
	Storage *struct {
		DataDir *string `json:"data_dir"`
	} `json:"storage"`
	Provider *struct {
		Kind          *string `json:"kind"`
		OllamaBaseURL *string `json:"ollama_base_url"`
		OpenAIAPIKey  *string `json:"openai_api_key"`
		OpenAIBaseURL *string `json:"openai_base_url"`
		EmbedModel    *string `json:"embed_model"`
		AnswerModel   *string `json:"answer_model"`
	} `json:"provider"`
	Retrieval *struct {
		TopK      *int `json:"top_k"`
		ScanLimit *int `json:"scan_limit"`
	} `json:"retrieval"`
	Log *struct {
		Level *string `json:"level"`
	} `json:"log"`
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if fc.Server != nil {
		setInt(&cfg.Server.Port, fc.Server.Port)
		setString(&cfg.Server.APIToken, fc.Server.APIToken)
	}
	if fc.Storage != nil {
		setString(&cfg.Storage.DataDir, fc.Storage.DataDir)
	}
	if fc.Provider != nil {
		setString(&cfg.Provider.Kind, fc.Provider.Kind)
		setString(&cfg.Provider.OllamaBaseURL, fc.Provider.OllamaBaseURL)
		setString(&cfg.Provider.OpenAIAPIKey, fc.Provider.OpenAIAPIKey)
		setString(&cfg.Provider.OpenAIBaseURL, fc.Provider.OpenAIBaseURL)
		setString(&cfg.Provider.EmbedModel, fc.Provider.EmbedModel)
		setString(&cfg.Provider.AnswerModel, fc.Provider.AnswerModel)
	}
	if fc.Retrieval != nil {
		setInt(&cfg.Retrieval.TopK, fc.Retrieval.TopK)
		setInt(&cfg.Retrieval.ScanLimit, fc.Retrieval.ScanLimit)
	}
	if fc.Log != nil {
		setString(&cfg.Log.Level, fc.Log.Level)
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func applyEnvOverrides(cfg *Config) {
	envString(&cfg.Server.APIToken, "APERTURE_API_TOKEN")
	envInt(&cfg.Server.Port, "APERTURE_PORT")
	envString(&cfg.Storage.DataDir, "APERTURE_DATA_DIR")
	envString(&cfg.Provider.Kind, "APERTURE_PROVIDER")
	envString(&cfg.Provider.OllamaBaseURL, "APERTURE_OLLAMA_BASE_URL")
	envString(&cfg.Provider.OpenAIAPIKey, "APERTURE_OPENAI_API_KEY")
	envString(&cfg.Provider.OpenAIBaseURL, "APERTURE_OPENAI_BASE_URL")
	envString(&cfg.Provider.EmbedModel, "APERTURE_EMBED_MODEL")
	envString(&cfg.Provider.AnswerModel, "APERTURE_ANSWER_MODEL")
	envInt(&cfg.Retrieval.TopK, "APERTURE_TOP_K")
	envInt(&cfg.Retrieval.ScanLimit, "APERTURE_SCAN_LIMIT")
	envString(&cfg.Log.Level, "APERTURE_LOG_LEVEL")
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] ignoring invalid integer in %s: %q\n", key, v)
		return
	}
	*dst = i
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch strings.ToLower(c.Provider.Kind) {
	case "ollama":
	case "openai":
		if c.Provider.OpenAIAPIKey == "" {
			return fmt.Errorf("provider kind %q requires an API key: set APERTURE_OPENAI_API_KEY", c.Provider.Kind)
		}
	default:
		return fmt.Errorf("unknown provider kind %q (expected ollama or openai)", c.Provider.Kind)
	}
	if c.Provider.EmbedModel == "" {
		return fmt.Errorf("embed model cannot be empty")
	}
	if c.Retrieval.ScanLimit <= 0 {
		return fmt.Errorf("scan limit must be positive, got %d", c.Retrieval.ScanLimit)
	}
	return nil
}
