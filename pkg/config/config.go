package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log struct {
		Level  string `yaml:"level" toml:"level"`
		Format string `yaml:"format" toml:"format"`
	} `yaml:"log" toml:"log"`

	Embedder struct {
		Provider   string  `yaml:"provider" toml:"provider"`
		Model      string  `yaml:"model" toml:"model"`
		BaseURL    string  `yaml:"base_url" toml:"base_url"`
		APIKey     string  `yaml:"api_key" toml:"api_key"`
		Dimensions int     `yaml:"dimensions" toml:"dimensions"`
		BatchSize  int     `yaml:"batch_size" toml:"batch_size"`
		RateLimit  float64 `yaml:"rate_limit" toml:"rate_limit"`
	} `yaml:"embedder" toml:"embedder"`

	Processor struct {
		ChunkSize    int  `yaml:"chunk_size" toml:"chunk_size"`
		ChunkOverlap *int `yaml:"chunk_overlap" toml:"chunk_overlap"` // nil means min(200, chunk_size/5)
	} `yaml:"processor" toml:"processor"`

	Index struct {
		Location             string `yaml:"location" toml:"location"`
		TableName            string `yaml:"table_name" toml:"table_name"`
		DropFailedEmbeddings bool   `yaml:"drop_failed_embeddings" toml:"drop_failed_embeddings"`
	} `yaml:"index" toml:"index"`

	LLM struct {
		Models         []string `yaml:"models" toml:"models"`
		Temperature    float64  `yaml:"temperature" toml:"temperature"`
		MaxTokens      int      `yaml:"max_tokens" toml:"max_tokens"`
		SystemPrompt   string   `yaml:"system_prompt" toml:"system_prompt"`
		GeneralContext string   `yaml:"general_context" toml:"general_context"`
		Template       string   `yaml:"template" toml:"template"`
		Timeout        string   `yaml:"timeout" toml:"timeout"`
		RetryBackoff   string   `yaml:"retry_backoff" toml:"retry_backoff"`
		MaxRetries     int      `yaml:"max_retries" toml:"max_retries"`

		OpenAI struct {
			APIKey  string `yaml:"api_key" toml:"api_key"`
			BaseURL string `yaml:"base_url" toml:"base_url"`
		} `yaml:"openai" toml:"openai"`
		Ollama struct {
			BaseURL string `yaml:"base_url" toml:"base_url"`
		} `yaml:"ollama" toml:"ollama"`
		Anthropic struct {
			APIKey string `yaml:"api_key" toml:"api_key"`
		} `yaml:"anthropic" toml:"anthropic"`
		Gemini struct {
			APIKey string `yaml:"api_key" toml:"api_key"`
		} `yaml:"gemini" toml:"gemini"`
	} `yaml:"llm" toml:"llm"`

	Retrieval struct {
		TopK            int `yaml:"top_k" toml:"top_k"`
		MaxContextChars int `yaml:"max_context_chars" toml:"max_context_chars"`
	} `yaml:"retrieval" toml:"retrieval"`

	Server struct {
		Addr string `yaml:"addr" toml:"addr"`
	} `yaml:"server" toml:"server"`

	Data struct {
		RawDir string `yaml:"raw_dir" toml:"raw_dir"`
	} `yaml:"data" toml:"data"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"lucy.yaml",
			"lucy.yml",
			"lucy.toml",
			filepath.Join(os.Getenv("HOME"), ".config/lucy/config.yaml"),
			"/etc/lucy/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

// DefaultModel is the first configured model, used when a caller names none.
func (c *Config) DefaultModel() string {
	if len(c.LLM.Models) == 0 {
		return ""
	}
	return c.LLM.Models[0]
}

// Timeout is the per-attempt generation timeout.
func (c *Config) Timeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 60*time.Second)
}

// RetryBackoff is the fixed wait before the single generation retry.
func (c *Config) RetryBackoff() time.Duration {
	return parseDuration(c.LLM.RetryBackoff, 5*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func applyDefaults(config *Config) {
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "console"
	}

	if config.Embedder.Provider == "" {
		config.Embedder.Provider = "ollama"
	}
	if config.Embedder.Model == "" {
		switch config.Embedder.Provider {
		case "openai":
			config.Embedder.Model = "text-embedding-3-small"
		case "hash":
			config.Embedder.Model = "xxhash-bow"
		default:
			config.Embedder.Model = "all-minilm"
		}
	}
	if config.Embedder.Dimensions == 0 {
		switch config.Embedder.Provider {
		case "openai":
			config.Embedder.Dimensions = 1536
		default:
			config.Embedder.Dimensions = 384
		}
	}
	if config.Embedder.BatchSize == 0 {
		config.Embedder.BatchSize = 32
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
	}
	if config.Processor.ChunkOverlap == nil {
		overlap := min(200, config.Processor.ChunkSize/5)
		config.Processor.ChunkOverlap = &overlap
	}

	if config.Index.Location == "" {
		config.Index.Location = "data/index"
	}
	if config.Index.TableName == "" {
		config.Index.TableName = "lucy_chunks"
	}

	if len(config.LLM.Models) == 0 {
		config.LLM.Models = []string{"OpenAI: gpt-4o-mini", "Ollama: llama3.2"}
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 1024
	}
	if config.LLM.Timeout == "" {
		config.LLM.Timeout = "60s"
	}
	if config.LLM.RetryBackoff == "" {
		config.LLM.RetryBackoff = "5s"
	}
	if config.LLM.MaxRetries == 0 {
		config.LLM.MaxRetries = 1
	}
	if config.LLM.Ollama.BaseURL == "" {
		config.LLM.Ollama.BaseURL = "http://localhost:11434"
	}
	if config.Embedder.BaseURL == "" {
		switch config.Embedder.Provider {
		case "ollama":
			config.Embedder.BaseURL = config.LLM.Ollama.BaseURL
		case "openai":
			config.Embedder.BaseURL = config.LLM.OpenAI.BaseURL
		}
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 5
	}
	if config.Retrieval.MaxContextChars == 0 {
		config.Retrieval.MaxContextChars = 12000
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Data.RawDir == "" {
		config.Data.RawDir = "data/raw"
	}
}

func mergeWithEnv(config *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.LLM.OpenAI.APIKey = key
		if config.Embedder.APIKey == "" {
			config.Embedder.APIKey = key
		}
	}
	if base := os.Getenv("OPENAI_API_BASE"); base != "" {
		config.LLM.OpenAI.BaseURL = base
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		config.LLM.Anthropic.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.LLM.Gemini.APIKey = key
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.Ollama.BaseURL = baseURL
	}
	if loc := os.Getenv("LUCY_INDEX_LOCATION"); loc != "" {
		config.Index.Location = loc
	}
	if level := os.Getenv("LUCY_LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
}
