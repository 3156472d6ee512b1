package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "lucy.yaml")

	configData := `
embedder:
  provider: "hash"
  dimensions: 256
  batch_size: 8

processor:
  chunk_size: 500
  chunk_overlap: 100

index:
  location: "/tmp/lucy-index"

llm:
  models:
    - "Ollama: mistral"
    - "OpenAI: gpt-4o-mini"
  temperature: 0.5
  max_tokens: 1000
  timeout: "30s"
  retry_backoff: "2s"

retrieval:
  top_k: 3
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	// Test loading config
	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	// Verify loaded values
	assert.Equal(t, "hash", config.Embedder.Provider)
	assert.Equal(t, "xxhash-bow", config.Embedder.Model)
	assert.Equal(t, 256, config.Embedder.Dimensions)
	assert.Equal(t, 500, config.Processor.ChunkSize)
	require.NotNil(t, config.Processor.ChunkOverlap)
	assert.Equal(t, 100, *config.Processor.ChunkOverlap)
	assert.Equal(t, "/tmp/lucy-index", config.Index.Location)
	assert.Equal(t, "Ollama: mistral", config.DefaultModel())
	assert.Equal(t, 0.5, config.LLM.Temperature)
	assert.Equal(t, 30*time.Second, config.Timeout())
	assert.Equal(t, 2*time.Second, config.RetryBackoff())
	assert.Equal(t, 1, config.LLM.MaxRetries)
	assert.Equal(t, 3, config.Retrieval.TopK)
	assert.Empty(t, config.Validate())
}

func TestLoadConfigTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "lucy.toml")

	configData := `
[embedder]
provider = "hash"
dimensions = 128

[processor]
chunk_size = 300
chunk_overlap = 30

[llm]
models = ["Anthropic: claude-3-5-haiku-latest"]
`
	require.NoError(t, os.WriteFile(configPath, []byte(configData), 0644))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, 128, config.Embedder.Dimensions)
	assert.Equal(t, 300, config.Processor.ChunkSize)
	assert.Equal(t, "Anthropic: claude-3-5-haiku-latest", config.DefaultModel())
	assert.Equal(t, 60*time.Second, config.Timeout())
	assert.Equal(t, 5*time.Second, config.RetryBackoff())
}

func TestLoadConfigChunkOverlap(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		size    int
		overlap int
	}{
		{
			name:    "overlap derived from chunk size",
			data:    "processor:\n  chunk_size: 150\n",
			size:    150,
			overlap: 30,
		},
		{
			name:    "explicit zero overlap",
			data:    "processor:\n  chunk_size: 500\n  chunk_overlap: 0\n",
			size:    500,
			overlap: 0,
		},
		{
			name:    "defaults",
			data:    "log:\n  level: debug\n",
			size:    1000,
			overlap: 200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "lucy.yaml")
			require.NoError(t, os.WriteFile(configPath, []byte(tt.data), 0644))

			config, err := LoadConfig(configPath)
			require.NoError(t, err)

			assert.Equal(t, tt.size, config.Processor.ChunkSize)
			require.NotNil(t, config.Processor.ChunkOverlap)
			assert.Equal(t, tt.overlap, *config.Processor.ChunkOverlap)
			assert.Empty(t, config.Validate())
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	valid := &Config{}
	applyDefaults(valid)

	tests := []struct {
		name          string
		mutate        func(c *Config)
		expectedErrs  int
		errorMessages []string
	}{
		{
			name:         "valid config",
			mutate:       func(c *Config) {},
			expectedErrs: 0,
		},
		{
			name: "invalid config",
			mutate: func(c *Config) {
				c.Embedder.Provider = "word2vec"
				overlap := c.Processor.ChunkSize
				c.Processor.ChunkOverlap = &overlap
				c.LLM.Models = []string{"gpt-4"}
				c.LLM.Temperature = 3.0
				c.Retrieval.TopK = 0
			},
			expectedErrs: 5,
			errorMessages: []string{
				"embedder.provider: unknown embedder provider: word2vec",
				"processor.chunk_overlap: chunk_overlap must be non-negative and less than chunk_size",
				"llm.models: model \"gpt-4\" has no known provider prefix",
				"llm.temperature: temperature must be between 0 and 2",
				"retrieval.top_k: top_k must be positive",
			},
		},
		{
			name: "bad durations",
			mutate: func(c *Config) {
				c.LLM.Timeout = "soon"
				c.LLM.RetryBackoff = "5 seconds"
			},
			expectedErrs: 2,
			errorMessages: []string{
				"llm.timeout: invalid duration",
				"llm.retry_backoff: invalid duration",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *valid
			c.LLM.Models = append([]string(nil), valid.LLM.Models...)
			tt.mutate(&c)

			errors := c.Validate()
			assert.Len(t, errors, tt.expectedErrs)

			for i, msg := range tt.errorMessages {
				assert.Contains(t, errors[i].Error(), msg)
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LUCY_INDEX_LOCATION", "postgres://env-db:5432/lucy")

	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)

	assert.Equal(t, "http://env-ollama:11434", config.LLM.Ollama.BaseURL)
	assert.Equal(t, "http://env-ollama:11434", config.Embedder.BaseURL)
	assert.Equal(t, "sk-test", config.LLM.OpenAI.APIKey)
	assert.Equal(t, "sk-test", config.Embedder.APIKey)
	assert.Equal(t, "postgres://env-db:5432/lucy", config.Index.Location)
}

func TestOpenAIBaseURLReachesEmbedder(t *testing.T) {
	t.Setenv("OPENAI_API_BASE", "http://proxy.internal/v1")
	t.Setenv("OLLAMA_BASE_URL", "")

	config := &Config{}
	config.Embedder.Provider = "openai"
	mergeWithEnv(config)
	applyDefaults(config)

	assert.Equal(t, "http://proxy.internal/v1", config.LLM.OpenAI.BaseURL)
	assert.Equal(t, "http://proxy.internal/v1", config.Embedder.BaseURL)

	ollama := &Config{}
	mergeWithEnv(ollama)
	applyDefaults(ollama)
	assert.Equal(t, "http://localhost:11434", ollama.Embedder.BaseURL)
}
