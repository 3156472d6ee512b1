package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// modelPrefixes are the provider prefixes a model id may carry.
var modelPrefixes = []string{"OpenAI: ", "Ollama: ", "Anthropic: ", "Gemini: "}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate embedder config
	switch c.Embedder.Provider {
	case "ollama", "openai", "hash":
	default:
		errors = append(errors, ValidationError{
			Field:   "embedder.provider",
			Message: fmt.Sprintf("unknown embedder provider: %s", c.Embedder.Provider),
		})
	}

	if c.Embedder.Dimensions < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedder.dimensions",
			Message: "dimensions must be positive",
		})
	}

	if c.Embedder.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedder.batch_size",
			Message: "batch_size must be positive",
		})
	}

	if c.Embedder.RateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "embedder.rate_limit",
			Message: "rate_limit cannot be negative",
		})
	}

	// Validate Processor config
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if overlap := c.Processor.ChunkOverlap; overlap != nil && (*overlap < 0 || *overlap >= c.Processor.ChunkSize) {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	// Validate index config
	if c.Index.Location == "" {
		errors = append(errors, ValidationError{
			Field:   "index.location",
			Message: "index location is required",
		})
	} else if strings.HasPrefix(c.Index.Location, "postgres") {
		if _, err := url.Parse(c.Index.Location); err != nil {
			errors = append(errors, ValidationError{
				Field:   "index.location",
				Message: "invalid database URL",
			})
		}
	}

	// Validate LLM config
	for _, m := range c.LLM.Models {
		if !hasModelPrefix(m) {
			errors = append(errors, ValidationError{
				Field:   "llm.models",
				Message: fmt.Sprintf("model %q has no known provider prefix", m),
			})
		}
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 32768 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 32768",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if _, err := time.ParseDuration(c.LLM.Timeout); err != nil {
		errors = append(errors, ValidationError{
			Field:   "llm.timeout",
			Message: "invalid duration",
		})
	}

	if _, err := time.ParseDuration(c.LLM.RetryBackoff); err != nil {
		errors = append(errors, ValidationError{
			Field:   "llm.retry_backoff",
			Message: "invalid duration",
		})
	}

	if c.LLM.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_retries",
			Message: "max_retries cannot be negative",
		})
	}

	if _, err := url.Parse(c.LLM.Ollama.BaseURL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "llm.ollama.base_url",
			Message: "invalid Ollama base URL",
		})
	}

	// Validate retrieval config
	if c.Retrieval.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.top_k",
			Message: "top_k must be positive",
		})
	}

	if c.Retrieval.MaxContextChars < 0 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.max_context_chars",
			Message: "max_context_chars cannot be negative",
		})
	}

	return errors
}

func hasModelPrefix(model string) bool {
	for _, p := range modelPrefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}
