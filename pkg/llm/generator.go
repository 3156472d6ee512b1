package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/phuslu/log"
	"github.com/xhad/lucy/internal/models"
	"github.com/xhad/lucy/internal/types"
	"github.com/xhad/lucy/pkg/logging"
)

var _ types.Generator = (*Generator)(nil)

// Provider prefixes recognized in model ids such as "OpenAI: gpt-4o-mini".
const (
	PrefixOpenAI    = "OpenAI: "
	PrefixOllama    = "Ollama: "
	PrefixAnthropic = "Anthropic: "
	PrefixGemini    = "Gemini: "
)

// GeneratorConfig represents the configuration for a Generator.
type GeneratorConfig struct {
	Timeout      time.Duration // per attempt
	RetryBackoff time.Duration
	MaxRetries   int
	MaxTokens    int
	Logger       *log.Logger
}

// Generator routes completions to a backend chosen by model prefix and
// retries transient failures a bounded number of times.
type Generator struct {
	config   GeneratorConfig
	backends map[string]types.Backend
	logger   *log.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewGenerator creates a Generator with no backends registered.
func NewGenerator(config GeneratorConfig) *Generator {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.RetryBackoff == 0 {
		config.RetryBackoff = 5 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 1024
	}

	return &Generator{
		config:   config,
		backends: make(map[string]types.Backend),
		logger:   logging.OrDiscard(config.Logger),
		sleep:    sleepContext,
	}
}

// Register binds a model prefix (e.g. PrefixOpenAI) to a backend.
func (g *Generator) Register(prefix string, backend types.Backend) {
	g.backends[prefix] = backend
}

// Prefixes lists the registered provider prefixes.
func (g *Generator) Prefixes() []string {
	prefixes := make([]string, 0, len(g.backends))
	for p := range g.backends {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	return prefixes
}

// Supports reports whether model names a registered backend.
func (g *Generator) Supports(model string) bool {
	_, _, err := g.resolve(model)
	return err == nil
}

func (g *Generator) resolve(model string) (types.Backend, string, error) {
	for prefix, backend := range g.backends {
		if name, ok := strings.CutPrefix(model, prefix); ok && strings.TrimSpace(name) != "" {
			return backend, strings.TrimSpace(name), nil
		}
	}
	return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedModel, model)
}

// Generate sends the prompt to the backend selected by req.Model. A transient
// failure is retried after the configured backoff; once retries run out, or
// on any other failure, a *GenerationError is returned.
func (g *Generator) Generate(ctx context.Context, req models.GenerateRequest) (*models.Generation, error) {
	backend, name, err := g.resolve(req.Model)
	if err != nil {
		return nil, err
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = g.config.MaxTokens
	}

	attempts := 0
	for {
		attempts++
		start := time.Now()

		text, err := g.attempt(ctx, backend, name, req)
		if err == nil {
			g.logger.Debug().Str("model", req.Model).Int("attempt", attempts).
				Dur("duration", time.Since(start)).Int("response_length", len(text)).
				Msg("generation completed")
			return &models.Generation{Text: text, Model: req.Model, Attempts: attempts}, nil
		}

		transient := IsTransient(err) && ctx.Err() == nil
		if !transient || attempts > g.config.MaxRetries {
			g.logger.Error().Err(err).Str("model", req.Model).Int("attempts", attempts).
				Bool("transient", transient).Msg("generation failed")
			return nil, &GenerationError{Model: req.Model, Attempts: attempts, Transient: transient, Err: err}
		}

		g.logger.Warn().Err(err).Str("model", req.Model).Dur("backoff", g.config.RetryBackoff).
			Msg("generation failed, waiting before retry")
		if err := g.sleep(ctx, g.config.RetryBackoff); err != nil {
			return nil, &GenerationError{Model: req.Model, Attempts: attempts, Transient: true, Err: err}
		}
	}
}

func (g *Generator) attempt(ctx context.Context, backend types.Backend, name string, req models.GenerateRequest) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	text, err := backend.Complete(attemptCtx, name, req)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty response from %s", req.Model)
	}
	return text, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
