package llm_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/lucy/internal/models"
	"github.com/xhad/lucy/pkg/llm"
)

type stubBackend struct {
	calls     atomic.Int32
	responses []func(ctx context.Context) (string, error)
	lastModel string
	lastReq   models.GenerateRequest
}

func (s *stubBackend) Complete(ctx context.Context, model string, req models.GenerateRequest) (string, error) {
	n := int(s.calls.Add(1)) - 1
	s.lastModel = model
	s.lastReq = req
	if n >= len(s.responses) {
		return "", errors.New("unexpected call")
	}
	return s.responses[n](ctx)
}

func reply(text string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return text, nil }
}

func fail(err error) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return "", err }
}

func newTestGenerator(backend *stubBackend) *llm.Generator {
	g := llm.NewGenerator(llm.GeneratorConfig{
		Timeout:      time.Second,
		RetryBackoff: 20 * time.Millisecond,
		MaxRetries:   1,
	})
	g.Register(llm.PrefixOpenAI, backend)
	return g
}

func TestGenerate_Success(t *testing.T) {
	backend := &stubBackend{responses: []func(context.Context) (string, error){reply("Nivoria")}}
	g := newTestGenerator(backend)

	gen, err := g.Generate(context.Background(), models.GenerateRequest{
		Prompt: "What is the capital of Borealia?",
		Model:  "OpenAI: gpt-4o-mini",
	})
	require.NoError(t, err)
	assert.Equal(t, "Nivoria", gen.Text)
	assert.Equal(t, "OpenAI: gpt-4o-mini", gen.Model)
	assert.Equal(t, 1, gen.Attempts)
	assert.Equal(t, "gpt-4o-mini", backend.lastModel)
	assert.Equal(t, 1024, backend.lastReq.MaxTokens)
}

func TestGenerate_RetriesTransientFailureOnce(t *testing.T) {
	backend := &stubBackend{responses: []func(context.Context) (string, error){
		fail(llm.Transient(errors.New("503 service unavailable"))),
		reply("second time lucky"),
	}}
	g := newTestGenerator(backend)

	start := time.Now()
	gen, err := g.Generate(context.Background(), models.GenerateRequest{Prompt: "p", Model: "OpenAI: gpt-4o-mini"})
	require.NoError(t, err)

	assert.Equal(t, "second time lucky", gen.Text)
	assert.Equal(t, 2, gen.Attempts)
	assert.EqualValues(t, 2, backend.calls.Load())
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestGenerate_GivesUpAfterOneRetry(t *testing.T) {
	backend := &stubBackend{responses: []func(context.Context) (string, error){
		fail(llm.Transient(errors.New("429 rate limited"))),
		fail(llm.Transient(errors.New("429 rate limited"))),
		reply("never reached"),
	}}
	g := newTestGenerator(backend)

	_, err := g.Generate(context.Background(), models.GenerateRequest{Prompt: "p", Model: "OpenAI: gpt-4o-mini"})
	require.Error(t, err)

	var genErr *llm.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, 2, genErr.Attempts)
	assert.True(t, genErr.Transient)
	assert.EqualValues(t, 2, backend.calls.Load())
}

func TestGenerate_PermanentFailureNotRetried(t *testing.T) {
	backend := &stubBackend{responses: []func(context.Context) (string, error){
		fail(errors.New("invalid api key")),
		reply("never reached"),
	}}
	g := newTestGenerator(backend)

	_, err := g.Generate(context.Background(), models.GenerateRequest{Prompt: "p", Model: "OpenAI: gpt-4o-mini"})

	var genErr *llm.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, 1, genErr.Attempts)
	assert.False(t, genErr.Transient)
	assert.EqualValues(t, 1, backend.calls.Load())
}

func TestGenerate_AttemptTimeoutIsRetried(t *testing.T) {
	block := func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	backend := &stubBackend{responses: []func(context.Context) (string, error){block, reply("ok")}}
	g := llm.NewGenerator(llm.GeneratorConfig{
		Timeout:      10 * time.Millisecond,
		RetryBackoff: time.Millisecond,
		MaxRetries:   1,
	})
	g.Register(llm.PrefixOllama, backend)

	gen, err := g.Generate(context.Background(), models.GenerateRequest{Prompt: "p", Model: "Ollama: llama3.2"})
	require.NoError(t, err)
	assert.Equal(t, 2, gen.Attempts)
}

func TestGenerate_EmptyResponseIsFailure(t *testing.T) {
	backend := &stubBackend{responses: []func(context.Context) (string, error){reply("   ")}}
	g := newTestGenerator(backend)

	_, err := g.Generate(context.Background(), models.GenerateRequest{Prompt: "p", Model: "OpenAI: gpt-4o-mini"})

	var genErr *llm.GenerationError
	assert.ErrorAs(t, err, &genErr)
}

func TestGenerate_UnsupportedModel(t *testing.T) {
	backend := &stubBackend{}
	g := newTestGenerator(backend)

	for _, model := range []string{"gpt-4o-mini", "Mistral: large", "OpenAI: ", ""} {
		_, err := g.Generate(context.Background(), models.GenerateRequest{Prompt: "p", Model: model})
		assert.ErrorIs(t, err, llm.ErrUnsupportedModel, model)
		assert.False(t, g.Supports(model), model)
	}
	assert.EqualValues(t, 0, backend.calls.Load())
}

func TestAvailableModels(t *testing.T) {
	g := newTestGenerator(&stubBackend{})
	g.Register(llm.PrefixOllama, &stubBackend{})

	available := g.AvailableModels([]string{"OpenAI: gpt-4o-mini", "Anthropic: claude-3-5-haiku-latest", "Ollama: llama3.2"})
	assert.Equal(t, []string{"OpenAI: gpt-4o-mini", "Ollama: llama3.2"}, available)
	assert.Equal(t, []string{llm.PrefixOllama, llm.PrefixOpenAI}, g.Prefixes())
}

func TestIsTransient(t *testing.T) {
	assert.True(t, llm.IsTransient(llm.Transient(errors.New("x"))))
	assert.True(t, llm.IsTransient(context.DeadlineExceeded))
	assert.False(t, llm.IsTransient(errors.New("bad request")))
	assert.False(t, llm.IsTransient(nil))
	assert.Nil(t, llm.Transient(nil))
}
