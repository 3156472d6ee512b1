// Package pipeline wires chunking, embedding, indexing, retrieval, prompt
// assembly and generation into the two operations callers use: Ingest and
// Answer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phuslu/log"
	"github.com/xhad/lucy/internal/models"
	"github.com/xhad/lucy/internal/types"
	"github.com/xhad/lucy/pkg/llm"
	"github.com/xhad/lucy/pkg/logging"
	"github.com/xhad/lucy/pkg/prompt"
	"github.com/xhad/lucy/pkg/retriever"
	"github.com/xhad/lucy/pkg/store"
)

// Ingestion stages reported through OnProgress and IngestError.
const (
	StageSplit = "split"
	StageEmbed = "embed"
	StageBuild = "build"
	StageSave  = "save"
)

// embedStep is how many chunks are embedded between progress reports.
const embedStep = 32

type Config struct {
	Snapshot             store.SnapshotConfig
	TopK                 int
	DefaultModel         string
	SystemPrompt         string
	GeneralContext       string
	Temperature          float64
	MaxTokens            int
	DropFailedEmbeddings bool
	Logger               *log.Logger
}

// Progress is one ingestion progress report.
type Progress struct {
	Stage string
	Done  int
	Total int
}

type IngestResult struct {
	DocumentID        string
	Source            string
	Documents         int
	Chunks            int
	Embedded          int
	EmbeddingFailures int
	Location          string
	Duration          time.Duration
}

type AnswerRequest struct {
	Question     string
	Model        string   // empty selects the configured default
	K            int      // zero selects the configured top-k
	SystemPrompt string   // empty selects the configured system prompt
	Temperature  *float64 // nil selects the configured temperature
}

type AnswerResult struct {
	Answer       string
	Model        string
	Retrieved    []models.ScoredChunk
	Prompt       *prompt.Prompt
	PromptTokens int
	Attempts     int
}

// Pipeline owns the live index. Ingestions are serialized; answers read
// whichever index was live when they started.
type Pipeline struct {
	config    Config
	chunker   types.Chunker
	embedder  types.Embedder
	generator types.Generator
	builder   *prompt.Builder
	retriever *retriever.Retriever
	logger    *log.Logger

	index      atomic.Pointer[store.Index]
	mu         sync.Mutex
	onProgress func(Progress)
}

func New(config Config, chunker types.Chunker, embedder types.Embedder, generator types.Generator, builder *prompt.Builder) *Pipeline {
	if config.TopK == 0 {
		config.TopK = 5
	}
	logger := logging.OrDiscard(config.Logger)
	return &Pipeline{
		config:    config,
		chunker:   chunker,
		embedder:  embedder,
		generator: generator,
		builder:   builder,
		retriever: retriever.New(embedder, logger),
		logger:    logger,
	}
}

// OnProgress registers fn to receive ingestion progress. It must be set
// before the first Ingest.
func (p *Pipeline) OnProgress(fn func(Progress)) {
	p.onProgress = fn
}

func (p *Pipeline) progress(stage string, done, total int) {
	if p.onProgress != nil {
		p.onProgress(Progress{Stage: stage, Done: done, Total: total})
	}
}

// Index returns the live index, or nil before any ingest or load.
func (p *Pipeline) Index() *store.Index {
	return p.index.Load()
}

// Open loads the snapshot at the configured location. A location holding
// no snapshot leaves the pipeline without a knowledge base and is not an
// error.
func (p *Pipeline) Open(ctx context.Context) error {
	idx, err := store.Load(ctx, p.config.Snapshot, store.Expect{
		Dimension:      p.embedder.Dimensions(),
		EmbeddingModel: p.embedder.ModelName(),
	})
	if errors.Is(err, store.ErrNoSnapshot) {
		p.logger.Info().Msg("no saved index, waiting for a document")
		return nil
	}
	if err != nil {
		return err
	}
	p.index.Store(idx)
	return nil
}

// Ingest replaces the knowledge base with docs, which are the pages of a
// single upload. Failed embeddings are counted in the result and either
// kept as zero vectors or dropped, per Config.DropFailedEmbeddings.
func (p *Pipeline) Ingest(ctx context.Context, docs ...models.Document) (*IngestResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	if len(docs) == 0 {
		return nil, &IngestError{Stage: StageSplit, Err: fmt.Errorf("%w: no documents", store.ErrIndexBuild)}
	}
	result := &IngestResult{
		DocumentID: docs[0].ID,
		Source:     docs[0].Source,
		Documents:  len(docs),
		Location:   p.config.Snapshot.Location,
	}

	p.progress(StageSplit, 0, len(docs))
	chunks, err := p.chunker.Process(docs)
	if err != nil {
		return nil, &IngestError{Stage: StageSplit, Err: err}
	}
	if len(chunks) == 0 {
		return nil, &IngestError{Stage: StageSplit, Err: fmt.Errorf("%w: document has no text", store.ErrIndexBuild)}
	}
	result.Chunks = len(chunks)
	p.progress(StageSplit, len(docs), len(docs))

	entries, err := p.embed(ctx, chunks, result)
	if err != nil {
		return nil, err
	}

	p.progress(StageBuild, 0, 1)
	idx, err := store.Build(entries, store.Manifest{
		EmbeddingModel: p.embedder.ModelName(),
		DocumentID:     result.DocumentID,
		Source:         result.Source,
	})
	if err != nil {
		return nil, &IngestError{Stage: StageBuild, Err: err}
	}
	p.progress(StageBuild, 1, 1)

	p.progress(StageSave, 0, 1)
	if err := store.Save(ctx, idx, p.config.Snapshot); err != nil {
		return nil, &IngestError{Stage: StageSave, Err: err}
	}
	p.progress(StageSave, 1, 1)

	p.index.Store(idx)
	result.Duration = time.Since(start)

	p.logger.Info().Str("document_id", result.DocumentID).Str("source", result.Source).
		Int("chunks", result.Chunks).Int("embedded", result.Embedded).
		Int("embedding_failures", result.EmbeddingFailures).Dur("duration", result.Duration).
		Msg("document ingested")

	return result, nil
}

func (p *Pipeline) embed(ctx context.Context, chunks []models.Chunk, result *IngestResult) ([]store.Entry, error) {
	entries := make([]store.Entry, 0, len(chunks))
	total := len(chunks)
	p.progress(StageEmbed, 0, total)

	for start := 0; start < total; start += embedStep {
		end := min(start+embedStep, total)
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}

		for i, r := range p.embedder.EmbedMany(ctx, texts) {
			chunk := chunks[start+i]
			if r.Err != nil {
				result.EmbeddingFailures++
				p.logger.Warn().Err(r.Err).Str("chunk_id", chunk.ID).Msg("chunk embedding failed")
				if p.config.DropFailedEmbeddings {
					continue
				}
			} else {
				result.Embedded++
			}
			entries = append(entries, store.Entry{Vector: r.Vector, Chunk: chunk})
		}

		if err := ctx.Err(); err != nil {
			return nil, &IngestError{Stage: StageEmbed, Err: err}
		}
		p.progress(StageEmbed, end, total)
	}

	if result.Embedded == 0 {
		return nil, &IngestError{Stage: StageEmbed, Err: fmt.Errorf("all %d chunk embeddings failed", total)}
	}
	return entries, nil
}

// Answer retrieves context for req.Question, asks the model and records
// the exchange in session, which may be nil.
func (p *Pipeline) Answer(ctx context.Context, req AnswerRequest, session *Session) (*AnswerResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", store.ErrInvalidQuery)
	}

	model := req.Model
	if model == "" {
		model = p.config.DefaultModel
	}
	if !p.generator.Supports(model) {
		return nil, fmt.Errorf("%w: %q", llm.ErrUnsupportedModel, model)
	}

	idx := p.index.Load()
	if idx.Len() == 0 {
		return nil, ErrNoKnowledgeBase
	}

	k := req.K
	if k == 0 {
		k = p.config.TopK
	}
	retrieved, err := p.retriever.Retrieve(ctx, idx, question, k)
	if err != nil {
		return nil, err
	}
	if len(retrieved.Chunks) == 0 {
		return nil, ErrNoKnowledgeBase
	}

	built, err := p.builder.Build(question, retrieved.Chunks)
	if err != nil {
		return nil, err
	}

	temperature := p.config.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	generation, err := p.generator.Generate(ctx, models.GenerateRequest{
		Prompt:       built.Text,
		Model:        model,
		SystemPrompt: p.systemPrompt(req.SystemPrompt),
		Temperature:  temperature,
		MaxTokens:    p.config.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	if session != nil {
		session.Append(
			models.Turn{Role: models.RoleUser, Content: question},
			models.Turn{Role: models.RoleAssistant, Content: generation.Text},
		)
	}

	return &AnswerResult{
		Answer:       generation.Text,
		Model:        generation.Model,
		Retrieved:    retrieved.Chunks,
		Prompt:       built,
		PromptTokens: built.Tokens,
		Attempts:     generation.Attempts,
	}, nil
}

func (p *Pipeline) systemPrompt(override string) string {
	system := override
	if system == "" {
		system = p.config.SystemPrompt
	}
	if p.config.GeneralContext == "" {
		return system
	}
	if system == "" {
		return p.config.GeneralContext
	}
	return system + "\n\n" + p.config.GeneralContext
}
