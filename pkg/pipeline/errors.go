package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/xhad/lucy/pkg/llm"
	"github.com/xhad/lucy/pkg/retriever"
	"github.com/xhad/lucy/pkg/store"
)

// ErrNoKnowledgeBase is returned when a question arrives before any
// document has been ingested or loaded.
var ErrNoKnowledgeBase = errors.New("no knowledge base available")

// IngestError reports the stage at which an ingestion was aborted. The
// previous index stays live when one is returned.
type IngestError struct {
	Stage string
	Err   error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest failed at %s: %v", e.Stage, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// UserMessage turns an error from Ingest or Answer into a short message
// fit for an end user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		genErr    *llm.GenerationError
		ingestErr *IngestError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return "Request cancelled."
	case errors.Is(err, ErrNoKnowledgeBase):
		return "No document has been uploaded yet. Upload a PDF first."
	case errors.Is(err, llm.ErrUnsupportedModel):
		return "Please select a supported model."
	case errors.As(err, &genErr) && genErr.Transient:
		return "The model is not responding right now. Try again in a moment."
	case errors.As(err, &genErr):
		return "The model rejected the request. Check the model name and API key."
	case errors.Is(err, store.ErrInvalidK):
		return "The number of chunks to retrieve must be at least 1."
	case errors.Is(err, store.ErrDimensionMismatch):
		return "The index was built with a different embedding model. Upload the document again."
	case errors.Is(err, store.ErrInvalidQuery):
		return "Please enter a question."
	case errors.Is(err, retriever.ErrQuestionEmbedding):
		return "The embedding service is unavailable. Try again in a moment."
	case errors.Is(err, store.ErrIndexLoad):
		return "The saved index does not match the current embedding model. Upload the document again."
	case errors.As(err, &ingestErr) && ingestErr.Stage == StageSplit:
		return "No text could be extracted from the document."
	case errors.As(err, &ingestErr) && ingestErr.Stage == StageEmbed:
		return "The document could not be embedded. Check the embedding service."
	case errors.As(err, &ingestErr):
		return "The document could not be indexed. Check the index location."
	default:
		return "Something went wrong. Check the logs for details."
	}
}
