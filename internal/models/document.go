package models

// Document is the text of one uploaded source (or one page of it) plus its metadata.
type Document struct {
	ID       string
	Source   string
	Content  string
	Metadata map[string]interface{}
}

// Chunk is a bounded slice of a Document used as the unit of retrieval.
type Chunk struct {
	ID         string
	DocumentID string
	Position   int
	Content    string
	Metadata   map[string]interface{}
}

// ScoredChunk is a Chunk returned from a similarity query.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// RetrievalResult holds the top-K chunks for a question, best first.
type RetrievalResult struct {
	Question string
	K        int
	Chunks   []ScoredChunk
}

// EmbeddingResult is the outcome of embedding one text. Vector is a zero
// vector of the embedder's dimension when Err is set.
type EmbeddingResult struct {
	Vector []float32
	Err    error
}
