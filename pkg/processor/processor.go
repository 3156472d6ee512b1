package processor

import (
	"fmt"
	"maps"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
	"github.com/xhad/lucy/internal/models"
)

type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap *int // nil means min(200, ChunkSize/5)
	Separators   []string
}

// Overlap returns n as a ProcessorConfig.ChunkOverlap value.
func Overlap(n int) *int { return &n }

// Processor splits documents into overlapping chunks.
type Processor struct {
	config   ProcessorConfig
	splitter textsplitter.RecursiveCharacter
}

func NewWithConfig(config ProcessorConfig) (*Processor, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}
	overlap := min(200, config.ChunkSize/5)
	if config.ChunkOverlap != nil {
		overlap = *config.ChunkOverlap
	}
	if len(config.Separators) == 0 {
		config.Separators = []string{"\n\n", "\n", " ", ""}
	}
	if config.ChunkSize < 0 || overlap < 0 || overlap >= config.ChunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be non-negative and less than chunk size %d",
			overlap, config.ChunkSize)
	}
	config.ChunkOverlap = &overlap

	return &Processor{
		config: config,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(config.ChunkSize),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators(config.Separators),
		),
	}, nil
}

// Split chunks a single document. Chunk positions start at zero.
func (p *Processor) Split(doc models.Document) ([]models.Chunk, error) {
	return p.split(doc, 0)
}

// Process chunks the pages of one upload in order. Positions run across all
// documents so chunk IDs stay unique when pages share a document ID.
func (p *Processor) Process(docs []models.Document) ([]models.Chunk, error) {
	var chunks []models.Chunk

	for _, doc := range docs {
		docChunks, err := p.split(doc, len(chunks))
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, docChunks...)
	}

	return chunks, nil
}

func (p *Processor) split(doc models.Document, offset int) ([]models.Chunk, error) {
	cleanContent := cleanText(doc.Content)
	if cleanContent == "" {
		return nil, nil
	}

	texts, err := p.splitter.SplitText(cleanContent)
	if err != nil {
		return nil, fmt.Errorf("failed to split document %s: %w", doc.ID, err)
	}

	chunks := make([]models.Chunk, 0, len(texts))
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		position := offset + len(chunks)

		metadata := make(map[string]interface{}, len(doc.Metadata)+3)
		maps.Copy(metadata, doc.Metadata)
		metadata["document_id"] = doc.ID
		metadata["source"] = doc.Source
		metadata["chunk_index"] = position

		chunks = append(chunks, models.Chunk{
			ID:         fmt.Sprintf("%s_%d", doc.ID, position),
			DocumentID: doc.ID,
			Position:   position,
			Content:    text,
			Metadata:   metadata,
		})
	}

	return chunks, nil
}

// cleanText drops invalid UTF-8 and collapses runs of spaces while keeping
// paragraph breaks for the splitter.
func cleanText(text string) string {
	text = sanitizeUTF8(text)

	paragraphs := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	cleaned := paragraphs[:0]
	for _, para := range paragraphs {
		lines := strings.Split(para, "\n")
		kept := lines[:0]
		for _, line := range lines {
			if line = strings.Join(strings.Fields(line), " "); line != "" {
				kept = append(kept, line)
			}
		}
		if len(kept) > 0 {
			cleaned = append(cleaned, strings.Join(kept, "\n"))
		}
	}

	return strings.TrimSpace(strings.Join(cleaned, "\n\n"))
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(s[i:])
			if size == 1 {
				continue
			}
		}
		v = append(v, r)
	}
	return string(v)
}
