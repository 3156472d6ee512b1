// Package prompt assembles grounding prompts from retrieved chunks.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/phuslu/log"
	"github.com/tmc/langchaingo/prompts"
	"github.com/xhad/lucy/internal/models"
	"github.com/xhad/lucy/pkg/logging"
)

// DefaultFraming opens every prompt built without a custom template.
const DefaultFraming = "Answer the question using only the following context."

type BuilderConfig struct {
	// Template is an f-string template using {question} and {context}.
	// {prompt} is accepted as an alias for {question}.
	Template string
	// MaxContextChars bounds the context in runes. Zero means unlimited.
	MaxContextChars int
	Logger          *log.Logger
}

// Prompt is an assembled prompt and what went into it.
type Prompt struct {
	Text      string
	Used      int // chunks included, possibly the last one cut
	Truncated int // chunks dropped or cut to fit the budget
	Tokens    int // rough estimate, about four characters per token
}

type Builder struct {
	config   BuilderConfig
	template *prompts.PromptTemplate
	logger   *log.Logger
}

func NewBuilder(config BuilderConfig) (*Builder, error) {
	if config.MaxContextChars < 0 {
		return nil, fmt.Errorf("max context chars must not be negative, got %d", config.MaxContextChars)
	}

	b := &Builder{config: config, logger: logging.OrDiscard(config.Logger)}

	if config.Template != "" {
		vars := []string{"context"}
		hasQuestion := strings.Contains(config.Template, "{question}")
		if hasQuestion {
			vars = append(vars, "question")
		}
		if strings.Contains(config.Template, "{prompt}") {
			vars = append(vars, "prompt")
			hasQuestion = true
		}
		if !hasQuestion {
			return nil, fmt.Errorf("prompt template must reference {question}")
		}

		b.template = &prompts.PromptTemplate{
			Template:       config.Template,
			InputVariables: vars,
			TemplateFormat: prompts.TemplateFormatFString,
		}
		// Render once so malformed templates fail at startup.
		if _, err := b.render("q", "c"); err != nil {
			return nil, fmt.Errorf("invalid prompt template: %w", err)
		}
	}

	return b, nil
}

// Build joins the chunk texts in retrieval order, separated by blank lines,
// and frames them with the question.
func (b *Builder) Build(question string, chunks []models.ScoredChunk) (*Prompt, error) {
	contextText, used, truncated := b.context(chunks)
	if truncated > 0 {
		b.logger.Warn().Int("chunks", len(chunks)).Int("used", used).Int("truncated", truncated).
			Int("max_context_chars", b.config.MaxContextChars).Msg("context truncated to fit budget")
	}

	text, err := b.render(question, contextText)
	if err != nil {
		return nil, err
	}

	return &Prompt{
		Text:      text,
		Used:      used,
		Truncated: truncated,
		Tokens:    EstimateTokens(text),
	}, nil
}

func (b *Builder) render(question, context string) (string, error) {
	if b.template == nil {
		return fmt.Sprintf("%s\n\n%s\n\nQuestion: %s", DefaultFraming, context, question), nil
	}

	values := map[string]any{"context": context}
	for _, v := range b.template.InputVariables {
		if v == "question" || v == "prompt" {
			values[v] = question
		}
	}
	text, err := b.template.Format(values)
	if err != nil {
		return "", fmt.Errorf("failed to render prompt template: %w", err)
	}
	return text, nil
}

func (b *Builder) context(chunks []models.ScoredChunk) (string, int, int) {
	const sep = "\n\n"
	budget := b.config.MaxContextChars

	var sb strings.Builder
	size := 0
	for i, c := range chunks {
		text := strings.TrimSpace(c.Chunk.Content)
		n := utf8.RuneCountInString(text)
		if i > 0 {
			n += len(sep)
		}

		if budget > 0 && size+n > budget {
			if i == 0 {
				// Keep a cut-down first chunk rather than an empty context.
				sb.WriteString(truncateRunes(text, budget))
				return sb.String(), 1, len(chunks)
			}
			return sb.String(), i, len(chunks) - i
		}

		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(text)
		size += n
	}
	return sb.String(), len(chunks), 0
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// EstimateTokens approximates the token count of text.
func EstimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}
