package main

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/lucy/internal/models"
	"github.com/xhad/lucy/pkg/loader"
	"github.com/xhad/lucy/pkg/pipeline"
)

var urlRegex = regexp.MustCompile(`^https?://[^\s]+$`)

var (
	askK          int
	askShowPrompt bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file|url>",
	Short: "Index a document, replacing the current knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question from the indexed document",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List configured models and whether they can be used",
	Args:  cobra.NoArgs,
	RunE:  runModels,
}

func init() {
	askCmd.Flags().IntVarP(&askK, "top-k", "k", 0, "number of chunks to retrieve (default from config)")
	askCmd.Flags().BoolVar(&askShowPrompt, "show-prompt", false, "print the assembled prompt")
	rootCmd.AddCommand(ingestCmd, askCmd, modelsCmd)
}

// loadSource reads a local file, copying it into raw_dir first, or fetches a URL.
func loadSource(cmd *cobra.Command, a *app, source string) ([]models.Document, error) {
	l := loader.NewWithConfig(loader.LoaderConfig{Logger: a.logger})

	if urlRegex.MatchString(source) {
		return l.Fetch(cmd.Context(), source)
	}

	docs, err := l.Load(source)
	if err != nil {
		return nil, err
	}
	if a.config.Data.RawDir != "" {
		if err := persist(a.config.Data.RawDir, source); err != nil {
			a.logger.Warn().Err(err).Str("file", source).Msg("failed to keep a copy of the upload")
		}
	}
	return docs, nil
}

// persist keeps a copy of a local upload in dir.
func persist(dir, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = loader.Persist(dir, path, data)
	return err
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}

	color.Blue("\nIndexing %s\n", args[0])
	docs, err := loadSource(cmd, a, args[0])
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", args[0], err)
	}
	color.Green("✓ Loaded %d page(s)\n", len(docs))

	done := showProgress(a.pipeline)
	result, err := a.pipeline.Ingest(cmd.Context(), docs...)
	done()
	if err != nil {
		return fmt.Errorf("%s: %w", pipeline.UserMessage(err), err)
	}

	color.Green("✓ Indexed %d chunks into %s in %s\n", result.Chunks, result.Location, result.Duration.Round(time.Millisecond))
	if result.EmbeddingFailures > 0 {
		color.Yellow("! %d chunk(s) could not be embedded\n", result.EmbeddingFailures)
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}

	question := strings.Join(args, " ")
	spinner := getSpinner(" Thinking...")
	answer, err := a.pipeline.Answer(cmd.Context(), pipeline.AnswerRequest{
		Question: question,
		Model:    modelFlag,
		K:        askK,
	}, nil)
	spinner.Finish()
	fmt.Print("\r")
	if err != nil {
		return fmt.Errorf("%s: %w", pipeline.UserMessage(err), err)
	}

	if askShowPrompt {
		color.HiBlack("%s\n\n", answer.Prompt.Text)
	}
	color.Cyan("%s\n", answer.Answer)
	printSources(answer)
	return nil
}

func printSources(answer *pipeline.AnswerResult) {
	for i, c := range answer.Retrieved {
		page := ""
		if p, ok := c.Chunk.Metadata["page"]; ok {
			page = fmt.Sprintf(" p.%v", p)
		}
		color.HiBlack("  [%d] %v%s (%.2f)\n", i+1, c.Chunk.Metadata["source"], page, c.Score)
	}
	if answer.Prompt != nil && answer.Prompt.Truncated > 0 {
		color.Yellow("  %d chunk(s) left out to fit the context budget\n", answer.Prompt.Truncated)
	}
}

func runModels(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}

	for i, m := range a.config.LLM.Models {
		marker := " "
		if i == 0 {
			marker = "*"
		}
		if a.generator.Supports(m) {
			color.Green("%s %s\n", marker, m)
		} else {
			color.HiBlack("%s %s (no backend configured)\n", marker, m)
		}
	}
	return nil
}
