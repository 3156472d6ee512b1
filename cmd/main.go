package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/phuslu/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/xhad/lucy/pkg/config"
	"github.com/xhad/lucy/pkg/llm"
	"github.com/xhad/lucy/pkg/logging"
	"github.com/xhad/lucy/pkg/pipeline"
)

var (
	configPath string
	verbose    bool
	modelFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "lucy",
	Short: "Ask questions about a document",
	Long: `lucy indexes a single document (PDF, HTML or text) and answers
questions about it using retrieved passages and a language model.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (yaml or toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", `model id, e.g. "OpenAI: gpt-4o-mini"`)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

// app is everything a command needs, built from the loaded configuration.
type app struct {
	config    *config.Config
	logger    *log.Logger
	pipeline  *pipeline.Pipeline
	generator *llm.Generator
}

func setup(ctx context.Context) (*app, error) {
	// Environment files are optional.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logger := logging.New(level, cfg.Log.Format, os.Stderr)

	p, generator, err := pipeline.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := p.Open(ctx); err != nil {
		logger.Warn().Err(err).Msg("saved index not usable, ingest the document again")
	}

	return &app{config: cfg, logger: logger, pipeline: p, generator: generator}, nil
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("chunks"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

var stageDescriptions = map[string]string{
	pipeline.StageSplit: "Splitting document",
	pipeline.StageEmbed: "Embedding chunks",
	pipeline.StageBuild: "Building index",
	pipeline.StageSave:  "Saving index",
}

// showProgress draws one progress bar per ingestion stage.
func showProgress(p *pipeline.Pipeline) func() {
	var (
		bar   *progressbar.ProgressBar
		stage string
	)
	p.OnProgress(func(pr pipeline.Progress) {
		if pr.Stage != stage {
			if bar != nil {
				bar.Finish()
				fmt.Println()
			}
			stage = pr.Stage
			bar = getProgressBar(pr.Total, stageDescriptions[pr.Stage])
		}
		bar.Set(pr.Done)
	})
	return func() {
		if bar != nil {
			bar.Finish()
			fmt.Println()
		}
	}
}
