package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/lucy/pkg/pipeline"
)

var chatCmd = &cobra.Command{
	Use:   "chat [file|url]",
	Short: "Chat about a document interactively",
	Long: `Starts an interactive session. An optional file or URL is indexed first.
Inside the session, "/load <file|url>" indexes another document, "/reset"
clears the conversation and "exit" quits.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}

	ingest := func(source string) {
		docs, err := loadSource(cmd, a, source)
		if err != nil {
			color.Red("Failed to load %s: %v\n", source, err)
			return
		}
		done := showProgress(a.pipeline)
		result, err := a.pipeline.Ingest(cmd.Context(), docs...)
		done()
		if err != nil {
			color.Red("%s\n", pipeline.UserMessage(err))
			return
		}
		color.Green("✓ Indexed %d chunks from %s\n", result.Chunks, result.Source)
	}

	if len(args) == 1 {
		ingest(args[0])
	}

	session := pipeline.NewSession()

	// Interactive chat loop with colored output
	color.Cyan("\nChat with your document (type 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		switch {
		case query == "":
			continue
		case strings.ToLower(query) == "exit":
			return nil
		case query == "/reset":
			session.Reset()
			color.Blue("Conversation cleared")
			continue
		case strings.HasPrefix(query, "/load "):
			ingest(strings.TrimSpace(strings.TrimPrefix(query, "/load ")))
			continue
		}

		responseSpinner := getSpinner(" Generating response...")
		answer, err := a.pipeline.Answer(cmd.Context(), pipeline.AnswerRequest{Question: query, Model: modelFlag}, session)
		responseSpinner.Finish()
		fmt.Print("\r")

		if err != nil {
			a.logger.Debug().Err(err).Msg("answer failed")
			color.Red("%s\n", pipeline.UserMessage(err))
			continue
		}
		assistantPrompt("\nAssistant: %s\n", answer.Answer)
		printSources(answer)
	}

	return scanner.Err()
}
