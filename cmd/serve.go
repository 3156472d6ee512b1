package main

import (
	"github.com/spf13/cobra"
	"github.com/xhad/lucy/pkg/loader"
	"github.com/xhad/lucy/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the WebSocket chat and upload endpoints",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}

	addr := a.config.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	s := server.NewWSServer(server.Config{
		Addr:   addr,
		RawDir: a.config.Data.RawDir,
		Models: a.generator.AvailableModels(a.config.LLM.Models),
	}, a.pipeline, loader.NewWithConfig(loader.LoaderConfig{Logger: a.logger}), a.logger)

	return s.ListenAndServe(cmd.Context())
}
