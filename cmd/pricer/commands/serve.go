package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-price-pilot/pipeline"
	"github.com/aluiziolira/go-price-pilot/scraper"
	"github.com/aluiziolira/go-price-pilot/server"
	"github.com/aluiziolira/go-price-pilot/storage"
)

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve [--addr <host:port>]",
	Short: "Starts the HTTP API that processes baselines in the background.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.HTTPAddr = serveAddr
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		ctx := cmd.Context()

		store, err := storage.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		defer store.Close()

		metrics := scraper.NewMetrics()
		fetcher, err := scraper.NewFetcher(cfg, metrics)
		if err != nil {
			return fmt.Errorf("initialising fetcher: %w", err)
		}

		orch := pipeline.NewOrchestrator(cfg, fetcher, store, metrics)
		if cfg.Verbose {
			orch.StartMetricsReporting(30 * time.Second)
		}

		serveErr := server.New(cfg.HTTPAddr, orch, store, metrics).ListenAndServe(ctx)
		// Let accepted runs finish before the store closes.
		if err := orch.Close(); err != nil {
			return err
		}
		return serveErr
	},
}
