package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-price-pilot/models"
	"github.com/aluiziolira/go-price-pilot/pipeline"
	"github.com/aluiziolira/go-price-pilot/scraper"
	"github.com/aluiziolira/go-price-pilot/storage"
)

var runFlags struct {
	id           string
	name         string
	category     string
	currency     string
	price        float64
	cost         float64
	quantity     float64
	marketplaces []string

	output   string
	format   string
	parallel int
	backend  string
	noStore  bool
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.id, "id", "", "Baseline id (default: generated)")
	f.StringVar(&runFlags.name, "name", "", "Product name as the merchant lists it")
	f.StringVar(&runFlags.category, "category", "", "Product category, selects the base elasticity")
	f.StringVar(&runFlags.currency, "currency", "USD", "ISO currency code")
	f.Float64Var(&runFlags.price, "price", 0, "Current price")
	f.Float64Var(&runFlags.cost, "cost", 0, "Cost per unit")
	f.Float64Var(&runFlags.quantity, "quantity", 0, "Units sold per period at the current price")
	f.StringSliceVar(&runFlags.marketplaces, "marketplace", nil, "Marketplace id to search (repeatable, default: by currency)")
	f.StringVar(&runFlags.output, "output", "", "Report file path")
	f.StringVar(&runFlags.format, "format", "", "Report format: csv, json, or dual")
	f.IntVar(&runFlags.parallel, "parallel", 0, "Concurrent marketplace fetches")
	f.StringVar(&runFlags.backend, "backend", "", "Fetch backend: colly or resty")
	f.BoolVar(&runFlags.noStore, "no-store", false, "Skip the database and only write the report")
	runCmd.MarkFlagRequired("name")
	runCmd.MarkFlagRequired("price")
	runCmd.MarkFlagRequired("cost")
	runCmd.MarkFlagRequired("quantity")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run --name <product> --price <p> --cost <c> --quantity <q> [--category <c>] [--currency <code>] [--marketplace <id>...]",
	Short: "Scrapes competitor prices for one product and writes a pricing report.",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRunFlags(cmd)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		ctx := cmd.Context()

		baseline := &models.Baseline{
			ID:           runFlags.id,
			ProductName:  runFlags.name,
			Category:     runFlags.category,
			Currency:     strings.ToUpper(runFlags.currency),
			CurrentPrice: runFlags.price,
			CostPerUnit:  runFlags.cost,
			Quantity:     runFlags.quantity,
			Marketplaces: runFlags.marketplaces,
		}
		if baseline.ID == "" {
			baseline.ID = fmt.Sprintf("cli-%d", time.Now().Unix())
		}

		metrics := scraper.NewMetrics()
		fetcher, err := scraper.NewFetcher(cfg, metrics)
		if err != nil {
			return fmt.Errorf("initialising fetcher: %w", err)
		}

		var store storage.Store
		if !runFlags.noStore {
			sqlStore, err := storage.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
			if err != nil {
				return err
			}
			defer sqlStore.Close()
			store = sqlStore
		}

		writer, err := pipeline.NewWriter(cfg.OutputFormat, cfg.OutputFile)
		if err != nil {
			return fmt.Errorf("creating writer: %w", err)
		}
		defer func() {
			if err := writer.Close(); err != nil {
				slog.Error("close writer", slog.Any("error", err))
			}
		}()

		stopMetrics := serveMetrics(cfg.MetricsAddr, metrics)
		defer stopMetrics()

		orch := pipeline.NewOrchestrator(cfg, fetcher, store, metrics)
		orch.SetWriter(writer)
		defer orch.Close()

		slog.Info("starting run",
			slog.String("baseline_id", baseline.ID),
			slog.String("product", baseline.ProductName),
			slog.String("backend", cfg.FetchBackend),
			slog.Int("workers", cfg.Parallelism),
		)

		result, err := orch.Run(ctx, baseline)
		if err != nil {
			return err
		}
		if err := writer.Validate(); err != nil {
			return fmt.Errorf("output validation failed: %w", err)
		}

		printSummary(cmd, result, cfg.OutputFile)
		return nil
	},
}

func applyRunFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("output") {
		cfg.OutputFile = runFlags.output
	}
	if cmd.Flags().Changed("format") {
		cfg.OutputFormat = strings.ToLower(runFlags.format)
	}
	if cmd.Flags().Changed("parallel") {
		cfg.Parallelism = runFlags.parallel
	}
	if cmd.Flags().Changed("backend") {
		cfg.FetchBackend = strings.ToLower(runFlags.backend)
	}
}

// serveMetrics exposes the registry on addr until the returned stop function is called.
func serveMetrics(addr string, metrics *scraper.Metrics) func() {
	if addr == "" || metrics == nil {
		return func() {}
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}

func printSummary(cmd *cobra.Command, result *models.RunResult, outputFile string) {
	out := cmd.OutOrStdout()
	separator := "--------------------------------------------------"
	fmt.Fprintln(out, "\n"+separator)
	fmt.Fprintln(out, "Pricing complete")
	fmt.Fprintf(out, "  Query:           %s\n", result.Query.SimplifiedName)

	marketplaceTable(out, result.Marketplaces)
	if result.Market.HasBounds() {
		fmt.Fprintf(out, "  Market range:    %.2f - %.2f (avg %.2f)\n", *result.Market.Lowest, *result.Market.Highest, *result.Market.Average)
	} else {
		fmt.Fprintln(out, "  Market range:    no competitor data")
	}

	if p := result.Pricing; p != nil {
		fmt.Fprintf(out, "  Optimal price:   %.2f\n", p.OptimalPrice)
		fmt.Fprintf(out, "  Suggested price: %.2f\n", p.SuggestedPrice)
		fmt.Fprintf(out, "  Elasticity:      %.4f (%d iterations, converged=%t)\n", p.CalibratedElasticity, p.IterationsUsed, p.Converged)
		fmt.Fprintf(out, "  Expected profit: %.2f (%+.2f%%)\n", p.ExpectedProfit, p.ProfitDeltaPercent)
		if p.Warning != "" {
			fmt.Fprintf(out, "  Warning:         %s\n", p.Warning)
		}
	}
	if len(result.ErrorsByType) > 0 {
		fmt.Fprintf(out, "  Error types:     %v\n", result.ErrorsByType)
	}
	fmt.Fprintf(out, "  Duration:        %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	fmt.Fprintf(out, "  Output file:     %s\n", outputFile)
	fmt.Fprintln(out, separator)
}

// marketplaceTable renders one row per marketplace outcome.
func marketplaceTable(out io.Writer, results []*models.MarketplaceResult) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Marketplace", "Status", "Prices", "Average", "Error"})
	for _, r := range results {
		if r == nil {
			continue
		}
		average := "-"
		if r.Average != nil {
			average = fmt.Sprintf("%.2f", *r.Average)
		}
		t.AppendRow(table.Row{r.Marketplace, string(r.Status), len(r.Prices), average, r.ErrorMessage})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
