package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/competia/internal/extract"
	"github.com/ppiankov/competia/internal/ledger"
	"github.com/ppiankov/competia/internal/model"
	"github.com/ppiankov/competia/internal/pipeline"
	"github.com/ppiankov/competia/internal/router"
	"github.com/ppiankov/competia/internal/worker"
)

var (
	evidenceDir string
	ledgerPath  string
	alertsPath  string
	summaryPath string
	schemaNames []string
	jobTimeout  time.Duration
)

// refreshCmd represents the refresh command
var refreshCmd = &cobra.Command{
	Use:   "refresh <competitor-id> [competitor-id...]",
	Short: "Refresh claims for one or more competitors",
	Long: `Refresh runs one evidence-to-claim pass per competitor:
- Load evidence dropped by the ingestion collaborator
- Extract schema-shaped candidates through the AI provider router
- Score and triangulate candidates across sources
- Commit the outcome to the versioned claim ledger
- Emit severity-classified change events to the alert sink

Example:
  competia refresh acme-corp
  competia refresh acme-corp globex --schemas pricing,funding --alerts alerts.jsonl`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)

	refreshCmd.Flags().StringVar(&evidenceDir, "evidence-dir", "evidence", "directory of per-competitor evidence JSON drops")
	refreshCmd.Flags().StringVar(&ledgerPath, "ledger-path", "", "claim ledger directory (default: $HOME/.competia/ledger)")
	refreshCmd.Flags().StringVar(&alertsPath, "alerts", "", "append change events to this JSONL file (default: log only)")
	refreshCmd.Flags().StringVar(&summaryPath, "summary", "", "write the run summary JSON to this path")
	refreshCmd.Flags().StringSliceVar(&schemaNames, "schemas", []string{"pricing", "funding"}, "claim schemas to refresh")
	refreshCmd.Flags().DurationVar(&jobTimeout, "job-timeout", 0, "per-competitor wall-clock timeout (0 = config default)")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if jobTimeout > 0 {
		cfg.Concurrency.JobTimeout = jobTimeout
	}

	schemas, err := resolveSchemas(schemaNames)
	if err != nil {
		return err
	}

	summary, err := runPipeline(cmd.Context(), cfg, args, schemas)
	if err != nil {
		return err
	}

	if summaryPath != "" {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
		if err := os.WriteFile(summaryPath, data, 0o644); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	if summary.Failures > 0 {
		return fmt.Errorf("%d of %d competitor refreshes failed", summary.Failures, summary.Competitors)
	}
	return nil
}

// runPipeline wires the core together and executes one refresh run.
func runPipeline(ctx context.Context, cfg *model.Config, competitorIDs []string, schemas []extract.ClaimSchema) (*worker.RunSummary, error) {
	logger := slog.Default()

	r, err := router.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("configure providers: %w", err)
	}
	if len(r.Providers()) == 0 {
		return nil, fmt.Errorf("no AI providers enabled; enable one in the config or set an API key")
	}

	led, err := ledger.Open(cfg.Ledger, logger)
	if err != nil {
		return nil, err
	}
	defer func() { _ = led.Close() }()

	agent := extract.NewAgent(r, cfg.Extraction, logger)
	source := pipeline.NewFileEvidenceSource(evidenceDir)

	var dispatcher pipeline.Dispatcher
	if alertsPath != "" {
		dispatcher = pipeline.NewFileDispatcher(alertsPath)
	}

	// Unconfigured keys fall back to one call per second; the extraction
	// budget comes from the config.
	limiter := worker.NewLimiter(1, 1)
	limiter.SetRate(pipeline.ExtractionRateKey, cfg.Concurrency.ExtractionsPerSecond, cfg.Concurrency.Burst)
	pipe := pipeline.New(agent, led, source, dispatcher, limiter, logger)

	runner := worker.NewRunner(pipe,
		cfg.Concurrency.Workers,
		cfg.Concurrency.StaggerDelay,
		cfg.Concurrency.JobTimeout,
		logger)
	return runner.Run(ctx, competitorIDs, schemas), nil
}

// loadConfig merges viper state over the defaults and fills in secrets and
// paths from the environment.
func loadConfig() *model.Config {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid configuration, using defaults: %v\n", err)
		cfg = model.DefaultConfig()
	}

	if cfg.Providers.OpenAI.APIKey == "" {
		cfg.Providers.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Providers.Anthropic.APIKey == "" {
		cfg.Providers.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	// A provider configured as enabled but without credentials is treated
	// as absent rather than failing every call.
	if cfg.Providers.OpenAI.Enabled && cfg.Providers.OpenAI.APIKey == "" {
		cfg.Providers.OpenAI.Enabled = false
	}
	if cfg.Providers.Anthropic.Enabled && cfg.Providers.Anthropic.APIKey == "" {
		cfg.Providers.Anthropic.Enabled = false
	}

	if ledgerPath != "" {
		cfg.Ledger.Path = ledgerPath
	}
	if cfg.Ledger.Path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Ledger.Path = home + "/.competia/ledger"
		} else {
			cfg.Ledger.Path = ".competia-ledger"
		}
	}

	return cfg
}

// resolveSchemas maps schema names to their stock definitions.
func resolveSchemas(names []string) ([]extract.ClaimSchema, error) {
	stock := map[string]extract.ClaimSchema{
		"pricing": extract.PricingSchema(),
		"funding": extract.FundingSchema(),
	}
	var schemas []extract.ClaimSchema
	for _, name := range names {
		schema, ok := stock[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown schema %q (available: pricing, funding)", name)
		}
		schemas = append(schemas, schema)
	}
	if len(schemas) == 0 {
		return nil, fmt.Errorf("no schemas selected")
	}
	return schemas, nil
}
