package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var batchFile string

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch --file <competitors.txt>",
	Short: "Refresh claims for a list of competitors from a file",
	Long: `Batch reads competitor ids from a text file (one per line, # comments
and blank lines skipped) and runs a refresh pass over all of them.

Example:
  competia batch --file competitors.txt --alerts alerts.jsonl`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "", "file with competitor ids, one per line (required)")
	batchCmd.Flags().StringVar(&evidenceDir, "evidence-dir", "evidence", "directory of per-competitor evidence JSON drops")
	batchCmd.Flags().StringVar(&ledgerPath, "ledger-path", "", "claim ledger directory (default: $HOME/.competia/ledger)")
	batchCmd.Flags().StringVar(&alertsPath, "alerts", "", "append change events to this JSONL file (default: log only)")
	batchCmd.Flags().StringVar(&summaryPath, "summary", "", "write the run summary JSON to this path")
	batchCmd.Flags().StringSliceVar(&schemaNames, "schemas", []string{"pricing", "funding"}, "claim schemas to refresh")

	_ = batchCmd.MarkFlagRequired("file")
}

func runBatch(cmd *cobra.Command, args []string) error {
	competitorIDs, err := readCompetitorFile(batchFile)
	if err != nil {
		return err
	}
	if len(competitorIDs) == 0 {
		return fmt.Errorf("no competitor ids found in %s", batchFile)
	}

	cfg := loadConfig()
	schemas, err := resolveSchemas(schemaNames)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Refreshing %d competitors...\n", len(competitorIDs))
	start := time.Now()

	summary, err := runPipeline(cmd.Context(), cfg, competitorIDs, schemas)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Done in %s: %d created, %d superseded, %d reviews, %d events, %d failures\n",
		time.Since(start).Round(time.Second),
		summary.Created, summary.Superseded, summary.Reviews, summary.Events, summary.Failures)

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

// readCompetitorFile reads competitor ids from a file, one per line.
// Blank lines and lines starting with # are skipped; duplicates are dropped
// keeping first occurrence order.
func readCompetitorFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open competitor file: %w", err)
	}
	defer f.Close()

	seen := make(map[string]bool)
	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if seen[line] {
			continue
		}
		seen[line] = true
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read competitor file: %w", err)
	}
	return ids, nil
}
