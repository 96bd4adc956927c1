package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/raaihank/scan-redactor/internal/batch"
	"github.com/spf13/cobra"
)

func newBatchCommand(a *app) *cobra.Command {
	var (
		policy    policyFlags
		output    string
		batchSize int
		workers   int
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "batch <input.csv|jsonl|parquet>",
		Short: "Redact the text column of a dataset",
		Long: `Batch reads records with "id" and "text" fields from CSV, JSON lines
or Parquet, redacts each text and writes id, redacted_text, redactions and
categories to the output file. The output format follows its extension.
When the audit store is enabled every record becomes one stored job.

	Examples:
	  scan-redactor batch notes.csv
	  scan-redactor batch --output clean.parquet --workers 8 notes.jsonl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]

			p, err := policy.resolve(cmd, a.cfg.Redaction)
			if err != nil {
				return err
			}

			bcfg := batch.ConfigFrom(a.cfg.Batch)
			if cmd.Flags().Changed("batch-size") {
				if batchSize <= 0 {
					return fmt.Errorf("--batch-size must be positive, got %d", batchSize)
				}
				bcfg.BatchSize = batchSize
			}
			if cmd.Flags().Changed("workers") {
				if workers <= 0 {
					return fmt.Errorf("--workers must be positive, got %d", workers)
				}
				bcfg.WorkerCount = workers
			}
			if output == "" {
				ext := filepath.Ext(input)
				output = strings.TrimSuffix(input, ext) + ".redacted" + ext
			}

			svc, err := a.initializeServices(serviceSet{store: !dryRun})
			if err != nil {
				return err
			}
			defer svc.cleanup()

			var sink batch.AuditSink
			if svc.store != nil {
				sink = svc.store
			}

			pipe := batch.NewPipeline(svc.engine, sink, bcfg, a.log)
			result, err := pipe.ProcessFile(cmd.Context(), input, output, p)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return writeJSON(out, result)
			}
			fmt.Fprintf(out, "Processed %d records from %s\n", result.TotalRecords, input)
			fmt.Fprintf(out, "  ok: %d  failed: %d  invalid: %d\n", result.ProcessedOK, result.ProcessedFailed, result.Invalid)
			fmt.Fprintf(out, "  redactions: %d\n", result.Redactions)
			fmt.Fprintf(out, "  duration: %s\n", result.Duration.Round(time.Millisecond))
			fmt.Fprintf(out, "  output: %s\n", output)
			for _, e := range result.Errors {
				fmt.Fprintf(out, "  error: %s\n", e)
			}
			return nil
		},
	}

	policy.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: <input>.redacted.<ext>)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "records per batch (default from config)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "concurrent redaction workers (default from config)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "don't write jobs to the audit store")
	return cmd
}
