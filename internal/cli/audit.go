package cli

import (
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/raaihank/scan-redactor/internal/store"
	"github.com/spf13/cobra"
)

var errStoreDisabled = errors.New("audit store is disabled; set store.enabled in the configuration")

func newAuditCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the stored audit trail",
	}
	cmd.AddCommand(newAuditStatsCommand(a), newAuditShowCommand(a))
	return cmd
}

func (a *app) openStore() (*store.Store, error) {
	if !a.cfg.Store.Enabled {
		return nil, errStoreDisabled
	}
	return store.NewStore(store.ConfigFrom(a.cfg.Store), a.log)
}

func newAuditStatsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show totals per category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return writeJSON(out, stats)
			}
			fmt.Fprintf(out, "Jobs:       %d (%d clean)\n", stats.TotalJobs, stats.CleanJobs)
			fmt.Fprintf(out, "Redactions: %d\n", stats.TotalRedactions)

			names := make([]string, 0, len(stats.ByCategory))
			for name := range stats.ByCategory {
				names = append(names, name)
			}
			sort.Strings(names)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, name := range names {
				fmt.Fprintf(tw, "  %s\t%d\n", name, stats.ByCategory[name])
			}
			return tw.Flush()
		},
	}
}

func newAuditShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job and its audit entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			job, err := st.GetJob(ctx, args[0])
			if err != nil {
				return err
			}
			rows, err := st.ListAudit(ctx, job.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return writeJSON(out, map[string]any{"job": job, "audit": rows})
			}
			fmt.Fprintf(out, "Job %s\n", job.ID)
			fmt.Fprintf(out, "  source:     %s\n", job.Source)
			fmt.Fprintf(out, "  policy:     %s [%s] ocr_tolerance=%t\n", job.Mode, job.Categories, job.OCRTolerance)
			fmt.Fprintf(out, "  created:    %s\n", job.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "  redactions: %d\n", job.RedactionCount)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "  #\tCATEGORY\tPOSITION\tLENGTH")
			for _, r := range rows {
				fmt.Fprintf(tw, "  %d\t%s\t%d\t%d\n", r.Seq, r.Category, r.Position, r.Length)
			}
			return tw.Flush()
		},
	}
}
