package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/systmms/felix/internal/config"
	"github.com/systmms/felix/internal/report"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(cfg *config.Config) *cobra.Command {
	var (
		limit      int
		identity   string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded rotation runs",
		Long: `Show runs recorded in the local history directory, newest first.

Use --user to show the last known state of a single IAM user.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}
			store := report.NewFileHistory(historyDir(cfg.Definition))
			out := cmd.OutOrStdout()

			if identity != "" {
				status, err := store.GetStatus(identity)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(out, status)
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintf(w, "User:\t%s\n", status.Name)
				_, _ = fmt.Fprintf(w, "Service:\t%s\n", dash(status.Service))
				_, _ = fmt.Fprintf(w, "Status:\t%s\n", status.Status)
				_, _ = fmt.Fprintf(w, "Active key:\t%s\n", dash(status.ActiveKey))
				_, _ = fmt.Fprintf(w, "Last attempt:\t%s (run %s)\n", formatTime(status.LastAttempt), status.LastRunID)
				_, _ = fmt.Fprintf(w, "Last success:\t%s\n", formatTime(status.LastSuccess))
				if status.Error != "" {
					_, _ = fmt.Fprintf(w, "Error:\t%s\n", status.Error)
				}
				return w.Flush()
			}

			runs, err := store.ListRuns(limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(out, runs)
			}
			if len(runs) == 0 {
				_, _ = fmt.Fprintf(out, "No rotation runs recorded in %s\n", store.Dir())
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "RUN\tSTARTED\tPATH\tUSERS\tFAILED\tSTATUS\n")
			_, _ = fmt.Fprintf(w, "---\t-------\t----\t-----\t------\t------\n")
			for _, run := range runs {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
					run.RunID, formatTime(run.StartedAt), run.PathPrefix, run.Count, len(run.Failed()), run.Status)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show (0 = all)")
	cmd.Flags().StringVar(&identity, "user", "", "Show the last known state of one IAM user")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print as JSON")

	return cmd
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
