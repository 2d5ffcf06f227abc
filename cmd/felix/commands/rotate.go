package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/systmms/felix/internal/config"
	ferrors "github.com/systmms/felix/internal/errors"
	"github.com/systmms/felix/pkg/rotation"
)

// NewRotateCommand creates the rotate command.
func NewRotateCommand(cfg *config.Config, deps *Deps) *cobra.Command {
	var (
		path        string
		concurrency int
		dryRun      bool
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Rotate access keys for every managed IAM user",
		Long: `Rotate the access key of every IAM user under the configured path.

For each user felix:
- deletes keys deactivated by the previous run
- verifies the downstream service holds the current active key
- creates a new key and pushes it to the service
- deactivates the old key

The service is taken from the user's IAM path (/<prefix>/<service>/<group>/...)
and must have a configured plugin. Use --dry-run to see what would happen.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, cfg, deps)
			if err != nil {
				return err
			}

			if path == "" {
				path = rt.def.UserPath()
			}
			if !cmd.Flags().Changed("concurrency") {
				concurrency = rt.def.Concurrency
			}

			store := rt.store()
			registry := rt.registry(deps)
			settings := rt.def.PluginSettings()
			out := cmd.OutOrStdout()

			if dryRun {
				return plan(ctx, out, store, registry, settings, rt.def.EffectiveServiceDepth(), path)
			}

			sink, history, err := rt.sinks()
			if err != nil {
				return err
			}
			rt.logger.Debug("Publishing reports to: %v", sink.Names())

			engine := rotation.NewEngine(store, registry, settings, rt.logger,
				rotation.WithServiceDepth(rt.def.EffectiveServiceDepth()),
				rotation.WithClock(deps.now),
			)
			orchestrator := rotation.NewOrchestrator(store, engine, sink, rt.logger,
				rotation.WithMaxConcurrency(concurrency),
				rotation.WithOrchestratorClock(deps.now),
			)

			summary, runErr := orchestrator.Run(ctx, path)
			if summary != nil {
				if jsonOutput {
					if err := writeJSON(out, summary); err != nil {
						return err
					}
				} else {
					printSummary(out, summary)
				}
			}
			if runErr != nil {
				return runErr
			}

			if history != nil && rt.def.Retention() > 0 {
				removed, err := history.Cleanup(rt.def.Retention(), deps.now())
				if err != nil {
					rt.logger.Warn("Failed to clean up history: %v", err)
				} else if removed > 0 {
					rt.logger.Debug("Removed %d runs older than %d days", removed, rt.def.History.RetentionDays)
				}
			}

			if summary.Status == rotation.AggregateErrors {
				return ferrors.UserError{
					Message:    fmt.Sprintf("%d of %d rotations failed", len(summary.Failed()), summary.Count),
					Suggestion: "Check the report above. Users marked 'needs attention' have a new or still-active key that must be fixed by hand",
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "IAM path prefix of the users to rotate (default: aws.user_path)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Maximum users rotated at once (0 = all)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the planned rotations without changing anything")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run summary as JSON")

	return cmd
}

func printSummary(out io.Writer, summary *rotation.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "USER\tSERVICE\tSTATUS\tOLD KEY\tNEW KEY\tDETAIL\n")
	_, _ = fmt.Fprintf(w, "----\t-------\t------\t-------\t-------\t------\n")
	for _, r := range summary.Reports {
		detail := r.Error
		if r.NeedsAttention() {
			detail = "needs attention: " + detail
		}
		if detail == "" && r.PurgeError != "" {
			detail = "purge failed: " + r.PurgeError
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Name, dash(r.Service), r.Status, dash(r.OldKey), dash(r.NewKey), detail)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\nRun %s: %d users, %d failed [%s]\n",
		summary.RunID, summary.Count, len(summary.Failed()), summary.Status)
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
