package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/systmms/felix/internal/config"
)

var pluginDescriptions = map[string]string{
	"gitlab":        "GitLab project CI/CD variables",
	"sumologic":     "SumoLogic hosted collector AWS source",
	"travis":        "Travis CI repository environment variables",
	"jenkins":       "Jenkins AWS credentials",
	"commercetools": "commercetools subscription destination",
}

// NewPluginsCommand creates the plugins command.
func NewPluginsCommand(cfg *config.Config, deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List downstream integrations and their configuration state",
		Long: `Display the built-in integrations and whether felix.yaml configures them.

Settings kept in Parameter Store are not read by this command; run
'felix doctor' to check the merged configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}
			def := cfg.Definition
			registry := newRegistry(def, cfg.Logger, deps)
			out := cmd.OutOrStdout()

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "PLUGIN\tSTATUS\tSETTINGS\tDESCRIPTION\n")
			_, _ = fmt.Fprintf(w, "------\t------\t--------\t-----------\n")
			for _, name := range registry.Names() {
				status := "not configured"
				keys := "-"
				if s, ok := def.Plugins[name]; ok {
					status = "configured"
					if len(s) > 0 {
						keys = fmt.Sprint(s.Keys())
					}
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, status, keys, pluginDescriptions[name])
			}
			_ = w.Flush()

			for name := range def.Plugins {
				if !registry.Has(name) {
					cfg.Logger.Warn("Configured plugin %s is not a known integration", name)
				}
			}
			if def.AWS.ParameterPath != "" {
				_, _ = fmt.Fprintf(out, "\nAdditional settings are loaded from Parameter Store under %s\n", def.AWS.ParameterPath)
			}
			return nil
		},
	}

	return cmd
}
