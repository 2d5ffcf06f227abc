package commands

import (
	"github.com/spf13/cobra"
	"github.com/systmms/felix/internal/config"
	"github.com/systmms/felix/internal/logging"
)

// NewRootCommand builds the felix command tree. cfg is filled in from the
// global flags before any subcommand runs.
func NewRootCommand(cfg *config.Config, deps *Deps, version string) *cobra.Command {
	var (
		configFile string
		noColor    bool
		debug      bool
	)

	rootCmd := &cobra.Command{
		Use:   "felix",
		Short: "Rotate AWS IAM access keys and push them to the services that use them",
		Long: `felix rotates the access keys of IAM users and propagates each new key to
the downstream service that consumes it (GitLab, Travis CI, Jenkins,
SumoLogic, commercetools). The old key is only deactivated after the new
one has been delivered, and is deleted on the next run.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.Path = configFile
			cfg.Logger = logging.New(debug, noColor)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path (default: felix.yaml if present)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		NewRotateCommand(cfg, deps),
		NewPluginsCommand(cfg, deps),
		NewHistoryCommand(cfg),
		NewDoctorCommand(cfg, deps),
		NewCompletionCommand(),
	)

	return rootCmd
}
