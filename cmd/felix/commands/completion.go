package commands

import (
	"github.com/spf13/cobra"
)

// NewCompletionCommand creates the completion command for generating shell completions.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for felix.

To load completions:

Bash:
  $ source <(felix completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ felix completion bash > /etc/bash_completion.d/felix
  # macOS:
  $ felix completion bash > $(brew --prefix)/etc/bash_completion.d/felix

Zsh:
  $ felix completion zsh > "${fpath[1]}/_felix"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ felix completion fish | source

  # To load completions for each session, execute once:
  $ felix completion fish > ~/.config/fish/completions/felix.fish

PowerShell:
  PS> felix completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}

	return cmd
}
