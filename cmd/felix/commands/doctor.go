package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/spf13/cobra"
	"github.com/systmms/felix/internal/config"
	ferrors "github.com/systmms/felix/internal/errors"
	"github.com/systmms/felix/pkg/rotation"
)

// checkResult is one line of doctor output.
type checkResult struct {
	Name       string
	OK         bool
	Detail     string
	Suggestion string
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand(cfg *config.Config, deps *Deps) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, AWS access and plugin setup",
		Long: `Verify that felix can run a rotation.

This command checks:
- Configuration file validity, including Parameter Store settings and secret references
- AWS credentials (sts:GetCallerIdentity)
- IAM user discovery under the configured path
- That every discovered user maps to a configured plugin

No keys are created or changed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			cfg.Logger.Info("Checking felix configuration...")
			rt, err := setup(ctx, cfg, deps)
			if err != nil {
				cfg.Logger.Error("Configuration error: %v", err)
				return fmt.Errorf("failed to load config: %w", err)
			}

			var results []checkResult
			results = append(results, checkResult{Name: "configuration", OK: true, Detail: "loaded"})

			caller, err := rt.clients.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
			if err != nil {
				pe := ferrors.ProviderError{Provider: "aws", Op: "GetCallerIdentity", Err: err}
				results = append(results, checkResult{Name: "aws credentials", Detail: err.Error(), Suggestion: pe.Suggestion()})
			} else {
				results = append(results, checkResult{
					Name:   "aws credentials",
					OK:     true,
					Detail: fmt.Sprintf("%s (account %s)", aws.ToString(caller.Arn), aws.ToString(caller.Account)),
				})
			}

			path := rt.def.UserPath()
			identities, err := rt.store().ListIdentities(ctx, path)
			if err != nil {
				var pe ferrors.ProviderError
				_ = errors.As(err, &pe)
				results = append(results, checkResult{Name: "iam users", Detail: err.Error(), Suggestion: pe.Suggestion()})
			} else {
				results = append(results, checkResult{
					Name:   "iam users",
					OK:     true,
					Detail: fmt.Sprintf("%d users under %s", len(identities), path),
				})
				results = append(results, checkPlugins(rt, deps, identities)...)
			}

			displayResults(out, results, verbose)

			healthy := 0
			for _, r := range results {
				if r.OK {
					healthy++
				}
			}
			_, _ = fmt.Fprintf(out, "\nSummary: %d/%d checks passed\n", healthy, len(results))
			if healthy < len(results) {
				return fmt.Errorf("some checks failed")
			}

			cfg.Logger.Info("All checks passed")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show suggestions for failed checks")

	return cmd
}

// checkPlugins resolves the plugin of every service that discovered users
// map to. Resolution only validates settings; no downstream call is made.
func checkPlugins(rt *runtime, deps *Deps, identities []rotation.Identity) []checkResult {
	registry := rt.registry(deps)
	settings := rt.def.PluginSettings()
	depth := rt.def.EffectiveServiceDepth()

	users := map[string]int{}
	var invalid []string
	for _, identity := range identities {
		service, _, err := rotation.ParseLocator(identity.Path, identity.Name, depth)
		if err != nil {
			invalid = append(invalid, identity.Name)
			continue
		}
		users[service]++
	}

	services := make([]string, 0, len(users))
	for s := range users {
		services = append(services, s)
	}
	sort.Strings(services)

	var results []checkResult
	for _, service := range services {
		r := checkResult{Name: "plugin " + service}
		if _, err := registry.Resolve(service, settings); err != nil {
			r.Detail = err.Error()
			r.Suggestion = fmt.Sprintf("Add a plugins.%s section to felix.yaml or store its settings in Parameter Store", service)
		} else {
			r.OK = true
			r.Detail = fmt.Sprintf("%d users", users[service])
		}
		results = append(results, r)
	}

	if len(invalid) > 0 {
		results = append(results, checkResult{
			Name:       "user paths",
			Detail:     fmt.Sprintf("no service segment for: %v", invalid),
			Suggestion: fmt.Sprintf("Place users under /<prefix>/<service>/... (service at depth %d)", depth),
		})
	}
	return results
}

func displayResults(out io.Writer, results []checkResult, verbose bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "CHECK\tSTATUS\tDETAIL\n")
	_, _ = fmt.Fprintf(w, "-----\t------\t------\n")
	for _, r := range results {
		status := "ok"
		if !r.OK {
			status = "FAILED"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, status, r.Detail)
		if verbose && !r.OK && r.Suggestion != "" {
			_, _ = fmt.Fprintf(w, "\t\t💡 %s\n", r.Suggestion)
		}
	}
	_ = w.Flush()
}
