package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/sethvargo/go-envconfig"
	"github.com/systmms/felix/internal/config"
	felixiam "github.com/systmms/felix/internal/iam"
	"github.com/systmms/felix/internal/logging"
	"github.com/systmms/felix/internal/plugins"
	"github.com/systmms/felix/internal/report"
)

// STSAPI defines the STS operations used by doctor.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Clients are the AWS API clients the commands talk to.
type Clients struct {
	IAM            felixiam.IAMAPI
	SSM            config.SSMAPI
	SecretsManager config.SecretsManagerAPI
	SNS            report.SNSAPI
	STS            STSAPI
}

// Deps are the process-level dependencies of the commands. Tests replace
// them with fakes.
type Deps struct {
	Lookuper   envconfig.Lookuper
	AWSConfig  func(ctx context.Context, def *config.Definition) (aws.Config, error)
	NewClients func(cfg aws.Config) Clients
	HTTPClient *http.Client
	Now        func() time.Time
}

// DefaultDeps wires the real environment and AWS SDK clients.
func DefaultDeps() *Deps {
	return &Deps{
		Lookuper: envconfig.OsLookuper(),
		AWSConfig: func(ctx context.Context, def *config.Definition) (aws.Config, error) {
			return def.LoadAWSConfig(ctx)
		},
		NewClients: func(cfg aws.Config) Clients {
			return Clients{
				IAM:            iam.NewFromConfig(cfg),
				SSM:            ssm.NewFromConfig(cfg),
				SecretsManager: secretsmanager.NewFromConfig(cfg),
				SNS:            sns.NewFromConfig(cfg),
				STS:            sts.NewFromConfig(cfg),
			}
		},
		Now: time.Now,
	}
}

func (d *Deps) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

// runtime is a fully prepared configuration plus the clients built from it.
type runtime struct {
	def     *config.Definition
	awsCfg  aws.Config
	clients Clients
	logger  *logging.Logger
}

// setup loads felix.yaml, applies the environment, builds the AWS clients
// and resolves Parameter Store settings and secret references.
func setup(ctx context.Context, cfg *config.Config, deps *Deps) (*runtime, error) {
	if err := cfg.Load(); err != nil {
		return nil, err
	}

	env, err := config.LoadEnv(ctx, deps.Lookuper)
	if err != nil {
		return nil, err
	}
	env.Apply(cfg.Definition)

	awsCfg, err := deps.AWSConfig(ctx, cfg.Definition)
	if err != nil {
		return nil, err
	}
	clients := deps.NewClients(awsCfg)

	refs := config.NewRefResolver(clients.SecretsManager, clients.SSM)
	if err := cfg.Prepare(ctx, env, clients.SSM, refs); err != nil {
		return nil, fmt.Errorf("failed to prepare configuration: %w", err)
	}

	return &runtime{
		def:     cfg.Definition,
		awsCfg:  awsCfg,
		clients: clients,
		logger:  cfg.Logger,
	}, nil
}

func (rt *runtime) store() *felixiam.Store {
	return felixiam.NewStore(rt.awsCfg,
		felixiam.WithIAMClient(rt.clients.IAM),
		felixiam.WithLogger(rt.logger.Named("iam")),
	)
}

func (rt *runtime) registry(deps *Deps) *plugins.Registry {
	return newRegistry(rt.def, rt.logger, deps)
}

func newRegistry(def *config.Definition, logger *logging.Logger, deps *Deps) *plugins.Registry {
	var opts []plugins.ClientOption
	if deps.HTTPClient != nil {
		opts = append(opts, plugins.WithHTTPClient(deps.HTTPClient))
	}
	opts = append(opts,
		plugins.WithTimeout(def.HTTPTimeout()),
		plugins.WithRetries(def.HTTP.MaxRetries, 0),
		plugins.WithClientLogger(logger.Named("http")),
	)
	return plugins.NewRegistry(plugins.NewClient(opts...))
}

// sinks builds every configured report sink. The history store is returned
// separately so the caller can apply retention.
func (rt *runtime) sinks() (*report.Multi, *report.FileHistory, error) {
	multi := report.NewMulti(rt.logger.Named("report"))

	if topic := rt.def.AWS.SNSTopic; topic != "" {
		multi.Add(report.NewSNSPublisher(rt.awsCfg, topic, report.WithSNSClient(rt.clients.SNS)))
	}

	notifiers, err := rt.def.Notifications.Sinks()
	if err != nil {
		return nil, nil, err
	}
	for _, s := range notifiers {
		multi.Add(s)
	}

	var history *report.FileHistory
	if !rt.def.History.Disabled {
		history = report.NewFileHistory(historyDir(rt.def))
		multi.Add(history)
	}

	if tf := rt.def.Metrics.Textfile; tf != "" {
		multi.Add(report.NewMetrics(tf))
	}

	return multi, history, nil
}

func historyDir(def *config.Definition) string {
	if def.History.Dir != "" {
		return def.History.Dir
	}
	return report.DefaultHistoryDir()
}
