package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/AllenThomasDev/causal-webapp/adapters/excel"
	"github.com/AllenThomasDev/causal-webapp/adapters/llm"
	"github.com/AllenThomasDev/causal-webapp/adapters/postgres"
	"github.com/AllenThomasDev/causal-webapp/app"
	"github.com/AllenThomasDev/causal-webapp/domain/causal"
	"github.com/AllenThomasDev/causal-webapp/domain/dataset"
	"github.com/AllenThomasDev/causal-webapp/internal"
	"github.com/AllenThomasDev/causal-webapp/internal/config"
	"github.com/AllenThomasDev/causal-webapp/internal/errors"
	"github.com/AllenThomasDev/causal-webapp/internal/metrics"
	"github.com/AllenThomasDev/causal-webapp/ports"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every command
type globalOptions struct {
	envFile      string
	logLevel     string
	metadataFile string
	metadataText string
	showMetrics  bool

	registry *prometheus.Registry
}

// roleOptions let a user pick roles instead of asking the collaborator
type roleOptions struct {
	treatment   string
	outcome     string
	confounders []string
}

func (r roleOptions) set() bool { return r.treatment != "" || r.outcome != "" }

func (r roleOptions) proposal() causal.RoleProposal {
	return causal.RoleProposal{Outcome: r.outcome, Treatment: r.treatment, Confounders: r.confounders}
}

func main() {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "causal-cli",
		Short:         "Estimate causal effects from tabular data with LLM-assisted modelling",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(opts.envFile); err != nil && !os.IsNotExist(err) {
				return errors.ConfigInvalid(fmt.Sprintf("failed to load %s: %v", opts.envFile, err))
			}
			opts.registry = prometheus.NewRegistry()
			return metrics.Register(opts.registry)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if !opts.showMetrics {
				return nil
			}
			return printMetrics(cmd, opts.registry)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "Environment file loaded before reading configuration")
	flags.StringVar(&opts.logLevel, "log-level", "", "Override LOG_LEVEL (error|warn|info|debug|trace)")
	flags.StringVar(&opts.metadataFile, "metadata", "", "File holding the free-text dataset description")
	flags.StringVar(&opts.metadataText, "metadata-text", "", "Free-text dataset description")
	flags.BoolVar(&opts.showMetrics, "metrics", false, "Print a metrics snapshot after the command")

	rootCmd.AddCommand(
		newProfileCmd(opts),
		newQuestionsCmd(opts),
		newRolesCmd(opts),
		newEstimateCmd(opts),
		newRefuteCmd(opts),
		newRunCmd(opts),
		newRunsCmd(opts),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(errors.ExitCode(err))
	}
}

// environment is everything a command needs, built from configuration
type environment struct {
	cfg    *config.Config
	logger *internal.Logger
	reader ports.DatasetReader
	svc    *app.CausalService
	db     *sqlx.DB
}

func (e *environment) Close() {
	e.svc.Close()
	if e.db != nil {
		e.db.Close()
	}
}

// setup loads configuration and wires the service. The API key is only
// required when requireAI is set.
func setup(ctx context.Context, opts *globalOptions, requireAI bool) (*environment, error) {
	cfg, err := config.Load(requireAI)
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logger := internal.NewLogger(internal.ParseLogLevel(level))

	env := &environment{cfg: cfg, logger: logger, reader: excel.NewDataReader(logger)}
	deps := app.Dependencies{Logger: logger}

	if cfg.AI.OpenAIKey != "" {
		client, err := llm.NewClient(llm.ConfigFromAI(cfg.AI))
		if err != nil {
			return nil, errors.ExternalServiceError("openai", err)
		}
		deps.LLM = client
	}

	if cfg.Database.Enabled() {
		db, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		env.db = db
		deps.Runs = postgres.NewRunRepository(db)
		deps.Usage = postgres.NewLLMUsageRepository(db)
		logger.Debug("[CLI] Run ledger enabled")
	}

	env.svc = app.NewCausalService(ctx, cfg, deps)
	return env, nil
}

// load reads the data file and metadata and publishes them as the active snapshot
func (e *environment) load(opts *globalOptions, path string) (*app.Analysis, error) {
	raw, err := readMetadata(opts)
	if err != nil {
		return nil, err
	}
	var ds *dataset.Dataset
	if path != "" {
		ds, err = e.reader.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}
	return e.svc.Load(ds, raw), nil
}

func readMetadata(opts *globalOptions) (string, error) {
	if opts.metadataText != "" {
		return opts.metadataText, nil
	}
	if opts.metadataFile == "" {
		return "", nil
	}
	content, err := os.ReadFile(opts.metadataFile)
	if err != nil {
		return "", errors.InvalidInput(fmt.Sprintf("failed to read metadata file: %v", err))
	}
	return string(content), nil
}

// withRoles applies user-chosen roles when given
func withRoles(a *app.Analysis, roles roleOptions) (*app.Analysis, error) {
	if !roles.set() {
		return a, nil
	}
	return a.WithRoles(roles.proposal())
}

func addRoleFlags(cmd *cobra.Command, roles *roleOptions) {
	cmd.Flags().StringVar(&roles.treatment, "treatment", "", "Treatment column (skips role inference)")
	cmd.Flags().StringVar(&roles.outcome, "outcome", "", "Outcome column (skips role inference)")
	cmd.Flags().StringSliceVar(&roles.confounders, "confounders", nil, "Confounder columns, comma separated")
}

func printMetrics(cmd *cobra.Command, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\n=== METRICS ===")
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "causal_") {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(out, mf); err != nil {
			return err
		}
	}
	return nil
}
