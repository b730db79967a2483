package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/AllenThomasDev/causal-webapp/adapters/excel"
	"github.com/AllenThomasDev/causal-webapp/adapters/postgres"
	"github.com/AllenThomasDev/causal-webapp/domain/causal"
	"github.com/AllenThomasDev/causal-webapp/internal"
	"github.com/AllenThomasDev/causal-webapp/internal/config"
	"github.com/AllenThomasDev/causal-webapp/internal/errors"
	"github.com/AllenThomasDev/causal-webapp/internal/profiling"

	"github.com/spf13/cobra"
)

func newProfileCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profile [data-file]",
		Short: "Read a data file and describe its columns",
		Long: `Read a CSV, TSV, TXT or XLSX file and print one line per column.

Example: causal-cli profile lalonde.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := internal.NewLogger(internal.ParseLogLevel(levelOr(opts.logLevel)))
			ds, err := excel.NewDataReader(logger).ReadFile(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d rows, %d columns\n", ds.Name, ds.Rows(), len(ds.ColumnNames()))
			for _, p := range profiling.NewDataProfiler().ProfileDataset(ds) {
				fmt.Fprintf(out, "  %s\n", p.Describe())
			}
			return nil
		},
	}
}

func newQuestionsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "questions",
		Short: "Suggest causal research questions from the dataset description",
		Long: `Suggest three causal research questions from the free-text description.

Example: causal-cli questions --metadata lalonde.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer env.Close()

			a, err := env.load(opts, "")
			if err != nil {
				return err
			}
			result, err := a.Questions(cmd.Context())
			if err != nil {
				return err
			}
			for i, q := range result.Questions {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, q)
			}
			return nil
		},
	}
}

func newRolesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "roles [data-file]",
		Short: "Infer outcome, treatment and confounders for a data file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer env.Close()

			a, err := env.load(opts, args[0])
			if err != nil {
				return err
			}
			roles, err := a.Roles(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Outcome:     %s\n", roles.Outcome)
			fmt.Fprintf(out, "Treatment:   %s\n", roles.Treatment)
			fmt.Fprintf(out, "Confounders: %s\n", strings.Join(roles.ConfounderNames(), ", "))
			return nil
		},
	}
}

func newEstimateCmd(opts *globalOptions) *cobra.Command {
	var roles roleOptions
	var distributions []string
	var dotFile string

	cmd := &cobra.Command{
		Use:   "estimate [data-file]",
		Short: "Estimate the average treatment effect by propensity score weighting",
		Long: `Identify the backdoor adjustment set and estimate the effect of the
treatment on the outcome. Roles are inferred unless --treatment and --outcome are given.

Example: causal-cli estimate lalonde.csv --treatment treat --outcome re78 --confounders age,educ,re74 --distribution re74:continuous`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd.Context(), opts, !roles.set())
			if err != nil {
				return err
			}
			defer env.Close()

			a, err := env.load(opts, args[0])
			if err != nil {
				return err
			}
			if a, err = withRoles(a, roles); err != nil {
				return err
			}

			ctx := cmd.Context()
			est, err := a.Estimate(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, est.Identification.String())
			fmt.Fprintln(out, est.Summary())
			for _, w := range est.Diagnostics.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}

			if dotFile != "" {
				g, err := a.Graph(ctx)
				if err != nil {
					return err
				}
				if err := os.WriteFile(dotFile, []byte(g.DOT()), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", dotFile, err)
				}
			}

			for _, arg := range distributions {
				variable, kind, found := strings.Cut(arg, ":")
				if !found {
					kind = string(causal.VarContinuous)
				}
				varType, err := causal.ParseVarType(kind)
				if err != nil {
					return errors.InvalidInput(err.Error())
				}
				dist, err := a.Distribution(ctx, variable, varType)
				if err != nil {
					return err
				}
				encoded, err := json.MarshalIndent(dist, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\n%s\n", encoded)
			}
			return nil
		},
	}

	addRoleFlags(cmd, &roles)
	cmd.Flags().StringSliceVar(&distributions, "distribution", nil, "Confounder balance to print, as name[:continuous|discrete]")
	cmd.Flags().StringVar(&dotFile, "dot", "", "Write the causal graph in Graphviz format to this file")
	return cmd
}

func newRefuteCmd(opts *globalOptions) *cobra.Command {
	var roles roleOptions
	var methods []string

	cmd := &cobra.Command{
		Use:   "refute [data-file]",
		Short: "Check the robustness of the estimate",
		Long: `Run refutation methods against the estimate: random_common_cause,
placebo_treatment_refuter and data_subset_refuter. REFUTE_SEED, REFUTE_SIMULATIONS,
REFUTE_SUBSET_FRACTION and REFUTE_CONCURRENCY tune the simulations.

Example: causal-cli refute lalonde.csv --treatment treat --outcome re78 --confounders age,educ --method placebo_treatment_refuter`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd.Context(), opts, !roles.set())
			if err != nil {
				return err
			}
			defer env.Close()

			a, err := env.load(opts, args[0])
			if err != nil {
				return err
			}
			if a, err = withRoles(a, roles); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, m := range methods {
				result, err := a.Refute(cmd.Context(), m)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, result.Summary())
			}
			return nil
		},
	}

	addRoleFlags(cmd, &roles)
	cmd.Flags().StringSliceVar(&methods, "method", []string{string(causal.RefuteRandomCommonCause)}, "Refutation methods to run")
	return cmd
}

func newRunCmd(opts *globalOptions) *cobra.Command {
	var roles roleOptions
	var methods []string
	var htmlFile string
	var recordFile string

	cmd := &cobra.Command{
		Use:   "run [data-file]",
		Short: "Run the whole pipeline and print a report",
		Long: `Normalize the description, infer roles, suggest questions, estimate the
effect, refute it and explain the result.

Example: causal-cli run lalonde.csv --metadata lalonde.txt --html report.html`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refuters := make([]causal.RefutationMethod, 0, len(methods))
			for _, name := range methods {
				m, ok := causal.ParseRefutationMethod(name)
				if !ok {
					return errors.InvalidInput(fmt.Sprintf("unknown refutation method %q", name))
				}
				refuters = append(refuters, m)
			}

			env, err := setup(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer env.Close()

			a, err := env.load(opts, args[0])
			if err != nil {
				return err
			}
			if a, err = withRoles(a, roles); err != nil {
				return err
			}

			report, err := a.Run(cmd.Context(), refuters...)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), report.Text())

			if htmlFile != "" {
				if err := os.WriteFile(htmlFile, []byte(report.Explanation.HTML), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", htmlFile, err)
				}
			}
			if recordFile != "" {
				encoded, err := json.MarshalIndent(report.Record(), "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(recordFile, encoded, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", recordFile, err)
				}
			}
			return nil
		},
	}

	all := make([]string, 0, 3)
	for _, m := range causal.RefutationMethods() {
		all = append(all, string(m))
	}
	addRoleFlags(cmd, &roles)
	cmd.Flags().StringSliceVar(&methods, "refuters", all, "Refutation methods to run")
	cmd.Flags().StringVar(&htmlFile, "html", "", "Write the explanation as HTML to this file")
	cmd.Flags().StringVar(&recordFile, "record", "", "Write the run record as JSON, importable with the migrate command")
	return cmd
}

func newRunsCmd(opts *globalOptions) *cobra.Command {
	var snapshotID string
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs from the ledger database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(false)
			if err != nil {
				return err
			}
			if !cfg.Database.Enabled() {
				return errors.ConfigInvalid("DATABASE_URL is required to list runs")
			}
			db, err := postgres.Open(cmd.Context(), cfg.Database.URL)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := postgres.NewRunRepository(db).ListRuns(cmd.Context(), snapshotID, limit)
			if err != nil {
				return errors.DatabaseError("failed to list runs", err)
			}

			out := cmd.OutOrStdout()
			for _, r := range runs {
				fmt.Fprintf(out, "%s  %s  %s -> %s  %.4f  (%d ms)\n",
					r.CreatedAt.Format("2006-01-02 15:04:05"), r.DatasetName, r.Treatment, r.Outcome, r.Estimate, r.ElapsedMillis)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&snapshotID, "snapshot", "", "Only list runs of this snapshot")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	return cmd
}

func levelOr(level string) string {
	if level != "" {
		return level
	}
	return os.Getenv("LOG_LEVEL")
}
