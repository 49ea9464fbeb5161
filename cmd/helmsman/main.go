package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zen-systems/helmsman/pkg/adapter"
	"github.com/zen-systems/helmsman/pkg/baseline"
	"github.com/zen-systems/helmsman/pkg/config"
	"github.com/zen-systems/helmsman/pkg/coordinator"
	"github.com/zen-systems/helmsman/pkg/dq"
	"github.com/zen-systems/helmsman/pkg/engine"
	"github.com/zen-systems/helmsman/pkg/optimizer"
	"github.com/zen-systems/helmsman/pkg/outcome"
	"github.com/zen-systems/helmsman/pkg/storage"
	"gopkg.in/yaml.v3"
)

const appVersion = "0.4.0"

var (
	storeFlag   string
	journalFlag string
	verboseFlag bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "helmsman",
		Short: "Self-optimizing task routing with DQ scoring and outcome feedback",
		Long: `Helmsman routes queries to model tiers by decision-quality scoring,
	shapes multi-task sessions into execution topologies, and feeds outcome
	consensus back into versioned routing baselines.`,
	}

	rootCmd.PersistentFlags().StringVar(&storeFlag, "store", "", "path to the SQLite store (overrides config)")
	rootCmd.PersistentFlags().StringVar(&journalFlag, "journal", "", "path to the event journal (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "log coordinator activity to stderr")

	rootCmd.AddCommand(routeCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(outcomesCmd())
	rootCmd.AddCommand(optimizeCmd())
	rootCmd.AddCommand(baselineCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func routeCmd() *cobra.Command {
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "route [query]",
		Short: "Score a query and print the routing decision",
		Long: `Scores the query for complexity and decision quality against the
	current baseline and prints the selected tier, model, and thinking level.
	Recorded session history sharpens the score once enough outcomes
	accumulate.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			st, err := openStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			j := openJournal(cfg)
			if j != nil {
				defer j.Close()
			}

			coord, err := newCoordinator(st, j)
			if err != nil {
				return err
			}

			d, err := coord.Route(ctx, args[0])
			if err != nil {
				return err
			}

			if jsonFlag {
				return printJSON(d)
			}
			printDecision(os.Stdout, d)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print the decision as JSON")
	return cmd
}

func planCmd() *cobra.Command {
	var taskFile string
	var queryFlag string
	var budgetFlag int
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Shape a task list into a topology and agent allocation",
		Long: `Reads a YAML task file, routes the overall query, classifies the
	dependency graph into an execution topology, and divides the agent budget
	across subtasks by uncertainty. Nothing is executed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if taskFile == "" {
				return fmt.Errorf("task file is required")
			}
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			tf, err := loadTaskFile(taskFile)
			if err != nil {
				return err
			}
			query, budget, err := resolveSession(tf, queryFlag, budgetFlag)
			if err != nil {
				return err
			}

			st, err := openStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			j := openJournal(cfg)
			if j != nil {
				defer j.Close()
			}

			coord, err := newCoordinator(st, j)
			if err != nil {
				return err
			}

			plan, err := coord.Plan(ctx, query, tf.Tasks, budget)
			if err != nil {
				return err
			}

			if jsonFlag {
				return printJSON(plan)
			}
			return printPlan(os.Stdout, plan)
		},
	}

	cmd.Flags().StringVarP(&taskFile, "file", "f", "", "YAML task file (required)")
	cmd.Flags().StringVarP(&queryFlag, "query", "q", "", "overall goal (overrides the task file)")
	cmd.Flags().IntVar(&budgetFlag, "budget", 0, "total agent budget (0 uses the task file or a default)")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print the plan as JSON")
	return cmd
}

func runCmd() *cobra.Command {
	var taskFile string
	var queryFlag string
	var budgetFlag int
	var mockFlag bool
	var jsonFlag bool
	var maxCostUSD float64

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Plan and execute a session",
		Long: `Plans the task file and executes it layer by layer through the
	configured provider adapters, checking each artifact and recording the
	outcome for consensus analysis. With --mock, or when no provider key is
	configured, a deterministic offline adapter serves every tier.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if taskFile == "" {
				return fmt.Errorf("task file is required")
			}
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cmd.Flags().Changed("max-cost-usd") {
				cfg.MaxCostUSD = maxCostUSD
			}

			tf, err := loadTaskFile(taskFile)
			if err != nil {
				return err
			}
			query, budget, err := resolveSession(tf, queryFlag, budgetFlag)
			if err != nil {
				return err
			}

			st, err := openStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			j := openJournal(cfg)
			if j != nil {
				defer j.Close()
			}

			b, err := st.Baselines().GetCurrent(ctx)
			if err != nil {
				return err
			}
			registry, err := createAdapters(cfg, b, mockFlag)
			if err != nil {
				return fmt.Errorf("failed to create adapters: %w", err)
			}

			logger := newLogger()
			eng, err := engine.New(registry, st.Baselines(),
				engine.WithLogger(func(format string, args ...any) {
					logger.Info(fmt.Sprintf(format, args...))
				}),
				engine.WithGuardrails(engine.Guardrails{
					MaxCostUSD:  cfg.MaxCostUSD,
					MaxDuration: cfg.MaxDuration,
				}))
			if err != nil {
				return err
			}

			coord, err := newCoordinator(st, j, coordinator.WithExecutor(eng))
			if err != nil {
				return err
			}
			if err := coord.Start(ctx); err != nil {
				return err
			}

			plan, err := coord.Plan(ctx, query, tf.Tasks, budget)
			if err != nil {
				coord.Close()
				return err
			}
			fmt.Fprintf(os.Stderr, "Routing to tier %s (%s), %s topology, %d subtasks\n",
				plan.Decision.Tier, plan.Decision.Model, plan.Topology.Type, len(plan.Subtasks))

			res, execErr := coord.Execute(ctx, plan)
			if execErr == nil {
				if err := coord.Complete(res.Outcome); err != nil {
					fmt.Fprintf(os.Stderr, "consensus submit failed: %v\n", err)
				}
			}
			// Close drains the consensus worker so the score lands
			// before we read it back.
			coord.Close()
			if execErr != nil {
				return execErr
			}

			var cons *outcome.ConsensusResult
			if rec, err := st.Outcomes().Get(res.Outcome.SessionID); err == nil {
				cons = rec.Consensus
			}

			if jsonFlag {
				return printJSON(runReport{
					Outcome:   res.Outcome,
					Consensus: cons,
					Outputs:   res.Outputs,
					Final:     res.Final,
				})
			}
			printOutcome(os.Stderr, res.Outcome, cons)
			fmt.Println(res.Final)
			return nil
		},
	}

	cmd.Flags().StringVarP(&taskFile, "file", "f", "", "YAML task file (required)")
	cmd.Flags().StringVarP(&queryFlag, "query", "q", "", "overall goal (overrides the task file)")
	cmd.Flags().IntVar(&budgetFlag, "budget", 0, "total agent budget (0 uses the task file or a default)")
	cmd.Flags().BoolVar(&mockFlag, "mock", false, "use the offline mock adapter for every tier")
	cmd.Flags().Float64Var(&maxCostUSD, "max-cost-usd", 0, "per-session spend ceiling in USD (0 disables)")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print the full result as JSON")
	return cmd
}

func outcomesCmd() *cobra.Command {
	var limit int
	var sessionID string
	var events int
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "outcomes",
		Short: "Show recorded sessions and consensus scores",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if events > 0 {
				evs, err := outcome.ReadRecent(cfg.JournalPath, events)
				if err != nil {
					if errors.Is(err, os.ErrNotExist) {
						fmt.Println("No journal events recorded.")
						return nil
					}
					return fmt.Errorf("read journal: %w", err)
				}
				if jsonFlag {
					return printJSON(evs)
				}
				return printEvents(os.Stdout, evs)
			}

			st, err := openStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			if sessionID != "" {
				rec, err := st.Outcomes().Get(sessionID)
				if err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(rec)
				}
				printOutcome(os.Stdout, &rec.Outcome, rec.Consensus)
				return nil
			}

			recs := st.Outcomes().LastN(limit)
			if jsonFlag {
				return printJSON(recs)
			}
			if len(recs) == 0 {
				fmt.Println("No sessions recorded.")
				return nil
			}
			return printRecords(os.Stdout, recs)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of recent sessions to show")
	cmd.Flags().StringVar(&sessionID, "session", "", "show one session in detail")
	cmd.Flags().IntVar(&events, "events", 0, "tail the last N journal events instead")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print as JSON")
	return cmd
}

func optimizeCmd() *cobra.Command {
	var applyFlag bool
	var family string
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Evaluate baseline tuning against accumulated evidence",
		Long: `Analyzes the evidence window and reports what the optimizer would
	change. A dry run by default; --apply publishes validated proposals as a
	new baseline version and starts the monitoring window.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			st, err := openStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			j := openJournal(cfg)
			if j != nil {
				defer j.Close()
			}

			coord, err := newCoordinator(st, j)
			if err != nil {
				return err
			}

			if !applyFlag {
				rep, err := coord.DryRun(ctx, family)
				if err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(rep)
				}
				printReport(os.Stdout, rep)
				return nil
			}

			proposals, err := coord.Optimize(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(proposals)
			}
			if len(proposals) == 0 {
				fmt.Println("No proposals: the evidence gates were not met.")
				return nil
			}
			return printProposals(os.Stdout, proposals)
		},
	}

	cmd.Flags().BoolVar(&applyFlag, "apply", false, "apply validated proposals instead of reporting")
	cmd.Flags().StringVar(&family, "family", optimizer.FamilyTierRanges, "parameter family to evaluate")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print as JSON")
	return cmd
}

func baselineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Inspect and manage baseline versions",
	}
	cmd.AddCommand(baselineShowCmd())
	cmd.AddCommand(baselineHistoryCmd())
	cmd.AddCommand(baselineRollbackCmd())
	return cmd
}

func baselineShowCmd() *cobra.Command {
	var versionFlag string
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the active baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			st, err := openStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			var b *baseline.Baseline
			if versionFlag != "" {
				b, err = st.Baselines().Get(ctx, versionFlag)
			} else {
				b, err = st.Baselines().GetCurrent(ctx)
			}
			if err != nil {
				return err
			}

			if jsonFlag {
				return printJSON(b)
			}
			return printBaseline(os.Stdout, b)
		},
	}

	cmd.Flags().StringVar(&versionFlag, "version", "", "show a specific version instead of the active one")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print as JSON")
	return cmd
}

func baselineHistoryCmd() *cobra.Command {
	var limit int
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored baseline versions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			st, err := openStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			versions, err := st.Baselines().History(ctx, limit)
			if err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(versions)
			}
			cur, err := st.Baselines().GetCurrent(ctx)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tCREATED\tSOURCE\tNOTE")
			for _, b := range versions {
				source, note := "", ""
				if n := len(b.Lineage); n > 0 {
					source = b.Lineage[n-1].Source
					note = b.Lineage[n-1].Note
				}
				marker := ""
				if b.Version == cur.Version {
					marker = " *"
				}
				fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\n",
					b.Version, marker, b.CreatedAt.Format("2006-01-02 15:04"), source, note)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "number of versions to list (0 = all)")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print as JSON")
	return cmd
}

func baselineRollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback [version]",
		Short: "Repoint the active baseline to an earlier version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			st, err := openStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			j := openJournal(cfg)
			if j != nil {
				defer j.Close()
			}

			coord, err := newCoordinator(st, j)
			if err != nil {
				return err
			}
			if err := coord.RollbackBaseline(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Baseline rolled back to %s.\n", args[0])
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the helmsman version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("helmsman %s\n", appVersion)
		},
	}
}

// TaskFile is the YAML session description consumed by plan and run.
type TaskFile struct {
	Query  string             `yaml:"query"`
	Budget int                `yaml:"budget"`
	Tasks  []coordinator.Task `yaml:"tasks"`
}

// runReport is the JSON shape of a completed run.
type runReport struct {
	Outcome   *outcome.SessionOutcome  `json:"outcome"`
	Consensus *outcome.ConsensusResult `json:"consensus,omitempty"`
	Outputs   map[string]string        `json:"outputs,omitempty"`
	Final     string                   `json:"final"`
}

func loadTaskFile(path string) (*TaskFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tf TaskFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse task file %s: %w", path, err)
	}
	if len(tf.Tasks) == 0 {
		return nil, fmt.Errorf("task file %s defines no tasks", path)
	}
	return &tf, nil
}

// resolveSession merges flag overrides with the task file's query and
// budget fields.
func resolveSession(tf *TaskFile, queryFlag string, budgetFlag int) (string, int, error) {
	query := queryFlag
	if query == "" {
		query = tf.Query
	}
	if query == "" {
		return "", 0, fmt.Errorf("a query is required (--query or the task file's query field)")
	}
	budget := budgetFlag
	if budget == 0 {
		budget = tf.Budget
	}
	return query, budget, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if storeFlag != "" {
		cfg.StorePath = storeFlag
	}
	if journalFlag != "" {
		cfg.JournalPath = journalFlag
	}
	return cfg, nil
}

// openStorage opens the SQLite store and seeds the initial baseline on
// first run. HELMSMAN_BASELINE or ~/.helmsman/baseline.yaml may override
// the built-in default seed; model names in the seed resolve through the
// alias table so friendly names canonicalize before publish.
func openStorage(ctx context.Context, cfg *config.Config) (*storage.Storage, error) {
	st, err := storage.Open(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.StorePath, err)
	}

	seed, err := baseline.LoadWithFallback("")
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load baseline: %w", err)
	}
	aliases, err := baseline.LoadAliasesWithFallback("")
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load model aliases: %w", err)
	}
	for tier, model := range seed.Models {
		seed.Models[tier] = aliases.Resolve(model)
	}
	if err := st.Baselines().EnsureSeed(ctx, seed); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// openJournal opens the event journal, degrading to nil when unavailable.
func openJournal(cfg *config.Config) *outcome.Journal {
	j, err := outcome.OpenJournal(cfg.JournalPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "journal disabled: %v\n", err)
		return nil
	}
	return j
}

func newCoordinator(st *storage.Storage, j *outcome.Journal, opts ...coordinator.Option) (*coordinator.Coordinator, error) {
	base := []coordinator.Option{coordinator.WithLogger(newLogger())}
	if j != nil {
		base = append(base, coordinator.WithJournal(j))
	}
	return coordinator.New(st.Baselines(), st.Outcomes(), append(base, opts...)...)
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verboseFlag {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// createAdapters builds the adapter registry from configured provider
// keys. The mock adapter is added when forced or when no key is
// configured, claiming every tier model of the active baseline so
// sessions run offline.
func createAdapters(cfg *config.Config, b *baseline.Baseline, forceMock bool) (*adapter.Registry, error) {
	var adapters []adapter.Adapter

	if cfg.AnthropicAPIKey != "" {
		a, err := adapter.NewAnthropicAdapter(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create anthropic adapter: %w", err)
		}
		adapters = append(adapters, a)
	}

	if cfg.OpenAIAPIKey != "" {
		a, err := adapter.NewOpenAIAdapter(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai adapter: %w", err)
		}
		adapters = append(adapters, a)
	}

	if cfg.GoogleAPIKey != "" {
		a, err := adapter.NewGoogleAdapter(cfg.GoogleAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create google adapter: %w", err)
		}
		adapters = append(adapters, a)
	}

	if cfg.DeepSeekAPIKey != "" {
		a, err := adapter.NewDeepSeekAdapter(cfg.DeepSeekAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create deepseek adapter: %w", err)
		}
		adapters = append(adapters, a)
	}

	if forceMock || len(adapters) == 0 {
		models := make([]string, 0, len(b.Models))
		for _, m := range b.Models {
			models = append(models, m)
		}
		adapters = append(adapters, adapter.NewMockAdapter().ServeModels(models...))
	}

	return adapter.NewRegistry(adapters...), nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printDecision(w io.Writer, d *dq.Decision) {
	fmt.Fprintf(w, "Tier:       %s\n", d.Tier)
	fmt.Fprintf(w, "Model:      %s\n", d.Model)
	fmt.Fprintf(w, "Thinking:   %s\n", d.Thinking)
	if d.Complexity != nil {
		fmt.Fprintf(w, "Complexity: %.2f (~%d tokens)\n", d.Complexity.Score, d.Complexity.Tokens)
	}
	fmt.Fprintf(w, "DQ score:   %.2f (validity %.2f, specificity %.2f, correctness %.2f)\n",
		d.Score.Overall, d.Score.Validity, d.Score.Specificity, d.Score.Correctness)
	fmt.Fprintf(w, "Est. cost:  $%.4f\n", d.CostEstimate)
	fmt.Fprintf(w, "Baseline:   %s\n", d.BaselineVersion)
	if len(d.Reasons) > 0 {
		fmt.Fprintln(w, "Reasons:")
		for _, r := range d.Reasons {
			fmt.Fprintf(w, "  - %s\n", r)
		}
	}
}

func printPlan(w io.Writer, p *coordinator.ExecutionPlan) error {
	fmt.Fprintf(w, "Query:    %s\n", p.Query)
	fmt.Fprintf(w, "Tier:     %s (%s)\n", p.Decision.Tier, p.Decision.Model)
	fmt.Fprintf(w, "Topology: %s (%s)\n", p.Topology.Type, p.Topology.Reason)
	if p.Topology.Supervisor != "" {
		fmt.Fprintf(w, "Supervisor tier: %s\n", p.Topology.Supervisor)
	}
	for i, layer := range p.Topology.Layers {
		fmt.Fprintf(w, "Layer %d:  %s\n", i+1, strings.Join(layer, ", "))
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SUBTASK\tTIER\tAGENTS\tTIMEOUT\tENTROPY")
	for _, a := range p.Allocations {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%.2f\n", a.SubtaskID, a.Tier, a.Agents, a.Timeout, a.Entropy)
	}
	return tw.Flush()
}

func printOutcome(w io.Writer, o *outcome.SessionOutcome, c *outcome.ConsensusResult) {
	succeeded := 0
	for _, s := range o.Subtasks {
		if s.Success {
			succeeded++
		}
	}

	status := "succeeded"
	if !o.Succeeded() {
		status = "failed"
	}
	if o.Partial {
		status += " (partial)"
	}
	fmt.Fprintf(w, "Session %s %s: %d/%d subtasks, $%.4f, %s\n",
		o.SessionID, status, succeeded, len(o.Subtasks), o.CostUSD(),
		o.Duration().Round(time.Millisecond))

	for _, s := range o.Subtasks {
		mark := "ok"
		if !s.Success {
			mark = "FAIL"
		}
		line := fmt.Sprintf("  %-4s %s  tier %s  $%.4f  %dms", mark, s.SubtaskID, s.Tier, s.CostUSD, s.DurationMillis)
		if s.Reviewed {
			line += fmt.Sprintf("  review %.2f", s.ReviewScore)
		}
		if s.Error != "" {
			line += "  " + s.Error
		}
		fmt.Fprintln(w, line)
	}

	if c != nil {
		fmt.Fprintf(w, "Consensus %.2f (confidence %.2f)\n", c.Overall, c.Confidence)
	}
}

func printRecords(w io.Writer, recs []outcome.Record) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTARTED\tTIER\tTOPOLOGY\tSUBTASKS\tCOST\tCONSENSUS")
	for _, r := range recs {
		o := r.Outcome
		succeeded := 0
		for _, s := range o.Subtasks {
			if s.Success {
				succeeded++
			}
		}
		consensusCol := "-"
		if r.Consensus != nil {
			consensusCol = fmt.Sprintf("%.2f", r.Consensus.Overall)
		}
		session := o.SessionID
		if len(session) > 8 {
			session = session[:8]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t$%.4f\t%s\n",
			session, o.StartedAt.Format("2006-01-02 15:04"), o.Tier, o.Topology,
			succeeded, len(o.Subtasks), o.CostUSD(), consensusCol)
	}
	return tw.Flush()
}

func printEvents(w io.Writer, events []outcome.Event) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tEVENT\tSESSION\tDETAIL")
	for _, e := range events {
		detail := ""
		if e.Detail != nil {
			if data, err := json.Marshal(e.Detail); err == nil {
				detail = string(data)
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Time.Format(time.RFC3339), e.Type, e.Session, detail)
	}
	return tw.Flush()
}

func printReport(w io.Writer, r *optimizer.Report) {
	fmt.Fprintf(w, "Family:      %s\n", r.Family)
	fmt.Fprintf(w, "Confidence:  %.2f\n", r.Confidence)
	fmt.Fprintf(w, "Improvement: %+.1f%%\n", r.Improvement*100)
	for _, d := range r.Deltas {
		fmt.Fprintf(w, "  %s: %.3f -> %.3f\n", d.Parameter, d.From, d.To)
	}
	if r.WouldApply {
		fmt.Fprintln(w, "Would apply: yes")
	} else if r.BlockedBy != "" {
		fmt.Fprintf(w, "Blocked by:  %s\n", r.BlockedBy)
	} else {
		fmt.Fprintln(w, "Would apply: no")
	}
}

func printProposals(w io.Writer, proposals []*optimizer.Proposal) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFAMILY\tSTATUS\tCONFIDENCE\tIMPROVEMENT\tNOTE")
	for _, p := range proposals {
		note := p.BlockReason
		if p.Status == optimizer.StatusApplied && p.AppliedVersion != "" {
			note = "published " + p.AppliedVersion
		}
		if p.Status == optimizer.StatusRolledBack {
			note = p.RollbackCause
		}
		id := p.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%+.1f%%\t%s\n",
			id, p.Family, p.Status, p.Confidence, p.Improvement*100, note)
	}
	return tw.Flush()
}

func printBaseline(w io.Writer, b *baseline.Baseline) error {
	fmt.Fprintf(w, "Version:  %s\n", b.Version)
	if !b.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created:  %s\n", b.CreatedAt.Format(time.RFC3339))
	}
	if b.Checksum != "" {
		fmt.Fprintf(w, "Checksum: %.12s\n", b.Checksum)
	}
	fmt.Fprintf(w, "Weights:  validity %.2f, specificity %.2f, correctness %.2f\n",
		b.Weights.Validity, b.Weights.Specificity, b.Weights.Correctness)
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIER\tRANGE\tOPTIMAL\tMODEL\tIN $/MTOK\tOUT $/MTOK")
	for _, tier := range baseline.Tiers() {
		tc, ok := b.Tiers[tier]
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%s\t0.00-%.2f\t%.2f-%.2f\t%s\t%.2f\t%.2f\n",
			tier, tc.RangeMax, tc.Optimal.Lo, tc.Optimal.Hi, b.Models[tier],
			tc.Pricing.InputPerMTok, tc.Pricing.OutputPerMTok)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprint(w, "Thinking:")
	for _, tt := range baseline.ThinkingTiers() {
		if band, ok := b.Thinking[tt]; ok {
			fmt.Fprintf(w, "  %s %.2f-%.2f", tt, band.Lo, band.Hi)
		}
	}
	fmt.Fprintln(w)
	return nil
}
