package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/rootcause/internal/apm"
	"github.com/roach88/rootcause/internal/engine"
	"github.com/roach88/rootcause/internal/ir"
	"github.com/roach88/rootcause/internal/rules"
	"github.com/roach88/rootcause/internal/store"
)

// DiagnoseOptions holds flags for the diagnose command.
type DiagnoseOptions struct {
	*RootOptions
	Input    string
	Vars     []string
	Database string

	// DiagnosisIDs overrides the diagnosis id source (for testing).
	// If nil, ids are UUIDv7.
	DiagnosisIDs engine.SessionIDGenerator
}

// DiagnoseResult is the output of the diagnose command.
type DiagnoseResult struct {
	DiagnosisID       string                           `json:"diagnosis_id,omitempty"`
	SessionID         string                           `json:"session_id"`
	TraceID           string                           `json:"trace_id"`
	Rules             string                           `json:"rules"`
	Problems          []apm.Problem                    `json:"problems"`
	EndTags           map[string]int                   `json:"end_tags"`
	ConditionFailures map[string][]ir.ConditionFailure `json:"condition_failures,omitempty"`
	Stored            bool                             `json:"stored"`
}

// NewDiagnoseCommand creates the diagnose command.
func NewDiagnoseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiagnoseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diagnose [rules-dir]",
		Short: "Diagnose one invocation trace",
		Long: `Run the rule set over a recorded invocation trace and report the
problems found.

The rules directory defaults to the "rules" entry of the config file,
then to the built-in APM rule set. Variables given with --var override
those of the config file. With --db (or "database" in the config file)
the full diagnosis is stored and can be inspected with "rootcause trace".

Examples:
  rootcause diagnose --input trace.yaml --var baseline=500ms
  rootcause diagnose ./rules --input trace.yaml --var significance=0.1 --db ./rootcause.db
  rootcause diagnose --input trace.yaml --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rulesDir := ""
			if len(args) == 1 {
				rulesDir = args[0]
			}
			return runDiagnose(opts, rulesDir, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "invocation trace YAML file (required)")
	_ = cmd.MarkFlagRequired("input")
	cmd.Flags().StringArrayVar(&opts.Vars, "var", nil, "session variable as key=value (repeatable)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database to store the diagnosis in")

	return cmd
}

func runDiagnose(opts *DiagnoseOptions, rulesDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := commandContext(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeConfig, "load config", err)
	}
	vars, err := ParseVars(opts.Vars)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeInput, "parse variables", err)
	}
	if rulesDir == "" {
		rulesDir = cfg.Rules
	}
	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.Database
	}

	loaded, loadErrs := LoadRules(rulesDir)
	if len(loadErrs) > 0 {
		return failLoad(formatter, loadErrs)
	}
	slog.Debug("rules loaded", "source", loaded.Source, "rules", len(loaded.Descriptors))

	trace, err := apm.LoadTrace(opts.Input)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeInput, "load trace", err)
	}

	eng, err := engine.NewDefault[*apm.InvocationSequence](loaded.Descriptors, cfg.EngineOptions()...)
	if err != nil {
		code := ErrCodeGeneric
		if des := rules.DefinitionErrors(err); len(des) > 0 {
			code = des[0].Code
		}
		return fail(formatter, ExitCommandError, code, "invalid rule set", err)
	}
	defer func() {
		if cerr := eng.Close(ctx); cerr != nil {
			slog.Warn("close engine", "error", cerr)
		}
	}()

	sessionVars := cfg.MergeVariables(vars)
	res, err := eng.Diagnose(ctx, trace, sessionVars)
	if err != nil {
		var details any
		if code := engine.RuntimeCode(err); code != "" {
			details = map[string]string{"runtime_code": string(code)}
		}
		_ = formatter.Error(ErrCodeDiagnose, err.Error(), details)
		return WrapExitError(ExitFailure, ErrCodeDiagnose+": diagnosis aborted", err)
	}

	out := DiagnoseResult{
		SessionID:         res.SessionID,
		TraceID:           trace.ID,
		Rules:             loaded.Source,
		Problems:          apm.Problems(res),
		EndTags:           endTagCounts(res),
		ConditionFailures: res.ConditionFailures,
	}
	if out.Problems == nil {
		out.Problems = []apm.Problem{}
	}

	if dbPath != "" {
		id := newDiagnosisID(opts.DiagnosisIDs)
		if err := storeDiagnosis(ctx, dbPath, id, sessionVars, res); err != nil {
			return fail(formatter, ExitCommandError, ErrCodeStore, "store diagnosis", err)
		}
		out.DiagnosisID = id
		out.Stored = true
	}

	return formatter.Success(out, func(w io.Writer) { printDiagnosis(w, out) })
}

// ParseVars parses key=value pairs. Values stay strings; rules convert
// them (durations, numbers) when they read them.
func ParseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid variable %q: want key=value", p)
		}
		vars[k] = v
	}
	return vars, nil
}

func newDiagnosisID(gen engine.SessionIDGenerator) string {
	if gen != nil {
		return gen.Generate()
	}
	return uuid.Must(uuid.NewV7()).String()
}

func storeDiagnosis(ctx context.Context, path, id string, vars map[string]any, res *apm.Result) error {
	d, err := store.NewDiagnosis(id, vars, res)
	if err != nil {
		return err
	}

	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			slog.Error("error closing database", "error", cerr)
		}
	}()

	inserted, err := st.WriteDiagnosis(ctx, d)
	if err != nil {
		return err
	}
	if !inserted {
		return errors.New("diagnosis id " + id + " already stored")
	}
	slog.Info("diagnosis stored",
		"diagnosis_id", id,
		"session_id", d.SessionID,
		"tags", len(d.Tags),
		"outputs", len(d.Outputs),
	)
	return nil
}

func endTagCounts(res *apm.Result) map[string]int {
	counts := make(map[string]int, len(res.EndTags))
	for tagType, tags := range res.EndTags {
		counts[tagType] = len(tags)
	}
	return counts
}

// failLoad reports the first load error; the others are logged.
func failLoad(formatter *OutputFormatter, errs []error) error {
	for _, e := range errs[1:] {
		slog.Error("rule load error", "error", e)
	}
	var le *LoadError
	if errors.As(errs[0], &le) {
		return fail(formatter, ExitCommandError, le.Code, le.Message, nil)
	}
	return fail(formatter, ExitCommandError, ErrCodeGeneric, "load rules", errs[0])
}

func printDiagnosis(w io.Writer, out DiagnoseResult) {
	fmt.Fprintf(w, "Trace %s (session %s, rules %s)\n", out.TraceID, out.SessionID, out.Rules)
	if out.Stored {
		fmt.Fprintf(w, "Stored as diagnosis %s\n", out.DiagnosisID)
	}
	fmt.Fprintln(w)

	if len(out.Problems) == 0 {
		fmt.Fprintln(w, "No problems found.")
	} else {
		fmt.Fprintf(w, "%d problem(s):\n", len(out.Problems))
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  METHOD\tSTRUCTURE\tDEPTH\tCALLS\tEXCLUSIVE\tSHARE\tCONTEXT")
		for _, p := range out.Problems {
			fmt.Fprintf(tw, "  %s\t%s\t%d\t%d\t%s\t%.1f%%\t%s (%s)\n",
				p.Method, p.Structure, p.Depth, p.Calls,
				p.ExclusiveTime.Round(time.Microsecond), p.Share*100,
				p.ContextMethod, p.ContextID)
		}
		_ = tw.Flush()
	}

	if len(out.ConditionFailures) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Rejected rules:")
		for _, rule := range slices.Sorted(maps.Keys(out.ConditionFailures)) {
			for _, cf := range out.ConditionFailures[rule] {
				if cf.Hint != "" {
					fmt.Fprintf(w, "  %s: %s (%s)\n", rule, cf.Condition, cf.Hint)
				} else {
					fmt.Fprintf(w, "  %s: %s\n", rule, cf.Condition)
				}
			}
		}
	}

	if len(out.EndTags) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "End tags:")
		for _, tagType := range slices.Sorted(maps.Keys(out.EndTags)) {
			fmt.Fprintf(w, "  %s: %d\n", tagType, out.EndTags[tagType])
		}
	}
}
