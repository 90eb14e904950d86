package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rootcause/internal/ir"
	"github.com/roach88/rootcause/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Rule     string // optional - filter outputs to one rule
	Values   bool   // include tag values
}

// TraceResult holds the provenance of one stored diagnosis.
type TraceResult struct {
	DiagnosisID   string            `json:"diagnosis_id"`
	SessionID     string            `json:"session_id"`
	InputDigest   string            `json:"input_digest"`
	Variables     map[string]string `json:"variables"`
	EngineVersion string            `json:"engine_version"`
	Outputs       []ir.RuleOutput   `json:"outputs"`
	Findings      []Finding         `json:"findings"`
	Stats         TraceStats        `json:"stats"`
}

// Finding is one end tag with its lineage back to the root tag.
type Finding struct {
	Tag     TagView   `json:"tag"`
	Lineage []TagView `json:"lineage"`
}

// TagView is a tag as printed by the trace command.
type TagView struct {
	ID    ir.TagID        `json:"id"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// TraceStats holds summary counts for a diagnosis.
type TraceStats struct {
	Tags              int `json:"tags"`
	Executions        int `json:"executions"`
	ConditionFailures int `json:"condition_failures"`
	EndTags           int `json:"end_tags"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [diagnosis-id]",
		Short: "Show the provenance of a stored diagnosis",
		Long: `Show how a stored diagnosis reached its findings.

The output lists every rule output in execution order, including the
rules whose conditions rejected their input, and each finding with the
chain of tags it was derived from. Without an id, stored diagnoses are
listed.

Examples:
  rootcause trace --db ./rootcause.db
  rootcause trace 0190c1d2-... --db ./rootcause.db
  rootcause trace 0190c1d2-... --db ./rootcause.db --rule root-causes --values`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runList(opts, cmd)
			}
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Rule, "rule", "", "only show outputs of this rule")
	cmd.Flags().BoolVar(&opts.Values, "values", false, "include tag values")

	return cmd
}

func openExisting(formatter *OutputFormatter, path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fail(formatter, ExitCommandError, ErrCodeNotFound, "database not found: "+path, nil)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fail(formatter, ExitCommandError, ErrCodeStore, "open database", err)
	}
	return st, nil
}

func runList(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	st, err := openExisting(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := st.ListDiagnoses(commandContext(cmd))
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "list diagnoses", err)
	}

	return formatter.Success(list, func(w io.Writer) {
		if len(list) == 0 {
			fmt.Fprintln(w, "No diagnoses stored.")
			return
		}
		for _, s := range list {
			fmt.Fprintf(w, "%s  session=%s  tags=%d  findings=%d\n", s.ID, s.SessionID, s.Tags, s.EndTags)
		}
	})
}

func runTrace(opts *TraceOptions, id string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	st, err := openExisting(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	d, err := st.ReadDiagnosis(commandContext(cmd), id)
	if errors.Is(err, store.ErrNotFound) {
		return fail(formatter, ExitCommandError, ErrCodeNotFound, "diagnosis not found: "+id, nil)
	}
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "read diagnosis", err)
	}

	result, err := BuildTrace(d, opts.Rule, opts.Values)
	if err != nil {
		return fail(formatter, ExitCommandError, ErrCodeStore, "rebuild diagnosis", err)
	}
	return formatter.Success(result, func(w io.Writer) { printTrace(w, result) })
}

// BuildTrace assembles the trace view of a stored diagnosis. A non-empty
// rule keeps only that rule's outputs; findings are always complete.
func BuildTrace(d *store.Diagnosis, rule string, values bool) (TraceResult, error) {
	result := TraceResult{
		DiagnosisID:   d.ID,
		SessionID:     d.SessionID,
		InputDigest:   d.InputDigest,
		Variables:     d.Variables,
		EngineVersion: d.EngineVersion,
		Outputs:       []ir.RuleOutput{},
		Findings:      []Finding{},
		Stats: TraceStats{
			Tags:    len(d.Tags),
			EndTags: len(d.EndTags),
		},
	}

	for _, out := range d.Outputs {
		result.Stats.Executions++
		result.Stats.ConditionFailures += len(out.ConditionFailures)
		if rule != "" && out.Rule != rule {
			continue
		}
		result.Outputs = append(result.Outputs, out)
	}

	arena, err := d.Arena()
	if err != nil {
		return TraceResult{}, err
	}
	for _, id := range d.EndTags {
		lineage := arena.Lineage(id)
		if len(lineage) == 0 {
			return TraceResult{}, fmt.Errorf("end tag %d: %w", id, ir.ErrUnknownTag)
		}
		f := Finding{Tag: tagView(lineage[0], values)}
		for _, t := range lineage[1:] {
			f.Lineage = append(f.Lineage, tagView(t, values))
		}
		result.Findings = append(result.Findings, f)
	}
	return result, nil
}

func tagView(t ir.Tag, values bool) TagView {
	v := TagView{ID: t.ID, Type: t.Type}
	if values {
		if data, err := json.Marshal(t.Value); err == nil {
			v.Value = data
		}
	}
	return v
}

func printTrace(w io.Writer, r TraceResult) {
	fmt.Fprintf(w, "Diagnosis: %s\n", r.DiagnosisID)
	fmt.Fprintf(w, "Session:   %s\n", r.SessionID)
	fmt.Fprintf(w, "Digest:    %s\n", r.InputDigest)
	if len(r.Variables) > 0 {
		keys := make([]string, 0, len(r.Variables))
		for k := range r.Variables {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = k + "=" + r.Variables[k]
		}
		fmt.Fprintf(w, "Variables: %s\n", strings.Join(pairs, " "))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Rule outputs ===")
	if len(r.Outputs) == 0 {
		fmt.Fprintln(w, "  (no outputs)")
	}
	for _, out := range r.Outputs {
		fmt.Fprintf(w, "  [%d] %s %v", out.Seq, out.Rule, out.InputTags)
		switch {
		case out.Failed():
			names := make([]string, len(out.ConditionFailures))
			for i, cf := range out.ConditionFailures {
				names[i] = cf.Condition
			}
			fmt.Fprintf(w, " rejected by %s\n", strings.Join(names, ", "))
			for _, cf := range out.ConditionFailures {
				if cf.Hint != "" {
					fmt.Fprintf(w, "        %s: %s\n", cf.Condition, cf.Hint)
				}
			}
		case len(out.Tags) == 0:
			fmt.Fprintf(w, " -> nothing\n")
		default:
			fmt.Fprintf(w, " -> %s %v\n", out.TagType, out.Tags)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Findings ===")
	if len(r.Findings) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, f := range r.Findings {
		fmt.Fprintf(w, "  #%d %s", f.Tag.ID, f.Tag.Type)
		if f.Tag.Value != nil {
			fmt.Fprintf(w, " %s", f.Tag.Value)
		}
		fmt.Fprintln(w)
		for _, t := range f.Lineage {
			fmt.Fprintf(w, "    <- #%d %s\n", t.ID, t.Type)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Stats: %d tags, %d executions, %d condition failures, %d findings\n",
		r.Stats.Tags, r.Stats.Executions, r.Stats.ConditionFailures, r.Stats.EndTags)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
