package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/rootcause/internal/compiler"
	"github.com/roach88/rootcause/internal/rules"
)

// Issue levels.
const (
	LevelError   = "error"
	LevelWarning = compiler.LevelWarning
	LevelInfo    = compiler.LevelInfo
)

// Issue is one finding of the validate command.
type Issue struct {
	Level   string `json:"level"`
	Code    string `json:"code,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool    `json:"valid"`
	Rules  int     `json:"rules"`
	Issues []Issue `json:"issues,omitempty"`
}

// errorCount counts the error-level issues.
func (r ValidationResult) errorCount() int {
	n := 0
	for _, is := range r.Issues {
		if is.Level == LevelError {
			n++
		}
	}
	return n
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <rules-dir>",
		Short: "Validate a rule directory without running it",
		Long: `Compile the CUE rules of a directory and check the rule set.

Reports compile errors, rule definition errors (E2xx), rules that can
never fire (E3xx) and rule loops. Loops without a guard condition are
warnings; they do not fail validation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, rulesDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	result, err := ValidateRulesDir(rulesDir)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return fail(formatter, ExitCommandError, loadErr.Code, loadErr.Message, nil)
		}
		return fail(formatter, ExitCommandError, ErrCodeGeneric, "validate", err)
	}

	slog.Debug("rules validated",
		"dir", rulesDir,
		"rules", result.Rules,
		"issues", len(result.Issues),
	)

	if !result.Valid {
		n := result.errorCount()
		first := firstError(result.Issues)
		_ = formatter.Failure(first.Code, first.Message, result, func(w io.Writer) {
			fmt.Fprintln(w, "✗ Validation failed")
			fmt.Fprintln(w)
			printIssues(w, result.Issues)
		})
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", n))
	}

	return formatter.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %d rule(s) valid\n", result.Rules)
		if len(result.Issues) > 0 {
			fmt.Fprintln(w)
			printIssues(w, result.Issues)
		}
	})
}

// ValidateRulesDir loads, builds and lints the rules of a directory.
// The returned error is a *LoadError when the directory itself could not
// be loaded; everything else is reported as issues.
func ValidateRulesDir(rulesDir string) (ValidationResult, error) {
	loaded, loadErrs := LoadRules(rulesDir)
	if loaded == nil {
		if len(loadErrs) == 0 {
			return ValidationResult{}, fmt.Errorf("no rules loaded from %s", rulesDir)
		}
		return ValidationResult{}, loadErrs[0]
	}

	var issues []Issue
	for _, err := range loadErrs {
		issue := Issue{Level: LevelError, Code: ErrCodeGeneric, Message: err.Error()}
		var le *LoadError
		if errors.As(err, &le) {
			issue.Code = le.Code
			issue.Message = le.Message
			issue.Line = le.Line()
		}
		issues = append(issues, issue)
	}

	rulesCount := len(loaded.Descriptors)
	if len(loadErrs) == 0 {
		issues = append(issues, checkRuleSet(loaded.Descriptors)...)
	}

	result := ValidationResult{Rules: rulesCount, Issues: issues}
	result.Valid = result.errorCount() == 0
	return result, nil
}

// checkRuleSet runs definition checks, then, if the set builds, lint and
// loop analysis.
func checkRuleSet(descs []*rules.Descriptor) []Issue {
	var issues []Issue

	defs, err := rules.Build(descs)
	if err != nil {
		for _, de := range rules.DefinitionErrors(err) {
			issues = append(issues, Issue{
				Level:   LevelError,
				Code:    de.Code,
				Rule:    de.Rule,
				Field:   de.Field,
				Message: de.Message,
			})
		}
		return issues
	}

	for _, ve := range compiler.Validate(defs) {
		level := LevelError
		if ve.Code == compiler.ErrUnproducedOptional {
			level = LevelWarning
		}
		issues = append(issues, Issue{
			Level:   level,
			Code:    ve.Code,
			Rule:    ve.Rule,
			Field:   ve.Field,
			Message: ve.Message,
		})
	}

	for _, rw := range compiler.AnalyzeRecursion(defs) {
		issues = append(issues, Issue{
			Level:   rw.Level,
			Message: rw.Message,
		})
	}
	return issues
}

func firstError(issues []Issue) Issue {
	for _, is := range issues {
		if is.Level == LevelError {
			return is
		}
	}
	return Issue{Code: ErrCodeGeneric, Message: "validation failed"}
}

func printIssues(w io.Writer, issues []Issue) {
	for _, is := range issues {
		if is.Line > 0 {
			fmt.Fprintf(w, "line %d\n", is.Line)
		}
		label := is.Level
		if is.Code != "" {
			label = fmt.Sprintf("%s %s", is.Level, is.Code)
		}
		msg := is.Message
		if is.Rule != "" {
			msg = fmt.Sprintf("rule %q: %s: %s", is.Rule, is.Field, is.Message)
		}
		fmt.Fprintf(w, "  %s: %s\n", label, msg)
	}
}
