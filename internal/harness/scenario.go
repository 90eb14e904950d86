package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rootcause/internal/apm"
	"github.com/roach88/rootcause/internal/engine"
)

// Scenario defines one conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden
	// file and the stored diagnosis.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Trace is an inline invocation trace.
	Trace yaml.Node `yaml:"trace,omitempty"`

	// TraceFile is a trace YAML file, relative to the scenario file.
	// Exactly one of Trace and TraceFile must be set.
	TraceFile string `yaml:"trace_file,omitempty"`

	// Variables are the session variables of the diagnosis.
	Variables map[string]any `yaml:"variables,omitempty"`

	// MaxExecutions caps rule executions. 0 means unlimited.
	MaxExecutions int `yaml:"max_executions,omitempty"`

	// SessionID is the fixed session id. Defaults to
	// testutil.DefaultSessionID.
	SessionID string `yaml:"session_id,omitempty"`

	// Expect is the outcome the rules must reach.
	Expect Expect `yaml:"expect"`
}

// Expect lists what a scenario checks.
type Expect struct {
	// EndTags maps end tag types to their exact count.
	EndTags map[string]int `yaml:"end_tags,omitempty"`

	// ConditionFailures lists every rejected execution, in output order.
	ConditionFailures []ExpectedFailure `yaml:"condition_failures,omitempty"`

	// Problems lists the diagnosed problems in report order.
	Problems []ExpectedProblem `yaml:"problems,omitempty"`

	// Error is the runtime error code the diagnosis must abort with.
	Error string `yaml:"error,omitempty"`
}

// ExpectedFailure identifies one condition failure.
type ExpectedFailure struct {
	Rule      string `yaml:"rule"`
	Condition string `yaml:"condition"`
}

// ExpectedProblem is matched against apm.Problem. Unset fields are not
// compared.
type ExpectedProblem struct {
	Method    string            `yaml:"method"`
	Structure apm.StructureKind `yaml:"structure,omitempty"`
	Depth     *int              `yaml:"depth,omitempty"`
	Calls     *int              `yaml:"calls,omitempty"`
	Context   string            `yaml:"context,omitempty"`
}

func (e Expect) empty() bool {
	return e.EndTags == nil && len(e.ConditionFailures) == 0 && len(e.Problems) == 0 && e.Error == ""
}

var runtimeCodes = []string{
	string(engine.ErrCodeActionFailed),
	string(engine.ErrCodeConditionFailed),
	string(engine.ErrCodePanic),
	string(engine.ErrCodeMissingVariable),
	string(engine.ErrCodeBudgetExceeded),
	string(engine.ErrCodeInvalidOutput),
}

var structureKinds = []apm.StructureKind{
	apm.StructureSingle,
	apm.StructureIterative,
	apm.StructureRecursive,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScenario decodes a scenario. A relative trace_file is resolved
// against baseDir.
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if s.TraceFile != "" && !filepath.IsAbs(s.TraceFile) && baseDir != "" {
		s.TraceFile = filepath.Join(baseDir, s.TraceFile)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// LoadTrace returns the scenario's invocation trace.
func (s *Scenario) LoadTrace() (*apm.InvocationSequence, error) {
	if s.TraceFile != "" {
		return apm.LoadTrace(s.TraceFile)
	}
	data, err := yaml.Marshal(&s.Trace)
	if err != nil {
		return nil, fmt.Errorf("encode inline trace: %w", err)
	}
	return apm.ParseTrace(data)
}

func (s *Scenario) hasInlineTrace() bool {
	return s.Trace.Kind != 0
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.hasInlineTrace() && s.TraceFile != "":
		return fmt.Errorf("trace and trace_file are mutually exclusive")
	case !s.hasInlineTrace() && s.TraceFile == "":
		return fmt.Errorf("one of trace or trace_file is required")
	case s.hasInlineTrace() && s.Trace.Kind != yaml.MappingNode:
		return fmt.Errorf("trace must be a mapping")
	}
	if s.TraceFile != "" {
		if _, err := os.Stat(s.TraceFile); os.IsNotExist(err) {
			return fmt.Errorf("trace file not found: %s", s.TraceFile)
		}
	}

	if s.MaxExecutions < 0 {
		return fmt.Errorf("max_executions must be non-negative")
	}

	if s.Expect.empty() {
		return fmt.Errorf("expect is required and must state at least one expectation")
	}
	for tagType, n := range s.Expect.EndTags {
		if n < 0 {
			return fmt.Errorf("expect.end_tags[%s]: count must be non-negative", tagType)
		}
	}
	for i, f := range s.Expect.ConditionFailures {
		if f.Rule == "" || f.Condition == "" {
			return fmt.Errorf("expect.condition_failures[%d]: rule and condition are required", i)
		}
	}
	for i, p := range s.Expect.Problems {
		if p.Method == "" {
			return fmt.Errorf("expect.problems[%d]: method is required", i)
		}
		if p.Structure != "" && !slices.Contains(structureKinds, p.Structure) {
			return fmt.Errorf("expect.problems[%d]: unknown structure %q", i, p.Structure)
		}
	}
	if s.Expect.Error != "" && !slices.Contains(runtimeCodes, s.Expect.Error) {
		return fmt.Errorf("expect.error: unknown runtime error code %q", s.Expect.Error)
	}
	return nil
}
