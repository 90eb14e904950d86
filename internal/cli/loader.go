package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/rootcause/internal/apm"
	"github.com/roach88/rootcause/internal/compiler"
	"github.com/roach88/rootcause/internal/rules"
)

// LoadResult contains the rules loaded from a directory.
type LoadResult struct {
	Descriptors []*rules.Descriptor
	FileCount   int
	Source      string // directory, or "built-in"
}

// LoadError represents an error that occurred while loading rule files.
type LoadError struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Pos     token.Pos `json:"-"`
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Line returns the source line of the error, or 0.
func (e *LoadError) Line() int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// LoadRules compiles every CUE file of dir against the APM catalog.
//
// An empty dir selects the built-in rule set. Compile errors are all
// returned, one *LoadError per failing rule; the descriptors of the rules
// that did compile are returned alongside them.
func LoadRules(dir string) (*LoadResult, []error) {
	if dir == "" {
		descs, err := apm.CompileSource()
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: err.Error()}}
		}
		return &LoadResult{Descriptors: descs, Source: "built-in"}, nil
	}

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("rules directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing rules directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{FileCount: len(cueFiles), Source: dir}
	descs, err := compiler.CompileRules(value, apm.Catalog())
	result.Descriptors = descs

	var errs []error
	for _, e := range splitErrors(err) {
		errs = append(errs, convertCompileError(e))
	}
	return result, errs
}

// FindCUEFiles returns the .cue files directly in dir. Subdirectories
// are separate CUE packages and are not loaded.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

func splitErrors(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

// convertCompileError converts a compiler error to a LoadError with
// position info. The message keeps the "rule <name>:" prefix.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: err.Error(),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// Error code constants shared by all commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeInput       = "E007" // Trace file unreadable or invalid
	ErrCodeConfig      = "E008" // Config file unreadable or invalid
	ErrCodeStore       = "E009" // Database error
	ErrCodeDiagnose    = "E010" // Diagnosis aborted
	ErrCodeTestFailed  = "E011" // One or more scenarios failed

	// Rule file errors
	ErrCodeRuleMissing   = "E101" // No rule struct
	ErrCodeRuleInput     = "E102" // Invalid input clause
	ErrCodeRuleCondition = "E103" // Invalid condition clause
	ErrCodeRuleVariable  = "E104" // Invalid variable clause
	ErrCodeRuleAction    = "E105" // Invalid action clause
	ErrCodeRuleSyntax    = "E106" // CUE syntax or type error
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "rule":
		return ErrCodeRuleMissing
	case "input", "input.tag", "input.inject", "input.optional":
		return ErrCodeRuleInput
	case "condition", "condition.name", "condition.check", "condition.hint", "condition.reads":
		return ErrCodeRuleCondition
	case "variable", "variable.name", "variable.default", "variable.optional":
		return ErrCodeRuleVariable
	case "action", "action.produces", "action.arity", "action.function":
		return ErrCodeRuleAction
	case "cue":
		return ErrCodeRuleSyntax
	default:
		return ErrCodeGeneric
	}
}
