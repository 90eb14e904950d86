package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadErrorCodes(errs []error) []string {
	codes := make([]string, 0, len(errs))
	for _, err := range errs {
		var le *LoadError
		if errors.As(err, &le) {
			codes = append(codes, le.Code)
		}
	}
	return codes
}

func TestLoadRules_BuiltIn(t *testing.T) {
	result, errs := LoadRules("")
	require.Empty(t, errs)
	assert.Equal(t, "built-in", result.Source)
	assert.Len(t, result.Descriptors, 5)
}

func TestLoadRules_Directory(t *testing.T) {
	result, errs := LoadRules(rulesDir)
	require.Empty(t, errs)
	assert.Equal(t, rulesDir, result.Source)
	assert.Equal(t, 1, result.FileCount)

	names := make([]string, len(result.Descriptors))
	for i, d := range result.Descriptors {
		names[i] = d.Name
	}
	assert.Equal(t, []string{
		"global-context",
		"time-wasting-operations",
		"problem-context",
		"root-causes",
		"cause-structure",
	}, names)
}

func TestLoadRules_Errors(t *testing.T) {
	empty := t.TempDir()

	noCUE := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(noCUE, "README.md"), []byte("# rules\n"), 0o644))

	syntax := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(syntax, "broken.cue"), []byte("package rules\n\nrule: {\n"), 0o644))

	file := filepath.Join(t.TempDir(), "rules.cue")
	require.NoError(t, os.WriteFile(file, []byte("package rules\n"), 0o644))

	tests := []struct {
		name string
		dir  string
		code string
	}{
		{"not found", "testdata/does-not-exist", ErrCodeNotFound},
		{"not a directory", file, ErrCodeNotFound},
		{"empty directory", empty, ErrCodeNoFiles},
		{"no cue files", noCUE, ErrCodeNoFiles},
		{"syntax error", syntax, ErrCodeLoadFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, errs := LoadRules(tt.dir)
			assert.Nil(t, result)
			require.Len(t, errs, 1)
			assert.Equal(t, []string{tt.code}, loadErrorCodes(errs))
		})
	}
}

func TestLoadRules_CompileError(t *testing.T) {
	result, errs := LoadRules("testdata/bad-rules")
	require.NotNil(t, result)
	require.Len(t, errs, 1)
	assert.Equal(t, []string{ErrCodeRuleAction}, loadErrorCodes(errs))
	assert.Contains(t, errs[0].Error(), "does-not-exist")
}

func TestFindCUEFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cue"), []byte("package rules\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "c.cue"), []byte("package nested\n"), 0o644))

	files, err := FindCUEFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.cue")}, files)
}

func TestLoadError(t *testing.T) {
	err := &LoadError{Code: ErrCodeNoFiles, Message: "no CUE files found in x"}
	assert.Equal(t, "E003: no CUE files found in x", err.Error())
	assert.Equal(t, 0, err.Line())
}

func TestMapFieldToErrorCode(t *testing.T) {
	tests := map[string]string{
		"rule":            ErrCodeRuleMissing,
		"input.tag":       ErrCodeRuleInput,
		"input.inject":    ErrCodeRuleInput,
		"condition.check": ErrCodeRuleCondition,
		"condition.name":  ErrCodeRuleCondition,
		"variable.name":   ErrCodeRuleVariable,
		"action.function": ErrCodeRuleAction,
		"action.arity":    ErrCodeRuleAction,
		"cue":             ErrCodeRuleSyntax,
		"something.else":  ErrCodeGeneric,
	}
	for field, want := range tests {
		assert.Equal(t, want, MapFieldToErrorCode(field), field)
	}
}
