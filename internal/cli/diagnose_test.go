package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rootcause/internal/apm"
	"github.com/roach88/rootcause/internal/testutil"
)

func TestDiagnoseBuiltInRules(t *testing.T) {
	out, err := execute(t, "diagnose", "--input", checkout, "--var", "baseline=500ms")
	require.NoError(t, err)

	assert.Contains(t, out, "Trace checkout")
	assert.Contains(t, out, "rules built-in")
	assert.Contains(t, out, "2 problem(s):")
	assert.Contains(t, out, "Dao.query")
	assert.Contains(t, out, "ITERATIVE")
	assert.Contains(t, out, "Parser.parse")
	assert.Contains(t, out, "RECURSIVE")
	assert.Contains(t, out, "CauseStructure: 2")
	assert.NotContains(t, out, "Stored as")
}

func TestDiagnoseRulesDirJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "diagnose", rulesDir, "-i", checkout, "--var", "baseline=500ms")
	require.NoError(t, err)

	r := decode[DiagnoseResult](t, out)
	assert.Equal(t, "ok", r.Status)
	assert.Equal(t, "checkout", r.Data.TraceID)
	assert.Equal(t, rulesDir, r.Data.Rules)
	assert.False(t, r.Data.Stored)
	assert.Equal(t, map[string]int{"CauseStructure": 2}, r.Data.EndTags)
	assert.Empty(t, r.Data.ConditionFailures)

	require.Len(t, r.Data.Problems, 2)
	assert.Equal(t, "Dao.query", r.Data.Problems[0].Method)
	assert.Equal(t, apm.StructureIterative, r.Data.Problems[0].Structure)
	assert.Equal(t, 4, r.Data.Problems[0].Calls)
	assert.Equal(t, "Controller.handle", r.Data.Problems[0].ContextMethod)
}

func TestDiagnoseFastTrace(t *testing.T) {
	out, err := execute(t, "diagnose", "-i", "testdata/traces/fast.yaml", "--var", "baseline=1s")
	require.NoError(t, err)
	assert.Contains(t, out, "No problems found.")
	assert.Contains(t, out, "Rejected rules:")
	assert.Contains(t, out, "time-wasting-operations: exceeds-baseline (the trace is faster than the baseline)")
}

func TestDiagnoseConfigFile(t *testing.T) {
	out, err := execute(t, "--format", "json", "--config", "testdata/config/rootcause.yaml",
		"diagnose", "-i", checkout)
	require.NoError(t, err)

	r := decode[DiagnoseResult](t, out)
	assert.Len(t, r.Data.Problems, 2)
}

func TestDiagnoseVarOverridesConfig(t *testing.T) {
	out, err := execute(t, "--format", "json", "--config", "testdata/config/rootcause.yaml",
		"diagnose", "-i", checkout, "--var", "baseline=2s")
	require.NoError(t, err)

	r := decode[DiagnoseResult](t, out)
	assert.Empty(t, r.Data.Problems)
	assert.Contains(t, r.Data.ConditionFailures, apm.RuleTimeWastingOperations)
}

func TestDiagnoseMissingVariable(t *testing.T) {
	out, err := execute(t, "--format", "json", "diagnose", "-i", checkout)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	r := decode[any](t, out)
	assert.Equal(t, "error", r.Status)
	require.NotNil(t, r.Error)
	assert.Equal(t, ErrCodeDiagnose, r.Error.Code)
	assert.Equal(t, map[string]any{"runtime_code": "MISSING_VARIABLE"}, r.Error.Details)
}

func TestDiagnoseInputErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code string
	}{
		{"bad var", []string{"diagnose", "-i", checkout, "--var", "baseline"}, ErrCodeInput},
		{"missing trace", []string{"diagnose", "-i", "testdata/traces/nope.yaml", "--var", "baseline=1s"}, ErrCodeInput},
		{"missing rules", []string{"diagnose", "testdata/nope", "-i", checkout}, ErrCodeNotFound},
		{"bad rules", []string{"diagnose", "testdata/bad-rules", "-i", checkout}, ErrCodeRuleAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error ["+tt.code+"]")
		})
	}
}

func TestDiagnoseRequiresInput(t *testing.T) {
	_, err := execute(t, "diagnose")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "input" not set`)
}

func TestParseVars(t *testing.T) {
	vars, err := ParseVars([]string{"baseline=500ms", "significance=0.1", "query=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"baseline":     "500ms",
		"significance": "0.1",
		"query":        "a=b",
	}, vars)

	_, err = ParseVars([]string{"=x"})
	assert.Error(t, err)
	_, err = ParseVars([]string{"novalue"})
	assert.ErrorContains(t, err, `invalid variable "novalue"`)
}

// storeCheckout diagnoses the checkout trace into a fresh database and
// returns its path. The diagnosis id is "diag-1".
func storeCheckout(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "rootcause.db")

	opts := &DiagnoseOptions{
		RootOptions:  &RootOptions{Format: "json"},
		Input:        checkout,
		Vars:         []string{"baseline=500ms"},
		Database:     db,
		DiagnosisIDs: testutil.NewSequenceGenerator("diag"),
	}
	cmd := &cobra.Command{}
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	require.NoError(t, runDiagnose(opts, "", cmd))

	r := decode[DiagnoseResult](t, out.String())
	require.True(t, r.Data.Stored)
	require.Equal(t, "diag-1", r.Data.DiagnosisID)
	return db
}

func TestDiagnoseStoresDiagnosis(t *testing.T) {
	db := storeCheckout(t)
	assert.FileExists(t, db)
}

func TestDiagnoseStoreText(t *testing.T) {
	db := filepath.Join(t.TempDir(), "rootcause.db")
	out, err := execute(t, "diagnose", "-i", checkout, "--var", "baseline=500ms", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Stored as diagnosis ")
	assert.FileExists(t, db)
}
