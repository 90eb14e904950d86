package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rootcause/internal/ir"
	"github.com/roach88/rootcause/internal/store"
)

func TestTraceList(t *testing.T) {
	db := storeCheckout(t)

	out, err := execute(t, "trace", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "diag-1  session=")
	assert.Contains(t, out, "tags=10  findings=2")
}

func TestTraceListEmpty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "empty.db")
	st, err := store.Open(db)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := execute(t, "trace", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No diagnoses stored.")
}

func TestTraceText(t *testing.T) {
	db := storeCheckout(t)

	out, err := execute(t, "trace", "diag-1", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Diagnosis: diag-1")
	assert.Contains(t, out, "Variables: baseline=500ms")
	assert.Contains(t, out, "=== Rule outputs ===")
	assert.Contains(t, out, "[1] global-context [0] -> GlobalContext [1]")
	assert.Contains(t, out, "[2] time-wasting-operations [1] -> TimeWastingOperation [2 3]")
	assert.Contains(t, out, "=== Findings ===")
	assert.Contains(t, out, "#8 CauseStructure")
	assert.Contains(t, out, "Stats: 10 tags, 8 executions, 0 condition failures, 2 findings")
}

func TestTraceJSONFilteredByRule(t *testing.T) {
	db := storeCheckout(t)

	out, err := execute(t, "--format", "json", "trace", "diag-1", "--db", db, "--rule", "root-causes", "--values")
	require.NoError(t, err)

	r := decode[TraceResult](t, out)
	assert.Equal(t, "ok", r.Status)
	assert.Equal(t, "diag-1", r.Data.DiagnosisID)
	require.Len(t, r.Data.Outputs, 2)
	for _, o := range r.Data.Outputs {
		assert.Equal(t, "root-causes", o.Rule)
	}
	assert.Equal(t, TraceStats{Tags: 10, Executions: 8, ConditionFailures: 0, EndTags: 2}, r.Data.Stats)

	require.Len(t, r.Data.Findings, 2)
	f := r.Data.Findings[0]
	assert.Equal(t, "CauseStructure", f.Tag.Type)
	assert.NotEmpty(t, f.Tag.Value)
	types := make([]string, len(f.Lineage))
	for i, tv := range f.Lineage {
		types[i] = tv.Type
	}
	assert.Contains(t, types, ir.RootTagType)
	assert.Contains(t, types, "RootCause")
}

func TestTraceErrors(t *testing.T) {
	db := storeCheckout(t)

	out, err := execute(t, "trace", "diag-404", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "diagnosis not found: diag-404")

	out, err = execute(t, "trace", "diag-1", "--db", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeNotFound+"]: database not found")

	_, err = execute(t, "trace", "diag-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "db" not set`)
}

func TestBuildTrace(t *testing.T) {
	db := storeCheckout(t)
	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	d, err := st.ReadDiagnosis(context.Background(), "diag-1")
	require.NoError(t, err)

	result, err := BuildTrace(d, "", false)
	require.NoError(t, err)
	assert.Len(t, result.Outputs, 8)
	require.Len(t, result.Findings, 2)
	assert.Nil(t, result.Findings[0].Tag.Value)
	assert.Equal(t, ir.TagID(8), result.Findings[0].Tag.ID)
	assert.Equal(t, ir.TagID(9), result.Findings[1].Tag.ID)
}
