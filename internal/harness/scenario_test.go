package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rootcause/internal/apm"
)

func TestLoadScenario_TraceFile(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/n-plus-one.yaml")
	require.NoError(t, err)

	assert.Equal(t, "n-plus-one", s.Name)
	assert.Equal(t, filepath.Join("testdata", "scenarios", "..", "traces", "checkout.yaml"), s.TraceFile)
	assert.Equal(t, "500ms", s.Variables["baseline"])
	assert.Equal(t, 2, s.Expect.EndTags["CauseStructure"])
	require.Len(t, s.Expect.Problems, 2)
	assert.Equal(t, apm.StructureIterative, s.Expect.Problems[0].Structure)
	require.NotNil(t, s.Expect.Problems[1].Depth)
	assert.Equal(t, 3, *s.Expect.Problems[1].Depth)

	trace, err := s.LoadTrace()
	require.NoError(t, err)
	assert.Equal(t, "checkout", trace.ID)
	assert.Equal(t, "Servlet.service", trace.Method)
}

func TestLoadScenario_InlineTrace(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/single-call.yaml")
	require.NoError(t, err)
	assert.Empty(t, s.TraceFile)

	trace, err := s.LoadTrace()
	require.NoError(t, err)
	assert.Equal(t, "Job.run", trace.Method)
	require.Len(t, trace.Children, 2)
	assert.Equal(t, "Report.render", trace.Children[0].Method)
}

func TestLoadScenario_NotFound(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/does-not-exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_All(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := LoadScenario(path)
			assert.NoError(t, err)
		})
	}
}

func TestParseScenario_Invalid(t *testing.T) {
	dir := t.TempDir()
	traceFile := filepath.Join(dir, "trace.yaml")
	require.NoError(t, os.WriteFile(traceFile, []byte("method: a\nduration: 1s\n"), 0o644))

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "name: x\ndescription: d\ntrace_file: trace.yaml\nexpectations: {}\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			yaml: "description: d\ntrace_file: trace.yaml\nexpect: {error: PANIC}\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: x\ntrace_file: trace.yaml\nexpect: {error: PANIC}\n",
			want: "description is required",
		},
		{
			name: "no trace",
			yaml: "name: x\ndescription: d\nexpect: {error: PANIC}\n",
			want: "one of trace or trace_file is required",
		},
		{
			name: "both traces",
			yaml: "name: x\ndescription: d\ntrace_file: trace.yaml\ntrace: {method: a}\nexpect: {error: PANIC}\n",
			want: "mutually exclusive",
		},
		{
			name: "trace not a mapping",
			yaml: "name: x\ndescription: d\ntrace: [a, b]\nexpect: {error: PANIC}\n",
			want: "trace must be a mapping",
		},
		{
			name: "trace file missing",
			yaml: "name: x\ndescription: d\ntrace_file: nope.yaml\nexpect: {error: PANIC}\n",
			want: "trace file not found",
		},
		{
			name: "negative budget",
			yaml: "name: x\ndescription: d\ntrace_file: trace.yaml\nmax_executions: -1\nexpect: {error: PANIC}\n",
			want: "max_executions must be non-negative",
		},
		{
			name: "empty expect",
			yaml: "name: x\ndescription: d\ntrace_file: trace.yaml\nexpect: {}\n",
			want: "expect is required",
		},
		{
			name: "negative end tag count",
			yaml: "name: x\ndescription: d\ntrace_file: trace.yaml\nexpect: {end_tags: {A: -1}}\n",
			want: "count must be non-negative",
		},
		{
			name: "failure without condition",
			yaml: "name: x\ndescription: d\ntrace_file: trace.yaml\nexpect: {condition_failures: [{rule: r}]}\n",
			want: "rule and condition are required",
		},
		{
			name: "problem without method",
			yaml: "name: x\ndescription: d\ntrace_file: trace.yaml\nexpect: {problems: [{structure: SINGLE}]}\n",
			want: "method is required",
		},
		{
			name: "unknown structure",
			yaml: "name: x\ndescription: d\ntrace_file: trace.yaml\nexpect: {problems: [{method: m, structure: LOOP}]}\n",
			want: "unknown structure",
		},
		{
			name: "unknown error code",
			yaml: "name: x\ndescription: d\ntrace_file: trace.yaml\nexpect: {error: OOPS}\n",
			want: "unknown runtime error code",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml), dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseScenario_EmptyEndTagsIsAnExpectation(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "t.yaml"), []byte("method: a\nduration: 1s\n"), 0o644))

	s, err := ParseScenario([]byte("name: x\ndescription: d\ntrace_file: t.yaml\nexpect: {end_tags: {}}\n"), dir)
	require.NoError(t, err)
	assert.NotNil(t, s.Expect.EndTags)
	assert.Empty(t, s.Expect.EndTags)
}
