package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rootcause/internal/ir"
)

func pairDefinition(t *testing.T) *Definition {
	t.Helper()
	defs, err := Build([]*Descriptor{
		New("pair").
			Input("RootTag").
			Input("SimpleTag", ByTag()).
			Input("Extra", Optional()).
			Action("PairTag", identity).
			OptionalVariable("significance", 0.2),
	})
	require.NoError(t, err)
	return defs[0]
}

func TestBindAndAccess(t *testing.T) {
	def := pairDefinition(t)
	root := ir.Tag{ID: 1, Type: "RootTag", Value: "INPUT"}
	simple := ir.Tag{ID: 2, Type: "SimpleTag", Value: "INPUTx", Parents: []ir.TagID{1}}

	in, err := Bind(def, []ir.Tag{root, simple, Absent("Extra")}, map[string]any{"baseline": 10})
	require.NoError(t, err)

	assert.Equal(t, "pair", in.Rule())
	assert.Equal(t, []ir.TagID{1, 2, ir.NoTag}, in.Key())
	assert.Len(t, in.Bound(), 2)

	v, ok := in.Value("RootTag")
	require.True(t, ok)
	assert.Equal(t, "INPUT", v)

	_, ok = in.Value("Extra")
	assert.False(t, ok, "absent optional slot")

	args := in.Args()
	require.Len(t, args, 3)
	assert.Equal(t, "INPUT", args[0])
	assert.Equal(t, simple, args[1], "injected by tag")
	assert.Nil(t, args[2])

	s, ok := ValueAs[string](in, "RootTag")
	require.True(t, ok)
	assert.Equal(t, "INPUT", s)
	_, ok = ValueAs[int](in, "RootTag")
	assert.False(t, ok)

	baseline, ok := VarAs[int](in, "baseline")
	require.True(t, ok)
	assert.Equal(t, 10, baseline)

	sig, ok := VarAs[float64](in, "significance")
	require.True(t, ok, "default applies")
	assert.Equal(t, 0.2, sig)

	_, ok = in.Var("missing")
	assert.False(t, ok)
}

func TestBindRejectsMismatches(t *testing.T) {
	def := pairDefinition(t)
	root := ir.Tag{ID: 1, Type: "RootTag"}
	simple := ir.Tag{ID: 2, Type: "SimpleTag"}

	_, err := Bind(def, []ir.Tag{root, simple}, nil)
	assert.Error(t, err, "slot count")

	_, err = Bind(def, []ir.Tag{root, Absent("SimpleTag"), Absent("Extra")}, nil)
	assert.Error(t, err, "required slot absent")

	_, err = Bind(def, []ir.Tag{simple, root, Absent("Extra")}, nil)
	assert.Error(t, err, "wrong type in slot")
}

func TestRestrictHidesUnreadSlots(t *testing.T) {
	def := pairDefinition(t)
	in, err := Bind(def, []ir.Tag{
		{ID: 1, Type: "RootTag", Value: "a"},
		{ID: 2, Type: "SimpleTag", Value: "b"},
		Absent("Extra"),
	}, nil)
	require.NoError(t, err)

	view := in.Restrict([]string{"RootTag"})
	_, ok := view.Value("RootTag")
	assert.True(t, ok)
	_, ok = view.Value("SimpleTag")
	assert.False(t, ok)
	assert.Equal(t, []any{"a", nil, nil}, view.Args())

	assert.Equal(t, in, in.Restrict(nil))
}
