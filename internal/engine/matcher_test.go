package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rootcause/internal/ir"
	"github.com/roach88/rootcause/internal/rules"
)

func noop(rules.Input) (any, error) { return nil, nil }

func buildDefs(t *testing.T, descs ...*rules.Descriptor) []*rules.Definition {
	t.Helper()
	defs, err := rules.Build(descs)
	require.NoError(t, err)
	return defs
}

func mustNew(t *testing.T, a *ir.Arena, tagType string, parents ...ir.TagID) ir.Tag {
	t.Helper()
	tag, err := a.New(tagType, tagType, parents...)
	require.NoError(t, err)
	return tag
}

func TestMatchSingleInput(t *testing.T) {
	defs := buildDefs(t,
		rules.New("a").Input("A").Action("X", noop),
		rules.New("b").Input("B").Action("Y", noop),
		rules.New("a2").Input("A").Action("Z", noop),
	)
	arena := ir.NewArena()
	root, _ := arena.Root("in")
	a := mustNew(t, arena, "A", root.ID)

	got, err := match(defs, arena, a, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Rule(), "declaration order")
	assert.Equal(t, "a2", got[1].Rule())
	assert.Equal(t, []ir.TagID{a.ID}, got[0].Key())
}

func TestMatchFanInFollowsLineage(t *testing.T) {
	defs := buildDefs(t, rules.New("join").Input("Branch").Input("Leaf").Action("J", noop))

	// root -> branch1 -> leaf1, root -> branch2 -> leaf2
	arena := ir.NewArena()
	root, _ := arena.Root("in")
	b1 := mustNew(t, arena, "Branch", root.ID)
	b2 := mustNew(t, arena, "Branch", root.ID)
	l1 := mustNew(t, arena, "Leaf", b1.ID)
	l2 := mustNew(t, arena, "Leaf", b2.ID)

	got, err := match(defs, arena, l1, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []ir.TagID{b1.ID, l1.ID}, got[0].Key())

	got, err = match(defs, arena, l2, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []ir.TagID{b2.ID, l2.ID}, got[0].Key())

	got, err = match(defs, arena, b1, nil)
	require.NoError(t, err)
	assert.Empty(t, got, "leaf is a descendant, not yet on the lineage")
}

func TestMatchSiblingsDoNotCombine(t *testing.T) {
	defs := buildDefs(t, rules.New("join").Input("Left").Input("Right").Action("J", noop))

	arena := ir.NewArena()
	root, _ := arena.Root("in")
	mustNew(t, arena, "Left", root.ID)
	right := mustNew(t, arena, "Right", root.ID)

	got, err := match(defs, arena, right, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMatchCartesianOverAncestors(t *testing.T) {
	defs := buildDefs(t, rules.New("join").Input("Step").Input("End").Action("J", noop))

	arena := ir.NewArena()
	root, _ := arena.Root("in")
	s1 := mustNew(t, arena, "Step", root.ID)
	s2 := mustNew(t, arena, "Step", s1.ID)
	end := mustNew(t, arena, "End", s2.ID)

	got, err := match(defs, arena, end, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []ir.TagID{s2.ID, end.ID}, got[0].Key(), "nearest ancestor first")
	assert.Equal(t, []ir.TagID{s1.ID, end.ID}, got[1].Key())
}

func TestMatchOptionalSlots(t *testing.T) {
	defs := buildDefs(t, rules.New("r").
		Input("A").
		Input("Ctx", rules.Optional()).
		Action("X", noop))

	arena := ir.NewArena()
	root, _ := arena.Root("in")
	bare := mustNew(t, arena, "A", root.ID)
	ctx := mustNew(t, arena, "Ctx", root.ID)
	withCtx := mustNew(t, arena, "A", ctx.ID)

	got, err := match(defs, arena, bare, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []ir.TagID{bare.ID, ir.NoTag}, got[0].Key())

	got, err = match(defs, arena, withCtx, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []ir.TagID{withCtx.ID, ctx.ID}, got[0].Key())

	got, err = match(defs, arena, ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got, "optional inputs never trigger")
}

func TestCartesian(t *testing.T) {
	a, b, c := ir.Tag{ID: 1}, ir.Tag{ID: 2}, ir.Tag{ID: 3}
	combos := cartesian([][]ir.Tag{{a, b}, {c}})
	require.Len(t, combos, 2)
	assert.Equal(t, []ir.Tag{a, c}, combos[0])
	assert.Equal(t, []ir.Tag{b, c}, combos[1])
}
