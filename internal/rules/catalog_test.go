package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogRegisterAndLookup(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.RegisterAction("identity", identity))
	require.NoError(t, c.RegisterPredicate("always", always))

	assert.Error(t, c.RegisterAction("identity", identity))
	assert.Error(t, c.RegisterPredicate("always", always))

	_, ok := c.Action("identity")
	assert.True(t, ok)
	_, ok = c.Predicate("always")
	assert.True(t, ok)
	_, ok = c.Action("missing")
	assert.False(t, ok)
}

func TestCatalogMerge(t *testing.T) {
	a := NewCatalog()
	require.NoError(t, a.RegisterAction("x", identity))

	b := NewCatalog()
	require.NoError(t, b.RegisterAction("y", identity))
	require.NoError(t, b.RegisterPredicate("p", always))

	require.NoError(t, a.Merge(b))
	assert.Equal(t, []string{"x", "y"}, a.ActionNames())
	assert.Equal(t, []string{"p"}, a.PredicateNames())

	assert.Error(t, a.Merge(b), "names collide")
}
