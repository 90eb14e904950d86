package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionKeyDeterminism(t *testing.T) {
	k1, err := ExecutionKey("root-causes", []TagID{3, 1})
	require.NoError(t, err)
	k2, err := ExecutionKey("root-causes", []TagID{3, 1})
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64, "SHA-256 hex is 64 characters")
}

func TestExecutionKeyDistinguishesTuples(t *testing.T) {
	base := MustExecutionKey("r", []TagID{1, 2})

	assert.NotEqual(t, base, MustExecutionKey("r", []TagID{2, 1}), "slot order matters")
	assert.NotEqual(t, base, MustExecutionKey("r", []TagID{1, NoTag}), "absent slot differs")
	assert.NotEqual(t, base, MustExecutionKey("s", []TagID{1, 2}), "rule name matters")
}

func TestDomainSeparation(t *testing.T) {
	data := []byte(`{"rule":"r","tags":[1]}`)
	assert.NotEqual(t,
		hashWithDomain(DomainExecution, data),
		hashWithDomain(DomainInput, data))
}

func TestInputDigest(t *testing.T) {
	d1, err := InputDigest(map[string]any{"baseline": 100, "mode": "strict"})
	require.NoError(t, err)
	d2, err := InputDigest(map[string]any{"mode": "strict", "baseline": 100})
	require.NoError(t, err)
	assert.Equal(t, d1, d2, "key order must not matter")

	_, err = InputDigest(map[string]any{"significance": 0.2})
	assert.Error(t, err, "floats are not canonical")
}
