package embed

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubProvider_DeterministicForSameText(t *testing.T) {
	p := NewStubProvider(16)
	v1, err := p.Embed([]string{"hello world"})
	require.NoError(t, err)
	v2, err := p.Embed([]string{"hello world"})
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestStubProvider_DifferentTextsDifferentVectors(t *testing.T) {
	p := NewStubProvider(16)
	vecs, err := p.Embed([]string{"alpha", "beta"})
	require.NoError(t, err)
	assert.NotEqual(t, vecs[0], vecs[1])
}

func TestStubProvider_OutputIsL2Normalized(t *testing.T) {
	p := NewStubProvider(32)
	vecs, err := p.Embed([]string{"normalize me"})
	require.NoError(t, err)

	var sumSquares float64
	for _, x := range vecs[0] {
		sumSquares += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSquares), 1e-4)
}

func TestStubProvider_DimMatchesConfiguredSize(t *testing.T) {
	p := NewStubProvider(8)
	assert.Equal(t, 8, p.Dim())
	vecs, err := p.Embed([]string{"x"})
	require.NoError(t, err)
	assert.Len(t, vecs[0], 8)
}
