package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVector_String(t *testing.T) {
	assert.Equal(t, "[0.5,-1,0.25]", Vector{0.5, -1, 0.25}.String())
	assert.Equal(t, "[]", Vector{}.String())
}

func TestVector_ScanRoundTrip(t *testing.T) {
	in := Vector{0.1, 0.2, 0.3}
	val, err := in.Value()
	require.NoError(t, err)

	var out Vector
	require.NoError(t, out.Scan(val))
	require.Len(t, out, 3)
	for i := range in {
		assert.InDelta(t, in[i], out[i], 1e-6)
	}
}

func TestVector_ScanBytesAndNil(t *testing.T) {
	var v Vector
	require.NoError(t, v.Scan([]byte("[1,2]")))
	assert.Equal(t, Vector{1, 2}, v)

	require.NoError(t, v.Scan(nil))
	assert.Nil(t, v)

	assert.Error(t, v.Scan(42))
}
