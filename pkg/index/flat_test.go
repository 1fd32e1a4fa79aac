package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerr "github.com/danh12004/KLTN/pkg/errors"
)

func sampleVectors() [][]float32 {
	return [][]float32{
		{0, 0},
		{1, 0},
		{0, 3},
		{2, 2},
	}
}

func TestSearch_AscendingDistance(t *testing.T) {
	f, err := Build(sampleVectors())
	require.NoError(t, err)
	require.Equal(t, 4, f.Count())
	require.Equal(t, 2, f.Dimension())

	hits, err := f.Search([]float32{0.9, 0.1}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, 1, hits[0].Row)
	assert.Equal(t, 0, hits[1].Row)
	assert.Equal(t, 3, hits[2].Row)
	assert.InDelta(t, 0.02, hits[0].Distance, 1e-6)
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i-1].Distance, hits[i].Distance)
	}
}

func TestSearch_KClampedToCount(t *testing.T) {
	f, err := Build(sampleVectors())
	require.NoError(t, err)

	hits, err := f.Search([]float32{0, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, hits, 4)
}

func TestSearch_NonPositiveK(t *testing.T) {
	f, err := Build(sampleVectors())
	require.NoError(t, err)

	for _, k := range []int{0, -3} {
		hits, err := f.Search([]float32{0, 0}, k)
		require.NoError(t, err)
		assert.Empty(t, hits)
	}
}

func TestSearch_TiesKeepRowOrder(t *testing.T) {
	f, err := Build([][]float32{{1, 0}, {-1, 0}, {0, 1}})
	require.NoError(t, err)

	hits, err := f.Search([]float32{0, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, []int{hits[0].Row, hits[1].Row, hits[2].Row})
}

func TestSearch_DimensionMismatch(t *testing.T) {
	f, err := Build(sampleVectors())
	require.NoError(t, err)

	_, err = f.Search([]float32{1, 2, 3}, 1)
	require.Error(t, err)
	assert.True(t, ragerr.HasCode(err, ragerr.CodeIndexQueryInvalid))
}

func TestBuild_Invalid(t *testing.T) {
	_, err := Build(nil)
	require.Error(t, err)

	_, err = Build([][]float32{{1, 2}, {1}})
	require.Error(t, err)
	assert.True(t, ragerr.IsInvalidInput(err))
}

func TestVector_ReturnsCopy(t *testing.T) {
	f, err := Build(sampleVectors())
	require.NoError(t, err)

	v := f.Vector(2)
	assert.Equal(t, []float32{0, 3}, v)
	v[0] = 42
	assert.Equal(t, []float32{0, 3}, f.Vector(2))
	assert.Nil(t, f.Vector(9))
}

func TestBinaryRoundTrip(t *testing.T) {
	f, err := Build(sampleVectors())
	require.NoError(t, err)

	data, err := f.MarshalBinary()
	require.NoError(t, err)

	restored, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, f.Count(), restored.Count())
	assert.Equal(t, f.Dimension(), restored.Dimension())

	query := []float32{1.5, 1.5}
	before, err := f.Search(query, 4)
	require.NoError(t, err)
	after, err := restored.Search(query, 4)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUnmarshalBinary_Corrupt(t *testing.T) {
	f, err := Build(sampleVectors())
	require.NoError(t, err)
	data, err := f.MarshalBinary()
	require.NoError(t, err)

	tests := map[string][]byte{
		"empty":     nil,
		"bad magic": append([]byte("XXXX"), data[4:]...),
		"truncated": data[:len(data)-3],
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(raw)
			require.Error(t, err)
			assert.True(t, ragerr.HasCode(err, ragerr.CodeIndexDecodeInvalid))
		})
	}
}
