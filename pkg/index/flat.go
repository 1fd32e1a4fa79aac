// Package index provides an exhaustive nearest-neighbour index over
// fixed-dimension float32 vectors using squared Euclidean (L2) distance.
package index

import (
	"sort"

	ragerr "github.com/danh12004/KLTN/pkg/errors"
)

// Hit is one search result: the row of the matched vector and its squared
// L2 distance to the query.
type Hit struct {
	Row      int
	Distance float32
}

// Flat compares a query against every stored vector. There is no training
// step; rows are numbered in insertion order starting at 0.
type Flat struct {
	dim  int
	data []float32 // row-major, len(data) == dim*count
}

// NewFlat creates an empty index for vectors of the given dimension.
func NewFlat(dim int) *Flat {
	return &Flat{dim: dim}
}

// Build creates an index holding vectors in order. All vectors must share
// the same non-zero dimension.
func Build(vectors [][]float32) (*Flat, error) {
	if len(vectors) == 0 {
		return nil, ragerr.New(ragerr.CodeIndexBuildInvalid, "index: no vectors to build from")
	}
	f := NewFlat(len(vectors[0]))
	if err := f.Add(vectors...); err != nil {
		return nil, err
	}
	return f, nil
}

// Add appends vectors as new rows.
func (f *Flat) Add(vectors ...[]float32) error {
	if f.dim <= 0 {
		return ragerr.Errorf(ragerr.CodeIndexBuildInvalid, "index: invalid dimension %d", f.dim)
	}
	for i, v := range vectors {
		if len(v) != f.dim {
			return ragerr.Errorf(ragerr.CodeIndexBuildInvalid,
				"index: vector %d has dimension %d, want %d", i, len(v), f.dim)
		}
	}
	for _, v := range vectors {
		f.data = append(f.data, v...)
	}
	return nil
}

// Count returns the number of indexed vectors.
func (f *Flat) Count() int {
	if f == nil || f.dim == 0 {
		return 0
	}
	return len(f.data) / f.dim
}

// Dimension returns the vector dimension.
func (f *Flat) Dimension() int {
	return f.dim
}

// Vector returns a copy of the vector stored at row.
func (f *Flat) Vector(row int) []float32 {
	if row < 0 || row >= f.Count() {
		return nil
	}
	out := make([]float32, f.dim)
	copy(out, f.data[row*f.dim:(row+1)*f.dim])
	return out
}

// Search returns the k rows nearest to query in ascending distance order;
// equal distances keep row order. k larger than Count is clamped, and k <= 0
// yields no hits.
func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, ragerr.Errorf(ragerr.CodeIndexQueryInvalid,
			"index: query dimension %d, want %d", len(query), f.dim)
	}
	n := f.Count()
	if k <= 0 || n == 0 {
		return []Hit{}, nil
	}

	hits := make([]Hit, n)
	for row := 0; row < n; row++ {
		hits[row] = Hit{Row: row, Distance: SquaredL2(query, f.data[row*f.dim:(row+1)*f.dim])}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})

	if k < n {
		hits = hits[:k]
	}
	return hits, nil
}

// SquaredL2 computes the squared Euclidean distance between a and b, which
// must have equal length.
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
