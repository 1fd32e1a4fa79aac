package index

import (
	"encoding/binary"
	"math"

	ragerr "github.com/danh12004/KLTN/pkg/errors"
)

const (
	magic         = "AGFL"
	formatVersion = 1
	headerSize    = 16
)

// MarshalBinary stores: magic "AGFL", version(uint32), dim(uint32),
// n(uint32), then n*dim little-endian float32 values in row order.
func (f *Flat) MarshalBinary() ([]byte, error) {
	n := f.Count()
	out := make([]byte, headerSize+4*len(f.data))
	copy(out[0:4], magic)
	binary.LittleEndian.PutUint32(out[4:8], formatVersion)
	binary.LittleEndian.PutUint32(out[8:12], uint32(f.dim))
	binary.LittleEndian.PutUint32(out[12:16], uint32(n))
	off := headerSize
	for _, v := range f.data {
		binary.LittleEndian.PutUint32(out[off:off+4], math.Float32bits(v))
		off += 4
	}
	return out, nil
}

// UnmarshalBinary restores an index written by MarshalBinary.
func (f *Flat) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize || string(data[0:4]) != magic {
		return ragerr.New(ragerr.CodeIndexDecodeInvalid, "index: not a flat index file")
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != formatVersion {
		return ragerr.Errorf(ragerr.CodeIndexDecodeInvalid, "index: unsupported format version %d", v)
	}
	dim := int(binary.LittleEndian.Uint32(data[8:12]))
	n := int(binary.LittleEndian.Uint32(data[12:16]))
	if dim <= 0 {
		return ragerr.Errorf(ragerr.CodeIndexDecodeInvalid, "index: invalid dimension %d", dim)
	}
	if want := headerSize + 4*dim*n; len(data) != want {
		return ragerr.Errorf(ragerr.CodeIndexDecodeInvalid,
			"index: truncated data: %d bytes, want %d", len(data), want)
	}

	values := make([]float32, dim*n)
	off := headerSize
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
		off += 4
	}
	f.dim = dim
	f.data = values
	return nil
}

// Decode is a convenience wrapper around UnmarshalBinary.
func Decode(data []byte) (*Flat, error) {
	f := &Flat{}
	if err := f.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return f, nil
}
