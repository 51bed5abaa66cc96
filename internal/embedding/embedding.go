// Package embedding provides vector embedding generation for text.
package embedding

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Embedding represents a vector embedding of text.
type Embedding struct {
	Vector []float32 // The embedding vector (e.g., 384 dimensions for all-minilm)
}

// Dimensions returns the dimensionality of the embedding.
func (e Embedding) Dimensions() int {
	return len(e.Vector)
}

// MarshalBinary encodes the vector as little-endian IEEE 754 float32 values
// without a length prefix; the length is derived from the size on decode.
func (e Embedding) MarshalBinary() ([]byte, error) {
	b := make([]byte, len(e.Vector)*4)
	for i, v := range e.Vector {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b, nil
}

// UnmarshalBinary decodes bytes produced by MarshalBinary.
func (e *Embedding) UnmarshalBinary(b []byte) error {
	if len(b)%4 != 0 {
		return fmt.Errorf("invalid embedding length %d (not a multiple of 4)", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	e.Vector = vec
	return nil
}
