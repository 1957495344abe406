// Package embedding derives fixed-dimension unit vectors from text.
//
// The generator is deliberately hash-based rather than model-based so the
// same explanation text always maps to the same vector, on any host, with
// no external inference dependency.
package embedding

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math"
)

var ErrInvalidDimension = errors.New("embedding dimension must be positive")

// Generate maps text to a deterministic unit-norm vector of dim values.
//
// The seed is the UTF-8 text (a single zero byte when empty). Values come
// from SHA-256(seed || counter) digests, counter little-endian uint32,
// consumed as 4-byte little-endian unsigned chunks normalized by the max
// 32-bit value. The result is L2-normalized; an exact zero norm is returned
// as-is.
func Generate(text string, dim int) ([]float64, error) {
	if dim <= 0 {
		return nil, ErrInvalidDimension
	}
	seed := []byte(text)
	if len(seed) == 0 {
		seed = []byte{0}
	}

	vector := make([]float64, 0, dim)
	buf := make([]byte, len(seed)+4)
	copy(buf, seed)
	for counter := uint32(0); len(vector) < dim; counter++ {
		binary.LittleEndian.PutUint32(buf[len(seed):], counter)
		digest := sha256.Sum256(buf)
		for offset := 0; offset+4 <= len(digest) && len(vector) < dim; offset += 4 {
			chunk := binary.LittleEndian.Uint32(digest[offset : offset+4])
			vector = append(vector, float64(chunk)/float64(math.MaxUint32))
		}
	}

	var sum float64
	for _, v := range vector {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0.0 {
		return vector, nil
	}
	for i := range vector {
		vector[i] /= norm
	}
	return vector, nil
}

// EncodeFloat32LE serializes a vector as concatenated little-endian float32
// values, the persisted embedding layout (len(vector) * 4 bytes).
func EncodeFloat32LE(vector []float64) []byte {
	out := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(v)))
	}
	return out
}

// DecodeFloat32LE is the inverse of EncodeFloat32LE.
func DecodeFloat32LE(raw []byte) []float32 {
	out := make([]float32, 0, len(raw)/4)
	for offset := 0; offset+4 <= len(raw); offset += 4 {
		out = append(out, math.Float32frombits(binary.LittleEndian.Uint32(raw[offset:offset+4])))
	}
	return out
}

// Float32Vector narrows a generated vector for index synchronization.
func Float32Vector(vector []float64) []float32 {
	out := make([]float32, len(vector))
	for i, v := range vector {
		out[i] = float32(v)
	}
	return out
}
