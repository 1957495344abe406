package embedding

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestGenerateDeterministic(t *testing.T) {
	first, err := Generate("hello world", 32)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, err := Generate("hello world", 32)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(first) != 32 {
		t.Fatalf("dimension: want=32 got=%d", len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("value %d differs across runs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestGenerateReferenceValues(t *testing.T) {
	// Fixed points of the hash construction; any drift in seed handling,
	// counter encoding, or normalization shows up here.
	vec, err := Generate("hello world", 32)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	refs := map[int]float64{
		0:  0.14643077876455585,
		1:  0.16754300059905333,
		31: 0.16052080601389718,
	}
	for i, want := range refs {
		if math.Abs(vec[i]-want) > 1e-15 {
			t.Fatalf("value %d: want=%v got=%v", i, want, vec[i])
		}
	}
}

func TestGenerateTextSensitivity(t *testing.T) {
	base, err := Generate("hello world", 32)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	other, err := Generate("hello world!", 32)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	same := true
	for i := range base {
		if base[i] != other[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("distinct texts produced identical vectors")
	}
}

func TestGenerateUnitNorm(t *testing.T) {
	for _, dim := range []int{1, 7, 8, 32, 100} {
		vec, err := Generate("unit norm probe", dim)
		if err != nil {
			t.Fatalf("Generate(dim=%d): %v", dim, err)
		}
		if len(vec) != dim {
			t.Fatalf("dimension: want=%d got=%d", dim, len(vec))
		}
		var sum float64
		for _, v := range vec {
			sum += v * v
		}
		if math.Abs(math.Sqrt(sum)-1.0) > 1e-9 {
			t.Fatalf("norm(dim=%d): want=1.0 got=%v", dim, math.Sqrt(sum))
		}
	}
}

func TestGenerateEmptyText(t *testing.T) {
	vec, err := Generate("", 16)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(vec) != 16 {
		t.Fatalf("dimension: want=16 got=%d", len(vec))
	}
	// The zero-byte seed still hashes to something; the vector must be usable.
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if math.Abs(math.Sqrt(sum)-1.0) > 1e-9 {
		t.Fatalf("norm: want=1.0 got=%v", math.Sqrt(sum))
	}
}

func TestGenerateinvalidDimension(t *testing.T) {
	for _, dim := range []int{0, -1, -32} {
		if _, err := Generate("x", dim); !errors.Is(err, ErrInvalidDimension) {
			t.Fatalf("Generate(dim=%d): want ErrInvalidDimension got=%v", dim, err)
		}
	}
}

func TestEncodeDecodeFloat32LE(t *testing.T) {
	vec, err := Generate("round trip", 12)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	raw := EncodeFloat32LE(vec)
	if len(raw) != 12*4 {
		t.Fatalf("encoded length: want=%d got=%d", 12*4, len(raw))
	}
	decoded := DecodeFloat32LE(raw)
	narrowed := Float32Vector(vec)
	if len(decoded) != len(narrowed) {
		t.Fatalf("decoded length: want=%d got=%d", len(narrowed), len(decoded))
	}
	for i := range decoded {
		if decoded[i] != narrowed[i] {
			t.Fatalf("value %d: want=%v got=%v", i, narrowed[i], decoded[i])
		}
	}
	if bytes.Equal(raw, EncodeFloat32LE(mustGenerate(t, "different text", 12))) {
		t.Fatalf("distinct texts encoded to identical bytes")
	}
}

func mustGenerate(t *testing.T, text string, dim int) []float64 {
	t.Helper()
	vec, err := Generate(text, dim)
	if err != nil {
		t.Fatalf("Generate(%q, %d): %v", text, dim, err)
	}
	return vec
}
