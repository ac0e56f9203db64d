package engine

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/gogpu/osl/ustring"
)

// Values cross the boundary as raw bytes described by a typedesc.TypeDesc.
// Every base value is a native-endian 4-byte word: int32, float32 bits, or a
// ustring.Ustring handle for strings.

// WordSize is the size in bytes of one encoded base value.
const WordSize = 4

// EncodeInt32s encodes vs as words.
func EncodeInt32s(vs ...int32) []byte {
	b := make([]byte, len(vs)*WordSize)
	for i, v := range vs {
		binary.NativeEndian.PutUint32(b[i*WordSize:], uint32(v))
	}
	return b
}

// EncodeFloat32s encodes vs as words.
func EncodeFloat32s(vs ...float32) []byte {
	b := make([]byte, len(vs)*WordSize)
	for i, v := range vs {
		binary.NativeEndian.PutUint32(b[i*WordSize:], math.Float32bits(v))
	}
	return b
}

// EncodeStrings interns vs and encodes their handles as words.
func EncodeStrings(vs ...string) []byte {
	b := make([]byte, len(vs)*WordSize)
	for i, v := range vs {
		binary.NativeEndian.PutUint32(b[i*WordSize:], uint32(ustring.New(v)))
	}
	return b
}

// DecodeInt32s decodes every whole word of b.
func DecodeInt32s(b []byte) []int32 {
	out := make([]int32, len(b)/WordSize)
	for i := range out {
		out[i] = int32(binary.NativeEndian.Uint32(b[i*WordSize:]))
	}
	return out
}

// DecodeFloat32s decodes every whole word of b.
func DecodeFloat32s(b []byte) []float32 {
	out := make([]float32, len(b)/WordSize)
	for i := range out {
		out[i] = math.Float32frombits(binary.NativeEndian.Uint32(b[i*WordSize:]))
	}
	return out
}

// DecodeStrings decodes every whole word of b as a ustring handle.
func DecodeStrings(b []byte) []string {
	out := make([]string, len(b)/WordSize)
	for i := range out {
		out[i] = ustring.Ustring(binary.NativeEndian.Uint32(b[i*WordSize:])).String()
	}
	return out
}

// AlignedBytes returns a zeroed byte slice of length n whose first byte is
// 8-byte aligned, so records containing any supported field type can be
// viewed in place.
func AlignedBytes(n int) []byte {
	if n == 0 {
		return nil
	}
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), n)
}
