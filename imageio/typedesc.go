package imageio

import "fmt"

// Kind is the numeric family of a pixel sample.
type Kind uint8

const (
	// KindUInt is an unsigned integer sample.
	KindUInt Kind = iota
	// KindInt is a signed integer sample.
	KindInt
	// KindFloat is an IEEE floating point sample.
	KindFloat
)

// String returns the kind's short name.
func (k Kind) String() string {
	switch k {
	case KindUInt:
		return "uint"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	}
	return "unknown"
}

// TypeDesc describes the numeric representation of a single pixel sample:
// its kind and its bit width. It is an immutable value type; equality is
// structural (==).
type TypeDesc struct {
	Kind Kind
	Bits int
}

// Predefined sample types. These cover every pairing the translation
// engine accepts; KindFloat is only defined for 32 and 64 bits.
var (
	TypeUnknown = TypeDesc{}
	TypeUInt8   = TypeDesc{KindUInt, 8}
	TypeInt8    = TypeDesc{KindInt, 8}
	TypeUInt16  = TypeDesc{KindUInt, 16}
	TypeInt16   = TypeDesc{KindInt, 16}
	TypeUInt32  = TypeDesc{KindUInt, 32}
	TypeInt32   = TypeDesc{KindInt, 32}
	TypeFloat   = TypeDesc{KindFloat, 32}
	TypeDouble  = TypeDesc{KindFloat, 64}
)

// Valid reports whether the descriptor names a representation the
// framework understands: integers at 8, 16 or 32 bits, floats at 32 or
// 64 bits.
func (t TypeDesc) Valid() bool {
	switch t.Kind {
	case KindUInt, KindInt:
		return t.Bits == 8 || t.Bits == 16 || t.Bits == 32
	case KindFloat:
		return t.Bits == 32 || t.Bits == 64
	}
	return false
}

// Size returns the number of bytes one sample occupies.
func (t TypeDesc) Size() int {
	return t.Bits / 8
}

// IsFloat reports whether the sample is floating point.
func (t TypeDesc) IsFloat() bool {
	return t.Kind == KindFloat
}

// String returns a name like "uint8" or "float32".
func (t TypeDesc) String() string {
	return fmt.Sprintf("%s%d", t.Kind, t.Bits)
}
