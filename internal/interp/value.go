package interp

import (
	"fmt"
	"strings"
)

// ValueKind represents the type of a runtime value.
type ValueKind int

const (
	KindVoid ValueKind = iota
	KindInt
	KindFloat
	KindVector
	KindPointer
)

// Value is a runtime value: a scalar integer or float, a vector of scalars,
// or a pointer into a global's memory image.
type Value struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Elems []Value
	Ptr   *Pointer
}

// Pointer addresses a byte offset inside one memory image.
type Pointer struct {
	Mem []byte
	Off int64
}

// NewInt creates an integer value.
func NewInt(v int64) Value {
	return Value{Kind: KindInt, Int: v}
}

// NewFloat creates a floating-point value.
func NewFloat(v float64) Value {
	return Value{Kind: KindFloat, Float: v}
}

// NewVector creates a vector value from its lanes.
func NewVector(elems []Value) Value {
	return Value{Kind: KindVector, Elems: elems}
}

// NewPointer creates a pointer into mem at byte offset off.
func NewPointer(mem []byte, off int64) Value {
	return Value{Kind: KindPointer, Ptr: &Pointer{Mem: mem, Off: off}}
}

// NewVoid creates a void value.
func NewVoid() Value {
	return Value{Kind: KindVoid}
}

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindVector:
		parts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			parts[i] = e.String()
		}
		return "<" + strings.Join(parts, ", ") + ">"
	case KindPointer:
		return fmt.Sprintf("ptr+%d", v.Ptr.Off)
	}
	return "void"
}
