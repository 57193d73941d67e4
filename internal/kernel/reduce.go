package kernel

import (
	"encoding/binary"
	"math"
	"strings"
)

// ReduceOp is the commutative elementwise reduction an accumulating unpack
// applies at each scalar leaf, matching the op set spec.md §4.2 names.
// Floating-point ops are not required to be associative-deterministic.
type ReduceOp int

const (
	OpSum ReduceOp = iota
	OpProd
	OpMin
	OpMax
	OpLAnd
	OpLOr
	OpLXor
	OpBAnd
	OpBOr
	OpBXor
	OpReplace
	OpNoOp
)

// reduceBytes combines src into dst in place using op, interpreting the
// bytes according to leafName (the builtin predefined-type name). For
// integer leaves, bitwise/logical ops operate on the raw bit pattern; for
// float and double leaves they leave dst unchanged. Both slices must be the
// same length: one scalar builtin leaf's worth of bytes, never a merged
// multi-element run.
func reduceBytes(dst, src []byte, op ReduceOp, leafName string) {
	if op == OpNoOp {
		return
	}
	if op == OpReplace {
		copy(dst, src)
		return
	}

	// Pair/complex leaves: reductions on these require per-field semantics
	// (MINLOC-style) this module does not implement; leave the destination
	// untouched rather than reduce the pair as one wide scalar.
	if strings.Contains(leafName, "_int") || leafName == "2int" || strings.Contains(leafName, "complex") {
		return
	}

	if isFloatName(leafName) && len(dst) == 4 {
		reduceFloat32(dst, src, op)
		return
	}
	if isFloatName(leafName) && len(dst) == 8 {
		reduceFloat64(dst, src, op)
		return
	}

	switch len(dst) {
	case 1:
		reduceInt(dst, src, op, 1, leafName)
	case 2:
		reduceInt(dst, src, op, 2, leafName)
	case 4:
		reduceInt(dst, src, op, 4, leafName)
	case 8:
		reduceInt(dst, src, op, 8, leafName)
	default:
		// Any other leaf width: leave the destination untouched rather than
		// guess.
	}
}

func isFloatName(name string) bool {
	return strings.Contains(name, "float") || strings.Contains(name, "double") || strings.Contains(name, "complex")
}

// isSignedName reports whether name (a predefined-type name) denotes a
// signed integer, so OpMin/OpMax compare bit patterns the right way: e.g.
// int32's -1 (0xFFFFFFFF) must lose to 5 under OpMin, not win the way an
// unsigned compare would read it.
func isSignedName(name string) bool {
	switch {
	case strings.HasPrefix(name, "uint"), name == "size_t", name == "byte", name == "bool":
		return false
	case strings.Contains(name, "int"):
		return true
	default:
		return false
	}
}

// signExtend reinterprets the low width bytes of v as a two's-complement
// signed integer of that width, sign-extended to int64.
func signExtend(v uint64, width int) int64 {
	switch width {
	case 1:
		return int64(int8(v))
	case 2:
		return int64(int16(v))
	case 4:
		return int64(int32(v))
	default:
		return int64(v)
	}
}

func reduceFloat32(dst, src []byte, op ReduceOp) {
	d := math.Float32frombits(binary.LittleEndian.Uint32(dst))
	s := math.Float32frombits(binary.LittleEndian.Uint32(src))
	var r float32
	switch op {
	case OpSum:
		r = d + s
	case OpProd:
		r = d * s
	case OpMin:
		r = float32(math.Min(float64(d), float64(s)))
	case OpMax:
		r = float32(math.Max(float64(d), float64(s)))
	default:
		r = d
	}
	binary.LittleEndian.PutUint32(dst, math.Float32bits(r))
}

func reduceFloat64(dst, src []byte, op ReduceOp) {
	d := math.Float64frombits(binary.LittleEndian.Uint64(dst))
	s := math.Float64frombits(binary.LittleEndian.Uint64(src))
	var r float64
	switch op {
	case OpSum:
		r = d + s
	case OpProd:
		r = d * s
	case OpMin:
		r = math.Min(d, s)
	case OpMax:
		r = math.Max(d, s)
	default:
		r = d
	}
	binary.LittleEndian.PutUint64(dst, math.Float64bits(r))
}

func reduceInt(dst, src []byte, op ReduceOp, width int, leafName string) {
	var d, s uint64
	switch width {
	case 1:
		d, s = uint64(dst[0]), uint64(src[0])
	case 2:
		d, s = uint64(binary.LittleEndian.Uint16(dst)), uint64(binary.LittleEndian.Uint16(src))
	case 4:
		d, s = uint64(binary.LittleEndian.Uint32(dst)), uint64(binary.LittleEndian.Uint32(src))
	case 8:
		d, s = binary.LittleEndian.Uint64(dst), binary.LittleEndian.Uint64(src)
	}

	var r uint64
	switch op {
	case OpSum:
		r = d + s
	case OpProd:
		r = d * s
	case OpMin:
		if isSignedName(leafName) {
			if signExtend(d, width) <= signExtend(s, width) {
				r = d
			} else {
				r = s
			}
		} else {
			r = minU64(d, s)
		}
	case OpMax:
		if isSignedName(leafName) {
			if signExtend(d, width) >= signExtend(s, width) {
				r = d
			} else {
				r = s
			}
		} else {
			r = maxU64(d, s)
		}
	case OpBAnd, OpLAnd:
		r = d & s
	case OpBOr, OpLOr:
		r = d | s
	case OpBXor, OpLXor:
		r = d ^ s
	default:
		r = d
	}

	switch width {
	case 1:
		dst[0] = byte(r)
	case 2:
		binary.LittleEndian.PutUint16(dst, uint16(r))
	case 4:
		binary.LittleEndian.PutUint32(dst, uint32(r))
	case 8:
		binary.LittleEndian.PutUint64(dst, r)
	}
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
