package dtpack

import "github.com/dtpack/dtpack/internal/dtype"

// PredefinedSeed enumerates the primitive kinds every Context resolves to a
// handle at construction time (spec §6's type_get_predefined table).
type PredefinedSeed uint32

const (
	SeedBool PredefinedSeed = iota + 1
	SeedInt8
	SeedUint8
	SeedInt16
	SeedUint16
	SeedInt32
	SeedUint32
	SeedInt64
	SeedUint64
	SeedFloat
	SeedDouble
	SeedLongDouble
	SeedFloatInt
	SeedDoubleInt
	SeedLongInt
	SeedTwoInt
	SeedShortInt
	SeedLongDoubleInt
	SeedComplexFloat
	SeedComplexDouble
	SeedComplexLongDouble
	SeedByte
	SeedSizeT
	SeedIntptrT
	SeedUintptrT
	SeedPtrdiffT
	SeedNull
)

// name returns the internal/dtype.BuiltinSizeAlign key for seed, or "" for
// the reserved SeedNull.
func (s PredefinedSeed) name() string {
	switch s {
	case SeedBool:
		return "bool"
	case SeedInt8:
		return "int8"
	case SeedUint8:
		return "uint8"
	case SeedInt16:
		return "int16"
	case SeedUint16:
		return "uint16"
	case SeedInt32:
		return "int32"
	case SeedUint32:
		return "uint32"
	case SeedInt64:
		return "int64"
	case SeedUint64:
		return "uint64"
	case SeedFloat:
		return "float"
	case SeedDouble:
		return "double"
	case SeedLongDouble:
		return "long_double"
	case SeedFloatInt:
		return "float_int"
	case SeedDoubleInt:
		return "double_int"
	case SeedLongInt:
		return "long_int"
	case SeedTwoInt:
		return "2int"
	case SeedShortInt:
		return "short_int"
	case SeedLongDoubleInt:
		return "long_double_int"
	case SeedComplexFloat:
		return "c_complex"
	case SeedComplexDouble:
		return "c_double_complex"
	case SeedComplexLongDouble:
		return "c_long_double_complex"
	case SeedByte:
		return "byte"
	case SeedSizeT:
		return "size_t"
	case SeedIntptrT:
		return "intptr_t"
	case SeedUintptrT:
		return "uintptr_t"
	case SeedPtrdiffT:
		return "ptrdiff_t"
	default:
		return ""
	}
}

// allSeeds is the predefined table's fixed enumeration order.
var allSeeds = []PredefinedSeed{
	SeedBool, SeedInt8, SeedUint8, SeedInt16, SeedUint16, SeedInt32, SeedUint32,
	SeedInt64, SeedUint64, SeedFloat, SeedDouble, SeedLongDouble,
	SeedFloatInt, SeedDoubleInt, SeedLongInt, SeedTwoInt, SeedShortInt,
	SeedLongDoubleInt, SeedComplexFloat, SeedComplexDouble, SeedComplexLongDouble,
	SeedByte, SeedSizeT, SeedIntptrT, SeedUintptrT, SeedPtrdiffT,
}

// buildPredefined constructs the backing *dtype.Type for every non-null
// seed, keyed by seed id so Context.Predefined and dtype.Unflatten's
// BuiltinResolver can look them up in O(1).
func buildPredefined() map[PredefinedSeed]*dtype.Type {
	table := make(map[PredefinedSeed]*dtype.Type, len(allSeeds))
	for _, seed := range allSeeds {
		size, align, ok := dtype.BuiltinSizeAlign(seed.name())
		if !ok {
			continue
		}
		table[seed] = dtype.NewBuiltin(uint32(seed), seed.name(), size, align)
	}
	return table
}
