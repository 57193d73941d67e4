package dtype

import "unsafe"

// Pair types mirroring yaksa's predefined MPI-style "value_index" and
// complex predefined types. Go has no native long double; it is approximated
// with float64, matching the common LP64 ABI's long double-degrades-to-double
// fallback used by several MPICH ports.
type (
	FloatIntPair          struct {
		X float32
		Y int32
	}
	DoubleIntPair struct {
		X float64
		Y int32
	}
	LongIntPair struct {
		X int64
		Y int32
	}
	TwoIntPair struct {
		X, Y int32
	}
	ShortIntPair struct {
		X int16
		Y int32
	}
	LongDoubleIntPair struct {
		X float64
		Y int32
	}
	ComplexFloatPair struct {
		X, Y float32
	}
	ComplexDoublePair struct {
		X, Y float64
	}
	ComplexLongDoublePair struct {
		X, Y float64
	}
)

func alignOf[T any]() uintptr {
	var v T
	return unsafe.Alignof(v)
}

func sizeOf[T any]() uintptr {
	var v T
	return unsafe.Sizeof(v)
}

// NewBuiltin constructs a leaf node for a predefined scalar or pair type.
// seedID is the context-independent seed id (root package's PredefinedSeed)
// used to re-resolve this leaf against a context's predefined table when
// unflattening. Builtins are, like every other node, refcounted; a context's
// predefined table holds the reference that keeps them alive for the
// context's lifetime, and callers Incref when handing out further copies.
func NewBuiltin(seedID uint32, name string, size, alignment uintptr) *Type {
	t := newNode(Builtin)
	t.Size = size
	t.Extent = size
	t.LB = 0
	t.UB = int64(size)
	t.TrueLB = 0
	t.TrueUB = int64(size)
	t.IsContig = true
	t.NumContig = 1
	t.Alignment = alignment
	t.TreeDepth = 0
	t.BuiltinPayload = &BuiltinPayload{SeedID: seedID, Name: name}
	return t
}

// builtinSpec describes one predefined type by its Go analogue, used to
// derive size and natural alignment uniformly instead of hand-maintaining a
// table of magic numbers.
type builtinSpec struct {
	name string
	size uintptr
	align uintptr
}

// BuiltinSizeAlign returns (size, alignment) for the scalar/pair kinds this
// package knows how to represent natively, keyed by name (matching the
// PredefinedSeed names the root package uses). Returns ok=false for NULL.
func BuiltinSizeAlign(name string) (size, alignment uintptr, ok bool) {
	specs := map[string]builtinSpec{
		"bool":                    {size: sizeOf[bool](), align: alignOf[bool]()},
		"int8":                    {size: sizeOf[int8](), align: alignOf[int8]()},
		"uint8":                   {size: sizeOf[uint8](), align: alignOf[uint8]()},
		"int16":                   {size: sizeOf[int16](), align: alignOf[int16]()},
		"uint16":                  {size: sizeOf[uint16](), align: alignOf[uint16]()},
		"int32":                   {size: sizeOf[int32](), align: alignOf[int32]()},
		"uint32":                  {size: sizeOf[uint32](), align: alignOf[uint32]()},
		"int64":                   {size: sizeOf[int64](), align: alignOf[int64]()},
		"uint64":                  {size: sizeOf[uint64](), align: alignOf[uint64]()},
		"float":                   {size: sizeOf[float32](), align: alignOf[float32]()},
		"double":                  {size: sizeOf[float64](), align: alignOf[float64]()},
		"long_double":             {size: sizeOf[float64](), align: alignOf[float64]()},
		"float_int":               {size: sizeOf[FloatIntPair](), align: alignOf[FloatIntPair]()},
		"double_int":              {size: sizeOf[DoubleIntPair](), align: alignOf[DoubleIntPair]()},
		"long_int":                {size: sizeOf[LongIntPair](), align: alignOf[LongIntPair]()},
		"2int":                    {size: sizeOf[TwoIntPair](), align: alignOf[TwoIntPair]()},
		"short_int":               {size: sizeOf[ShortIntPair](), align: alignOf[ShortIntPair]()},
		"long_double_int":         {size: sizeOf[LongDoubleIntPair](), align: alignOf[LongDoubleIntPair]()},
		"c_complex":               {size: sizeOf[ComplexFloatPair](), align: alignOf[ComplexFloatPair]()},
		"c_double_complex":        {size: sizeOf[ComplexDoublePair](), align: alignOf[ComplexDoublePair]()},
		"c_long_double_complex":   {size: sizeOf[ComplexLongDoublePair](), align: alignOf[ComplexLongDoublePair]()},
		"byte":                    {size: sizeOf[byte](), align: alignOf[byte]()},
		"size_t":                  {size: sizeOf[uint64](), align: alignOf[uint64]()},
		"intptr_t":                {size: sizeOf[int64](), align: alignOf[int64]()},
		"uintptr_t":                {size: sizeOf[uint64](), align: alignOf[uint64]()},
		"ptrdiff_t":               {size: sizeOf[int64](), align: alignOf[int64]()},
	}
	spec, ok := specs[name]
	if !ok {
		return 0, 0, false
	}
	return spec.size, spec.align, true
}
