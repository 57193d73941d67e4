// Package dtype implements the recursive datatype algebra: the nine node
// kinds, their derived shape invariants, refcounted lifecycle, and the
// flatten/unflatten wire codec. It has no notion of handles, contexts or
// backends — those live in the root dtpack package and internal/handle.
package dtype

import (
	"errors"
	"sync/atomic"
)

// Sentinel errors translated into the public error taxonomy by the root
// package (dtpack.Error wraps one of these with its Code).
var (
	ErrBadArgs  = errors.New("dtype: invalid constructor arguments")
	ErrInternal = errors.New("dtype: invariant violation")
)

// Kind is the closed set of datatype node kinds (a tagged sum type,
// dispatched by switch rather than a virtual table).
type Kind int

const (
	Builtin Kind = iota
	Contig
	Dup
	Resized
	HVector
	BlkHindx
	Hindexed
	Struct
	Subarray
)

func (k Kind) String() string {
	switch k {
	case Builtin:
		return "BUILTIN"
	case Contig:
		return "CONTIG"
	case Dup:
		return "DUP"
	case Resized:
		return "RESIZED"
	case HVector:
		return "HVECTOR"
	case BlkHindx:
		return "BLKHINDX"
	case Hindexed:
		return "HINDEXED"
	case Struct:
		return "STRUCT"
	case Subarray:
		return "SUBARRAY"
	default:
		return "UNKNOWN"
	}
}

// Type is one node of a datatype tree. Shape invariants are computed once at
// construction and are immutable thereafter; only refcount changes over the
// node's life.
type Type struct {
	Kind      Kind
	TreeDepth int

	Alignment uintptr
	Size      uintptr
	Extent    uintptr
	LB        int64
	UB        int64
	TrueLB    int64
	TrueUB    int64
	IsContig  bool
	NumContig uintptr

	refcount atomic.Int64

	// Exactly one payload is non-nil, selected by Kind.
	ContigPayload   *ContigPayload
	DupPayload      *DupPayload
	ResizedPayload  *ResizedPayload
	HVectorPayload  *HVectorPayload
	BlkHindxPayload *BlkHindxPayload
	HindexedPayload *HindexedPayload
	StructPayload   *StructPayload
	SubarrayPayload *SubarrayPayload
	BuiltinPayload  *BuiltinPayload
}

type ContigPayload struct {
	Count int
	Child *Type
}

type DupPayload struct {
	Child *Type
}

type ResizedPayload struct {
	Child *Type
}

type HVectorPayload struct {
	Count, Blocklength int
	Stride             int64
	Child              *Type
}

type BlkHindxPayload struct {
	Count, Blocklength int
	Displs             []int64
	Child              *Type
}

type HindexedPayload struct {
	Count         int
	Blocklengths  []int
	Displs        []int64
	Child         *Type
}

type StructPayload struct {
	Count        int
	Blocklengths []int
	Displs       []int64
	Types        []*Type
}

// SubarrayPayload keeps the original dimension count for introspection even
// though Primary (a chain of HVECTORs) is what actually drives pack/unpack.
type SubarrayPayload struct {
	Ndims   int
	Primary *Type
}

type BuiltinPayload struct {
	// SeedID is the context-independent predefined-type seed (see the root
	// package's PredefinedSeed enumeration) used to re-resolve this leaf
	// against a context's predefined table on Unflatten.
	SeedID uint32
	Name   string
}

// Refcount returns the current reference count, for tests and diagnostics.
func (t *Type) Refcount() int64 { return t.refcount.Load() }

// newNode allocates a Type with refcount 1.
func newNode(kind Kind) *Type {
	t := &Type{Kind: kind}
	t.refcount.Store(1)
	return t
}

// Incref bumps the refcount. Called once per new reference taken on t
// (another node storing t as a child, or a handle table entry).
func (t *Type) Incref() {
	t.refcount.Add(1)
}

// Free decrements the refcount. When it reaches zero, children are
// released recursively (their own refcounts decremented in turn) and the
// node's payload becomes eligible for garbage collection. Builtin leaves are
// never actually destroyed by the caller of Free; the context predefined
// table holds the first reference for the lifetime of the context.
func (t *Type) Free() error {
	remaining := t.refcount.Add(-1)
	if remaining > 0 {
		return nil
	}
	if remaining < 0 {
		return ErrInternal
	}
	for _, c := range t.children() {
		if err := c.Free(); err != nil {
			return err
		}
	}
	return nil
}

func (t *Type) children() []*Type {
	switch t.Kind {
	case Contig:
		return []*Type{t.ContigPayload.Child}
	case Dup:
		return []*Type{t.DupPayload.Child}
	case Resized:
		return []*Type{t.ResizedPayload.Child}
	case HVector:
		return []*Type{t.HVectorPayload.Child}
	case BlkHindx:
		return []*Type{t.BlkHindxPayload.Child}
	case Hindexed:
		return []*Type{t.HindexedPayload.Child}
	case Struct:
		return t.StructPayload.Types
	case Subarray:
		return []*Type{t.SubarrayPayload.Primary}
	default:
		return nil
	}
}

// Validate re-checks the is_contig derivation invariant; used by tests and
// by Internal-error assertions rather than trusted blindly.
func (t *Type) Validate() error {
	if t.IsContig && (t.Size != t.Extent || t.TrueLB != 0 || t.TrueUB != int64(t.Size)) {
		return ErrInternal
	}
	return nil
}
