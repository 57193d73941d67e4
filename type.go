package dtpack

import (
	"github.com/dtpack/dtpack/internal/dtype"
	"github.com/dtpack/dtpack/internal/handle"
)

// Type is a handle to a node of a datatype tree (spec §3 "Datatype tree").
// Shape invariants are fixed at construction; only Free mutates a Type's
// lifecycle, by dropping this handle's reference.
type Type struct {
	ctx   *Context
	objID uint32
	dt    *dtype.Type
}

// wrapType registers dt under a fresh handle in ctx's type pool. dt's
// refcount must already reflect the reference this Type holds (the caller
// either just constructed dt with refcount 1, or Increfed an existing
// node).
func (c *Context) wrapType(dt *dtype.Type) *Type {
	objID := c.typePool.Alloc(dt)
	return &Type{ctx: c, objID: objID, dt: dt}
}

// Handle returns the type's opaque 64-bit handle (spec §6 "Handle
// encoding"): context id in the upper 32 bits, object id in the lower 32.
func (t *Type) Handle() handle.ID { return handle.Encode(t.ctx.id, t.objID) }

// Size returns the number of bytes actually touched per element.
func (t *Type) Size() uintptr { return t.dt.Size }

// Extent returns the stride in bytes between consecutive elements of an
// array of this type (ub - lb).
func (t *Type) Extent() uintptr { return t.dt.Extent }

// TrueExtent returns the tightest span over actually-touched bytes
// (true_ub - true_lb), which may differ from Extent when lb/ub were set
// explicitly via Resized.
func (t *Type) TrueExtent() uintptr {
	return uintptr(t.dt.TrueUB - t.dt.TrueLB)
}

// LB and UB return the user-visible lower/upper bound.
func (t *Type) LB() int64 { return t.dt.LB }
func (t *Type) UB() int64 { return t.dt.UB }

// IsContig reports whether an array of this type is bytewise contiguous.
func (t *Type) IsContig() bool { return t.dt.IsContig }

// NumContig returns the number of maximal contiguous byte runs one element
// of this type unrolls into.
func (t *Type) NumContig() uintptr { return t.dt.NumContig }

// Free decrements the type's refcount, per spec §4.1's lifecycle: on
// reaching zero, children are released recursively and the handle is
// removed from the pool.
func (t *Type) Free() error {
	if _, dropped, ok := t.ctx.typePool.Decref(t.objID); ok && dropped {
		if err := t.dt.Free(); err != nil {
			return NewTypeError("TypeFree", uint64(t.Handle()), CodeInternal, err.Error())
		}
	}
	return nil
}

// FlattenSize returns the exact byte length Flatten will produce.
func (t *Type) FlattenSize() (uintptr, error) {
	n, err := dtype.FlattenSize(t.dt)
	if err != nil {
		return 0, NewTypeError("FlattenSize", uint64(t.Handle()), CodeInternal, err.Error())
	}
	return n, nil
}

// Flatten serializes the type's whole subtree into a self-describing,
// little-endian, context-independent byte buffer (spec §4.1).
func (t *Type) Flatten() ([]byte, error) {
	b, err := dtype.Flatten(t.dt)
	if err != nil {
		return nil, NewTypeError("Flatten", uint64(t.Handle()), CodeInternal, err.Error())
	}
	return b, nil
}

// Unflatten reconstructs a Type from a buffer produced by Flatten, in this
// context: builtin leaves are resolved against this context's predefined
// table and refcounted rather than reallocated (spec §4.1).
func (c *Context) Unflatten(data []byte) (*Type, error) {
	dt, err := dtype.Unflatten(data, c.resolveBuiltin)
	if err != nil {
		return nil, NewError("Unflatten", CodeBadArgs, err.Error())
	}
	return c.wrapType(dt), nil
}

func (c *Context) nestingLimit() int { return c.cfg.NestingLevel }

func toDtypeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	switch err {
	case dtype.ErrBadArgs:
		return NewError(op, CodeBadArgs, err.Error())
	case dtype.ErrInternal:
		return NewError(op, CodeInternal, err.Error())
	default:
		return NewError(op, CodeInternal, err.Error())
	}
}

// TypeCreateContig builds CONTIG(count, child) (spec §4.1).
func (c *Context) TypeCreateContig(count int, child *Type) (*Type, error) {
	dt, err := dtype.NewContig(count, child.dt, c.nestingLimit())
	if err != nil {
		return nil, toDtypeErr("TypeCreateContig", err)
	}
	return c.wrapType(dt), nil
}

// TypeCreateDup builds DUP(child): a pass-through copy under a new
// identity.
func (c *Context) TypeCreateDup(child *Type) (*Type, error) {
	dt, err := dtype.NewDup(child.dt, c.nestingLimit())
	if err != nil {
		return nil, toDtypeErr("TypeCreateDup", err)
	}
	return c.wrapType(dt), nil
}

// TypeCreateResized builds RESIZED(child, lb, extent).
func (c *Context) TypeCreateResized(child *Type, lb int64, extent uintptr) (*Type, error) {
	dt, err := dtype.NewResized(child.dt, lb, extent, c.nestingLimit())
	if err != nil {
		return nil, toDtypeErr("TypeCreateResized", err)
	}
	return c.wrapType(dt), nil
}

// TypeCreateHVector builds HVECTOR(count, blocklength, stride, child).
func (c *Context) TypeCreateHVector(count, blocklength int, stride int64, child *Type) (*Type, error) {
	dt, err := dtype.NewHVector(count, blocklength, stride, child.dt, c.nestingLimit())
	if err != nil {
		return nil, toDtypeErr("TypeCreateHVector", err)
	}
	return c.wrapType(dt), nil
}

// TypeCreateHindexedBlock builds BLKHINDX(count, blocklength, displs,
// child): a block-indexed type where every block shares one blocklength.
func (c *Context) TypeCreateHindexedBlock(count, blocklength int, displs []int64, child *Type) (*Type, error) {
	dt, err := dtype.NewBlkHindx(count, blocklength, displs, child.dt, c.nestingLimit())
	if err != nil {
		return nil, toDtypeErr("TypeCreateHindexedBlock", err)
	}
	return c.wrapType(dt), nil
}

// TypeCreateHindexed builds HINDEXED(count, blocklengths, displs, child).
func (c *Context) TypeCreateHindexed(blocklengths []int, displs []int64, child *Type) (*Type, error) {
	dt, err := dtype.NewHindexed(len(blocklengths), blocklengths, displs, child.dt, c.nestingLimit())
	if err != nil {
		return nil, toDtypeErr("TypeCreateHindexed", err)
	}
	return c.wrapType(dt), nil
}

// TypeCreateStruct builds STRUCT(blocklengths, displs, types).
func (c *Context) TypeCreateStruct(blocklengths []int, displs []int64, types []*Type) (*Type, error) {
	children := make([]*dtype.Type, len(types))
	for i, ty := range types {
		children[i] = ty.dt
	}
	dt, err := dtype.NewStruct(len(blocklengths), blocklengths, displs, children, c.nestingLimit())
	if err != nil {
		return nil, toDtypeErr("TypeCreateStruct", err)
	}
	return c.wrapType(dt), nil
}

// SubarrayOrder mirrors spec §4.1's SUBARRAY "order" parameter.
type SubarrayOrder = dtype.SubarrayOrder

const (
	OrderC       = dtype.OrderC
	OrderFortran = dtype.OrderFortran
)

// TypeCreateSubarray builds SUBARRAY(sizes, subsizes, starts, order,
// child), expressed internally as a chain of HVECTORs (spec §4.1).
func (c *Context) TypeCreateSubarray(sizes, subsizes, starts []int, order SubarrayOrder, child *Type) (*Type, error) {
	dt, err := dtype.NewSubarray(len(sizes), sizes, subsizes, starts, order, child.dt, c.nestingLimit())
	if err != nil {
		return nil, toDtypeErr("TypeCreateSubarray", err)
	}
	return c.wrapType(dt), nil
}
