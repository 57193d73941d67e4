// Package gpudriver defines the GPU backend capability interface: the
// explicit, small "capability record" a concrete driver (CUDA/HIP/ZE, or
// the in-process local.Driver this module ships) must implement so the
// progress engine can issue pack/unpack kernels and chain their completion
// events, without the rest of this module depending on any specific vendor
// SDK.
package gpudriver

import (
	"context"
	"unsafe"

	"github.com/dtpack/dtpack/internal/classify"
	"github.com/dtpack/dtpack/internal/dtype"
	"github.com/dtpack/dtpack/internal/kernel"
)

// ReduceOp is the commutative elementwise reduction a backend's IUnpack may
// apply; it is the same enumeration internal/kernel uses for the sequential
// fallback, so a chunk's reduction semantics do not change depending on
// which engine happens to service it.
type ReduceOp = kernel.ReduceOp

const (
	OpSum     = kernel.OpSum
	OpProd    = kernel.OpProd
	OpMin     = kernel.OpMin
	OpMax     = kernel.OpMax
	OpLAnd    = kernel.OpLAnd
	OpLOr     = kernel.OpLOr
	OpLXor    = kernel.OpLXor
	OpBAnd    = kernel.OpBAnd
	OpBOr     = kernel.OpBOr
	OpBXor    = kernel.OpBXor
	OpReplace = kernel.OpReplace
	OpNoOp    = kernel.OpNoOp
)

// Event is a move-only owned handle to an asynchronous completion. Its
// destruction implies synchronization: a backend must guarantee that once
// Destroy has been called (after Done reports true, or after Synchronize),
// any effects the event guarded are visible. Callers never copy an Event
// after it has been handed out by IPack/IUnpack; the progress engine treats
// one chunk's events as solely owned by that chunk.
type Event interface {
	// Record arms the event against whatever asynchronous work produced it.
	// Drivers whose work is already recorded at creation may no-op.
	Record() error
	// Synchronize blocks the calling goroutine until the event completes.
	Synchronize() error
	// Done performs a non-blocking completion check.
	Done() (bool, error)
	// Destroy releases backend resources. Must be called exactly once.
	Destroy() error
}

// Driver is the capability record a GPU backend exposes. It is an explicit
// interface rather than a vtable of unsafe function pointers: there are at
// most a handful of backends registered at runtime, so static dispatch
// costs nothing and keeps the boundary type-checked.
type Driver interface {
	// DriverID identifies this backend among the registry; also satisfies
	// classify.Prober so the same value can be registered with the pointer
	// classifier.
	DriverID() int

	GetPtrAttr(ptr unsafe.Pointer) (classify.Attr, bool)

	// PupIsSupported reports whether this backend can pack/unpack t at all;
	// the dispatcher fails with NOT_SUPPORTED when it cannot, and the
	// caller is expected to fall back to flattening the type.
	PupIsSupported(t *dtype.Type) (bool, error)

	// IPack issues an asynchronous pack of n elements of t from in to out
	// and returns an event tracking its completion.
	IPack(ctx context.Context, in, out unsafe.Pointer, n uintptr, t *dtype.Type) (Event, error)

	// IUnpack issues an asynchronous unpack (optionally combined with op)
	// of n elements of t from in to out.
	IUnpack(ctx context.Context, in, out unsafe.Pointer, n uintptr, t *dtype.Type, op ReduceOp) (Event, error)

	MallocDevice(device int, size uintptr) (unsafe.Pointer, error)
	MallocHost(size uintptr) (unsafe.Pointer, error)
	Free(ptr unsafe.Pointer, device int) error

	// CheckP2P reports whether srcDevice can transfer directly to dstDevice
	// without host staging.
	CheckP2P(srcDevice, dstDevice int) (bool, error)

	// AddDependency registers onto as a dependency of e's underlying
	// stream, used by staged D2D transfers to chain the intermediate event
	// into the destination-side kernel.
	AddDependency(e, onto Event) error
}
