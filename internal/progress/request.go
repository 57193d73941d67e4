package progress

import (
	"sync/atomic"
	"unsafe"

	"github.com/dtpack/dtpack/internal/dtype"
	"github.com/dtpack/dtpack/internal/gpudriver"
)

// PupType distinguishes the two directions a subrequest can move data: PACK
// reads a typed (strided) buffer and writes a packed (contiguous) stream;
// UNPACK is the inverse.
type PupType int

const (
	Pack PupType = iota
	Unpack
)

// Kind is the 15-way (less the synchronous H2H case, handled entirely by
// the dispatcher and never enqueued here) transport category derived from
// classifying a subrequest's in/out pointers.
type Kind int

const (
	KindD2RH Kind = iota
	KindD2URH
	KindRH2D
	KindURH2D
	KindD2DSingle
	KindD2DIPC
	KindD2DStaged
)

func (k Kind) String() string {
	switch k {
	case KindD2RH:
		return "D2RH"
	case KindD2URH:
		return "D2URH"
	case KindRH2D:
		return "RH2D"
	case KindURH2D:
		return "URH2D"
	case KindD2DSingle:
		return "D2D_SINGLE"
	case KindD2DIPC:
		return "D2D_IPC"
	case KindD2DStaged:
		return "D2D_STAGED"
	default:
		return "UNKNOWN"
	}
}

// needsDeviceSlab and needsHostSlab implement the slab requirement table:
// which temp-buffer rings a kind's chunks must reserve space in before they
// can be issued.
func (k Kind) needsDeviceSlab() bool {
	switch k {
	case KindD2RH, KindD2URH, KindD2DIPC, KindD2DStaged:
		return true
	default:
		return false
	}
}

func (k Kind) needsHostSlab() bool {
	switch k {
	case KindD2URH, KindRH2D, KindURH2D, KindD2DStaged:
		return true
	default:
		return false
	}
}

// NeedsDeviceSlab and NeedsHostSlab expose the slab requirement table to
// callers outside this package (the dispatcher uses it to reject element
// types too large for the configured slab before ever enqueuing them).
func (k Kind) NeedsDeviceSlab() bool { return k.needsDeviceSlab() }
func (k Kind) NeedsHostSlab() bool   { return k.needsHostSlab() }

// EnqueueRequest describes one indirect subrequest handed to the engine by
// the dispatcher. CompletionCounter must already be incremented by the
// caller (typically to 1) before Enqueue is called; the engine decrements
// it exactly once, when the subrequest's last chunk retires or when the
// subrequest fails.
type EnqueueRequest struct {
	Kind      Kind
	Pup       PupType
	Driver    gpudriver.Driver
	InDevice  int
	OutDevice int

	Inbuf, Outbuf unsafe.Pointer
	Type          *dtype.Type
	Count         uintptr
	ReduceOp      gpudriver.ReduceOp

	// CompletionCounter must already carry the caller's pending-subrequest
	// increment (normally 1) before Enqueue is called; the engine calls
	// Add(-1) exactly once, when this subrequest's last chunk retires or
	// when it fails.
	CompletionCounter *atomic.Int64
}
