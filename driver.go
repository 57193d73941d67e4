package dtpack

import (
	"github.com/dtpack/dtpack/internal/gpudriver"
	"github.com/dtpack/dtpack/internal/gpudriver/local"
)

// GPUDriver is the capability record a backend author implements to back
// GPU/registered-host transport for a Context: pointer attribute probing,
// async pack/unpack kernel launch, host/device allocation, P2P capability
// and event chaining (spec §4.1 "GPU backend interface", §9). Re-exported
// here so out-of-tree backends never need to import internal/gpudriver
// directly.
type GPUDriver = gpudriver.Driver

// Event is a move-only handle to a GPUDriver's asynchronous completion.
type Event = gpudriver.Event

// ReduceOp is the commutative elementwise reduction an accumulating
// unpack applies (spec §4.2).
type ReduceOp = gpudriver.ReduceOp

const (
	OpSum     = gpudriver.OpSum
	OpProd    = gpudriver.OpProd
	OpMin     = gpudriver.OpMin
	OpMax     = gpudriver.OpMax
	OpLAnd    = gpudriver.OpLAnd
	OpLOr     = gpudriver.OpLOr
	OpLXor    = gpudriver.OpLXor
	OpBAnd    = gpudriver.OpBAnd
	OpBOr     = gpudriver.OpBOr
	OpBXor    = gpudriver.OpBXor
	OpReplace = gpudriver.OpReplace
	OpNoOp    = gpudriver.OpNoOp
)

// LocalDriverOption configures a local (in-process, CPU-simulated) driver.
type LocalDriverOption = local.Option

// WithLocalLatency sets the artificial delay a local driver's events wait
// out before reporting completion, simulating asynchronous kernel launch.
var WithLocalLatency = local.WithLatency

// WithLocalP2P marks a pair of device ids as able to transfer without host
// staging on a local driver, driving the D2D_IPC vs D2D_STAGED decision.
var WithLocalP2P = local.WithP2P

// NewLocalDriver constructs the in-process, CPU-simulated driver this
// module ships as a stand-in for a real CUDA/HIP/ZE backend: plain Go heap
// arenas tagged as GPU/registered-host regions, with events that complete
// after an injectable artificial latency. Used by every test and by
// cmd/dtpack-bench so the full classify/dispatch/progress lifecycle can be
// exercised without real hardware.
func NewLocalDriver(id int, opts ...LocalDriverOption) GPUDriver {
	return local.New(id, opts...)
}
