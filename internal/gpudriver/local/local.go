// Package local provides an in-process, CPU-simulated "GPU" backend: the
// stand-in this module ships for the CUDA/HIP/ZE drivers that are out of
// scope, so the full classify → dispatch → progress → event lifecycle can
// be exercised by tests and cmd/dtpack-bench without real hardware. Device
// and pinned-host memory are plain Go heap arenas, laid out in lock shards
// like the reference host-memory backend this package is descended from
// (the simulated kernels do not take those locks); "async" kernels run on a
// background goroutine gated by an injectable artificial latency.
package local

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/dtpack/dtpack/internal/classify"
	"github.com/dtpack/dtpack/internal/dtype"
	"github.com/dtpack/dtpack/internal/gpudriver"
	"github.com/dtpack/dtpack/internal/kernel"
)

// ShardSize is the number of arena bytes covered by one entry of an arena's
// shards slice. Chosen to match the reference host-memory backend this
// package's arena layout is descended from.
const ShardSize = 64 * 1024

// arena is a heap-backed memory region with one RWMutex allocated per
// ShardSize bytes. No code in this package locks those shards: IPack and
// IUnpack access arena memory without taking them.
type arena struct {
	data   []byte
	shards []sync.RWMutex
}

func newArena(size uintptr) *arena {
	n := (size + ShardSize - 1) / ShardSize
	if n == 0 {
		n = 1
	}
	return &arena{data: make([]byte, size), shards: make([]sync.RWMutex, n)}
}

func (a *arena) basePtr() unsafe.Pointer {
	if len(a.data) == 0 {
		return nil
	}
	return unsafe.Pointer(&a.data[0])
}

type region struct {
	start, end uintptr
	kind       classify.Kind
	device     int
	arena      *arena
}

// Driver is the local in-process backend.
type Driver struct {
	id int

	latency time.Duration

	mu      sync.RWMutex
	regions []region
	p2p     map[[2]int]bool
}

// Option configures a Driver at construction.
type Option func(*Driver)

// WithLatency sets the artificial delay local.Driver's events wait out
// before reporting completion, simulating asynchronous kernel launch.
func WithLatency(d time.Duration) Option {
	return func(drv *Driver) { drv.latency = d }
}

// WithP2P marks a pair of device ids as able to transfer without host
// staging, driving the D2D_IPC vs D2D_STAGED dispatcher decision in tests.
func WithP2P(a, b int) Option {
	return func(drv *Driver) {
		drv.p2p[[2]int{a, b}] = true
		drv.p2p[[2]int{b, a}] = true
	}
}

// New constructs a local driver identified by id.
func New(id int, opts ...Option) *Driver {
	d := &Driver{id: id, p2p: make(map[[2]int]bool)}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Driver) DriverID() int { return d.id }

// GetPtrAttr satisfies both gpudriver.Driver and classify.Prober.
func (d *Driver) GetPtrAttr(ptr unsafe.Pointer) (classify.Attr, bool) {
	addr := uintptr(ptr)
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, r := range d.regions {
		if addr >= r.start && addr < r.end {
			return classify.Attr{Kind: r.kind, DeviceID: r.device, DriverID: d.id}, true
		}
	}
	return classify.Attr{}, false
}

func (d *Driver) PupIsSupported(t *dtype.Type) (bool, error) {
	return kernel.PupIsSupported(t), nil
}

func (d *Driver) MallocDevice(device int, size uintptr) (unsafe.Pointer, error) {
	a := newArena(size)
	d.registerRegion(a, classify.GPU, device)
	return a.basePtr(), nil
}

func (d *Driver) MallocHost(size uintptr) (unsafe.Pointer, error) {
	a := newArena(size)
	d.registerRegion(a, classify.RegisteredHost, -1)
	return a.basePtr(), nil
}

func (d *Driver) registerRegion(a *arena, kind classify.Kind, device int) {
	start := uintptr(0)
	if len(a.data) > 0 {
		start = uintptr(unsafe.Pointer(&a.data[0]))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regions = append(d.regions, region{
		start: start, end: start + uintptr(len(a.data)), kind: kind, device: device, arena: a,
	})
}

func (d *Driver) Free(ptr unsafe.Pointer, device int) error {
	addr := uintptr(ptr)
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, r := range d.regions {
		if r.start == addr {
			d.regions = append(d.regions[:i], d.regions[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("local: free of untracked pointer")
}

func (d *Driver) CheckP2P(srcDevice, dstDevice int) (bool, error) {
	if srcDevice == dstDevice {
		return true, nil
	}
	return d.p2p[[2]int{srcDevice, dstDevice}], nil
}

func (d *Driver) AddDependency(e, onto gpudriver.Event) error {
	le, ok := e.(*event)
	if !ok {
		return fmt.Errorf("local: AddDependency on foreign event type")
	}
	le.addDependency(onto)
	return nil
}

// IPack constructs an event carrying the pack work but does not start it:
// the caller registers dependencies via AddDependency if this chunk is part
// of a staged transfer, then calls Event.Record (or Synchronize, which
// records implicitly) to begin the simulated asynchronous kernel.
func (d *Driver) IPack(ctx context.Context, in, out unsafe.Pointer, n uintptr, t *dtype.Type) (gpudriver.Event, error) {
	ev := newEvent(func() error {
		_, err := kernel.Pack(in, int(n), t, 0, out, n*t.Size)
		return err
	}, d.latency)
	return ev, nil
}

func (d *Driver) IUnpack(ctx context.Context, in, out unsafe.Pointer, n uintptr, t *dtype.Type, op gpudriver.ReduceOp) (gpudriver.Event, error) {
	ev := newEvent(func() error {
		if op == gpudriver.OpNoOp {
			return nil
		}
		var err error
		if op == gpudriver.OpReplace {
			_, err = kernel.Unpack(in, n*t.Size, out, int(n), t, 0)
		} else {
			_, err = kernel.AccumulateUnpack(in, n*t.Size, out, int(n), t, 0, op)
		}
		return err
	}, d.latency)
	return ev, nil
}
