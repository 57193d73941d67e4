package dtpack

import (
	"context"
	"sync"
	"unsafe"

	"github.com/dtpack/dtpack/internal/dtype"
	"github.com/dtpack/dtpack/internal/gpudriver"
)

// NewTestContext builds a Context wired with a local in-process driver,
// the configuration test callers almost always want: a small slab so chunk
// boundaries are easy to hit deliberately, and a nil Registerer so metrics
// register against a throwaway prometheus registry instead of colliding
// with other tests' DefaultRegisterer.
func NewTestContext(slabSize uintptr, opts ...LocalDriverOption) (*Context, error) {
	if slabSize == 0 {
		slabSize = 4096
	}
	c, err := NewContext(Config{SlabSize: slabSize}, nil)
	if err != nil {
		return nil, err
	}
	c.RegisterDriver(NewLocalDriver(1, opts...))
	return c, nil
}

// MustPredefined looks up seed's Type and panics on failure, for test
// bodies that would otherwise spend a line on `require.NoError` for a
// lookup that cannot fail against a correctly built Context.
func MustPredefined(c *Context, seed PredefinedSeed) *Type {
	t, err := c.Predefined(seed)
	if err != nil {
		panic(err)
	}
	return t
}

// CountingDriver wraps a GPUDriver and tallies how many times each
// capability method was invoked, so tests can assert a request was routed
// through the backend (and not silently handled some other way) without
// reaching into the progress engine's internals.
type CountingDriver struct {
	GPUDriver

	mu          sync.Mutex
	ipackCalls  int
	iunpackCall int
	mallocCalls int
}

// NewCountingDriver wraps an existing driver for call tracking.
func NewCountingDriver(d GPUDriver) *CountingDriver {
	return &CountingDriver{GPUDriver: d}
}

func (d *CountingDriver) IPack(ctx context.Context, in, out unsafe.Pointer, n uintptr, t *dtype.Type) (gpudriver.Event, error) {
	d.mu.Lock()
	d.ipackCalls++
	d.mu.Unlock()
	return d.GPUDriver.IPack(ctx, in, out, n, t)
}

func (d *CountingDriver) IUnpack(ctx context.Context, in, out unsafe.Pointer, n uintptr, t *dtype.Type, op ReduceOp) (gpudriver.Event, error) {
	d.mu.Lock()
	d.iunpackCall++
	d.mu.Unlock()
	return d.GPUDriver.IUnpack(ctx, in, out, n, t, op)
}

func (d *CountingDriver) MallocDevice(device int, size uintptr) (unsafe.Pointer, error) {
	d.mu.Lock()
	d.mallocCalls++
	d.mu.Unlock()
	return d.GPUDriver.MallocDevice(device, size)
}

// CallCounts reports how many times each tracked method fired.
func (d *CountingDriver) CallCounts() (ipack, iunpack, malloc int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ipackCalls, d.iunpackCall, d.mallocCalls
}
