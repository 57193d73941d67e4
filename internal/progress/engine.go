// Package progress implements the nonblocking progress engine: a FIFO queue
// of indirect subrequests, per-(gpu-driver,device) GPU slabs and one
// pinned-host slab per gpu-driver, and the reap/issue chunk lifecycle that
// drains them. It is the asynchronous half of pack/unpack; the dispatcher
// handles everything synchronous (H2H, and the decision to come here at
// all) before a subrequest ever reaches Enqueue.
package progress

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"github.com/dtpack/dtpack/internal/dtype"
	"github.com/dtpack/dtpack/internal/gpudriver"
	"github.com/dtpack/dtpack/internal/kernel"
	"github.com/dtpack/dtpack/internal/obsmetrics"
)

// DefaultSlabSize is TMPBUF_SLAB_SIZE: the size a GPU or pinned-host slab is
// lazily allocated at on first use.
const DefaultSlabSize uintptr = 16 << 20

// chunk is one bounded slice of an indirect subrequest's work, in flight
// against at most two backend events.
type chunk struct {
	nelems uintptr

	deviceSlab *Slab
	hostSlab   *Slab

	ev    gpudriver.Event
	evInt gpudriver.Event

	// postHook, if set, runs on the calling goroutine once ev reports done
	// and before the chunk's slab reservations are released: the host-side
	// step that a GPU can't perform directly against unregistered memory.
	postHook func() error
}

// entry is one enqueued indirect subrequest tracked by the engine.
type entry struct {
	req  EnqueueRequest
	kind Kind

	issuedElems    uintptr
	completedElems uintptr

	chunks []*chunk
	err    error
}

func (e *entry) done() bool {
	return e.completedElems == e.req.Count && e.err == nil
}

type slabKey struct {
	driverID int
	device   int
}

// Engine is a progress engine; each Context owns one. The zero value is not usable;
// construct with New.
type Engine struct {
	mu sync.Mutex

	slabSize uintptr
	metrics  *obsmetrics.Metrics

	queue []*entry

	deviceSlabs map[slabKey]*Slab
	hostSlabs   map[int]*Slab
}

// New constructs an Engine. metrics may be nil to disable observability.
func New(slabSize uintptr, metrics *obsmetrics.Metrics) *Engine {
	if slabSize == 0 {
		slabSize = DefaultSlabSize
	}
	return &Engine{
		slabSize:    slabSize,
		metrics:     metrics,
		deviceSlabs: make(map[slabKey]*Slab),
		hostSlabs:   make(map[int]*Slab),
	}
}

// Enqueue admits a new indirect subrequest and pokes the engine once, per
// the "progress is driven... as a side effect of enqueue" rule. The
// CompletionCounter on req must already reflect one pending subrequest.
func (e *Engine) Enqueue(req EnqueueRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if req.Type == nil {
		return fmt.Errorf("progress: nil type")
	}
	ent := &entry{req: req, kind: req.Kind}
	e.queue = append(e.queue, ent)
	return e.pokeLocked()
}

// Poke drains the head-of-queue request: reap completed chunks, then issue
// new ones while slab space and remaining work allow. Only the head
// element is touched per call, bounding work per poke to a small constant.
func (e *Engine) Poke() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pokeLocked()
}

// Pending reports whether any subrequest is still queued, for Wait's loop.
func (e *Engine) Pending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue) > 0
}

func (e *Engine) pokeLocked() error {
	if len(e.queue) == 0 {
		return nil
	}
	head := e.queue[0]

	if err := e.reap(head); err != nil {
		head.err = err
	}

	if head.err != nil {
		e.drain(head)
		e.dequeue(head)
		return head.err
	}

	if head.completedElems == head.req.Count {
		e.dequeue(head)
		return nil
	}

	for head.completedElems+head.issuedElems < head.req.Count {
		issued, err := e.issueChunk(head)
		if err != nil {
			head.err = err
			e.drain(head)
			e.dequeue(head)
			return err
		}
		if !issued {
			break
		}
	}
	return nil
}

func (e *Engine) dequeue(head *entry) {
	e.queue = e.queue[1:]
	head.req.CompletionCounter.Add(-1)
	if e.metrics != nil && head.err != nil {
		e.metrics.RequestsFailed.Inc()
	}
}

// drain destroys every chunk an entry still owns, in FIFO order, releasing
// their slab reservations, so a backend error never leaves the ring
// allocator holding stale state.
func (e *Engine) drain(head *entry) {
	for _, c := range head.chunks {
		e.releaseChunk(c)
	}
	head.chunks = nil
}

func (e *Engine) reap(head *entry) error {
	for len(head.chunks) > 0 {
		c := head.chunks[0]
		done, err := c.ev.Done()
		if err != nil {
			return err
		}
		if !done {
			break
		}
		if c.postHook != nil {
			if err := c.postHook(); err != nil {
				return err
			}
		}
		head.completedElems += c.nelems
		head.issuedElems -= c.nelems
		e.releaseChunk(c)
		head.chunks = head.chunks[1:]
		if e.metrics != nil {
			e.metrics.ChunksRetired.Inc()
		}
	}
	return nil
}

func (e *Engine) releaseChunk(c *chunk) {
	if c.deviceSlab != nil {
		c.deviceSlab.Release()
	}
	if c.hostSlab != nil {
		c.hostSlab.Release()
	}
	_ = c.ev.Destroy()
	if c.evInt != nil {
		_ = c.evInt.Destroy()
	}
}

func (e *Engine) deviceSlabFor(req *EnqueueRequest, device int) (*Slab, error) {
	key := slabKey{driverID: req.Driver.DriverID(), device: device}
	s, ok := e.deviceSlabs[key]
	if ok {
		return s, nil
	}
	base, err := req.Driver.MallocDevice(device, e.slabSize)
	if err != nil {
		return nil, err
	}
	s = NewSlab(base, e.slabSize)
	e.deviceSlabs[key] = s
	return s, nil
}

func (e *Engine) hostSlabFor(req *EnqueueRequest) (*Slab, error) {
	key := req.Driver.DriverID()
	s, ok := e.hostSlabs[key]
	if ok {
		return s, nil
	}
	base, err := req.Driver.MallocHost(e.slabSize)
	if err != nil {
		return nil, err
	}
	s = NewSlab(base, e.slabSize)
	e.hostSlabs[key] = s
	return s, nil
}

// issueChunk computes the largest nelems the required slabs allow, reserves
// them, and issues the backend operation(s) for head.kind. Returns
// issued=false (no error) when no slab has room for even one element right
// now; the caller should stop issuing and wait for a future reap to free
// space.
func (e *Engine) issueChunk(head *entry) (issued bool, err error) {
	req := &head.req
	t := req.Type
	remaining := req.Count - head.completedElems - head.issuedElems

	deviceDevice := req.InDevice
	if head.kind == KindRH2D || head.kind == KindURH2D {
		deviceDevice = req.OutDevice
	}

	var deviceSlab, hostSlab *Slab
	if head.kind.needsDeviceSlab() {
		deviceSlab, err = e.deviceSlabFor(req, deviceDevice)
		if err != nil {
			return false, err
		}
	}
	if head.kind.needsHostSlab() {
		hostSlab, err = e.hostSlabFor(req)
		if err != nil {
			return false, err
		}
	}

	nelems := remaining
	if head.kind != KindD2DSingle {
		nelems = clampBySlab(nelems, t.Size, deviceSlab)
		nelems = clampBySlab(nelems, t.Size, hostSlab)
		if nelems == 0 {
			return false, nil
		}
	}

	var deviceOff, hostOff uintptr
	if deviceSlab != nil {
		deviceOff, _ = deviceSlab.TryAlloc(nelems * t.Size)
	}
	if hostSlab != nil {
		hostOff, _ = hostSlab.TryAlloc(nelems * t.Size)
	}

	c := &chunk{nelems: nelems, deviceSlab: deviceSlab, hostSlab: hostSlab}

	off := head.completedElems + head.issuedElems
	if err := e.issueByKind(head, c, off, nelems, hostOff); err != nil {
		if deviceSlab != nil {
			deviceSlab.Release()
		}
		if hostSlab != nil {
			hostSlab.Release()
		}
		return false, err
	}

	head.chunks = append(head.chunks, c)
	head.issuedElems += nelems
	if e.metrics != nil {
		e.metrics.ChunksIssued.Inc()
		if deviceSlab != nil {
			e.metrics.ObserveSlabHighWater(fmt.Sprintf("gpu:%d:%d", req.Driver.DriverID(), deviceDevice), uint64(deviceSlab.Tail()))
		}
		if hostSlab != nil {
			e.metrics.ObserveSlabHighWater(fmt.Sprintf("host:%d", req.Driver.DriverID()), uint64(hostSlab.Tail()))
		}
	}
	return true, nil
}

func clampBySlab(nelems uintptr, elemSize uintptr, s *Slab) uintptr {
	if s == nil {
		return nelems
	}
	free := s.FreeContig()
	max := free / elemSize
	if max < nelems {
		return max
	}
	return nelems
}

func addOff(p unsafe.Pointer, off uintptr) unsafe.Pointer {
	return unsafe.Pointer(uintptr(p) + off)
}

// issueByKind builds and records the backend event(s) for one chunk,
// following the per-kind recipe. typedPtr/packedPtr are derived from Pup:
// PACK reads the typed side and writes the packed side; UNPACK inverts it.
func (e *Engine) issueByKind(head *entry, c *chunk, elemOff, nelems, hostOff uintptr) error {
	req := &head.req
	t := req.Type
	ctx := context.Background()

	var typedPtr, packedPtr unsafe.Pointer
	if req.Pup == Pack {
		typedPtr = addOff(req.Inbuf, elemOff*t.Extent)
		packedPtr = addOff(req.Outbuf, elemOff*t.Size)
	} else {
		typedPtr = addOff(req.Outbuf, elemOff*t.Extent)
		packedPtr = addOff(req.Inbuf, elemOff*t.Size)
	}

	switch head.kind {
	case KindD2RH, KindD2DIPC, KindD2DSingle:
		ev, err := kernelHop(ctx, req, typedPtr, packedPtr, nelems, t)
		if err != nil {
			return err
		}
		if err := ev.Record(); err != nil {
			return err
		}
		c.ev = ev
		return nil

	case KindD2URH:
		slabPtr := addOff(c.hostSlab.Base, hostOff)
		var ev gpudriver.Event
		var err error
		if req.Pup == Pack {
			ev, err = req.Driver.IPack(ctx, typedPtr, slabPtr, nelems, t)
		} else {
			ev, err = req.Driver.IPack(ctx, packedPtr, slabPtr, nelems*t.Size, identityByteType())
		}
		if err != nil {
			return err
		}
		if err := ev.Record(); err != nil {
			return err
		}
		c.ev = ev
		c.postHook = func() error {
			if req.Pup == Pack {
				n := nelems * t.Size
				dst := unsafe.Slice((*byte)(packedPtr), n)
				src := unsafe.Slice((*byte)(slabPtr), n)
				copy(dst, src)
				return nil
			}
			_, err := kernel.AccumulateUnpack(slabPtr, nelems*t.Size, typedPtr, int(nelems), t, 0, req.ReduceOp)
			return err
		}
		return nil

	case KindRH2D, KindURH2D:
		slabPtr := addOff(c.hostSlab.Base, hostOff)
		if req.Pup == Pack {
			if _, err := kernel.Pack(typedPtr, int(nelems), t, 0, slabPtr, nelems*t.Size); err != nil {
				return err
			}
		} else {
			n := nelems * t.Size
			dst := unsafe.Slice((*byte)(slabPtr), n)
			src := unsafe.Slice((*byte)(packedPtr), n)
			copy(dst, src)
		}

		var ev gpudriver.Event
		var err error
		if req.Pup == Pack {
			ev, err = req.Driver.IPack(ctx, slabPtr, packedPtr, nelems*t.Size, identityByteType())
		} else {
			ev, err = req.Driver.IUnpack(ctx, slabPtr, typedPtr, nelems, t, req.ReduceOp)
		}
		if err != nil {
			return err
		}
		if err := ev.Record(); err != nil {
			return err
		}
		c.ev = ev
		return nil

	case KindD2DStaged:
		slabPtr := addOff(c.hostSlab.Base, hostOff)
		var evInt gpudriver.Event
		var err error
		if req.Pup == Pack {
			evInt, err = req.Driver.IPack(ctx, typedPtr, slabPtr, nelems, t)
		} else {
			evInt, err = req.Driver.IPack(ctx, packedPtr, slabPtr, nelems*t.Size, identityByteType())
		}
		if err != nil {
			return err
		}

		var evFinal gpudriver.Event
		if req.Pup == Pack {
			evFinal, err = req.Driver.IPack(ctx, slabPtr, packedPtr, nelems*t.Size, identityByteType())
		} else {
			evFinal, err = req.Driver.IUnpack(ctx, slabPtr, typedPtr, nelems, t, req.ReduceOp)
		}
		if err != nil {
			_ = evInt.Destroy()
			return err
		}

		if err := req.Driver.AddDependency(evFinal, evInt); err != nil {
			_ = evInt.Destroy()
			_ = evFinal.Destroy()
			return err
		}
		if err := evInt.Record(); err != nil {
			return err
		}
		if err := evFinal.Record(); err != nil {
			return err
		}
		c.ev = evFinal
		c.evInt = evInt
		return nil

	default:
		return fmt.Errorf("progress: unhandled kind %v", head.kind)
	}
}

// kernelHop issues the single direct backend call shared by the kinds whose
// two endpoints are both directly backend-reachable (no staging): D2RH,
// D2D_IPC, D2D_SINGLE.
func kernelHop(ctx context.Context, req *EnqueueRequest, typedPtr, packedPtr unsafe.Pointer, nelems uintptr, t *dtype.Type) (gpudriver.Event, error) {
	if req.Pup == Pack {
		return req.Driver.IPack(ctx, typedPtr, packedPtr, nelems, t)
	}
	return req.Driver.IUnpack(ctx, packedPtr, typedPtr, nelems, t, req.ReduceOp)
}

// identityByteType is a throwaway CONTIG-of-byte leaf used for the raw
// relay hops (slab-to-slab, slab-to-user-buffer) that move already-packed
// bytes and have no further use for the original datatype's structure.
func identityByteType() *dtype.Type {
	return dtype.NewBuiltin(0, "byte", 1, 1)
}
