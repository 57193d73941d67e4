package dtpack

import (
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/dtpack/dtpack/internal/classify"
	"github.com/dtpack/dtpack/internal/gpudriver"
	"github.com/dtpack/dtpack/internal/handle"
	"github.com/dtpack/dtpack/internal/kernel"
	"github.com/dtpack/dtpack/internal/progress"
)

// Request tracks one nonblocking pack/unpack/accumulate operation (spec §3
// "Request"). A trivially empty operation (zero count, zero-sized type)
// returns no Request at all. A Request routed H2H is already complete; Test
// and Wait report so immediately without touching the progress engine.
type Request struct {
	ctx   *Context
	objID uint32

	completionCounter atomic.Int64

	h2h   bool
	err   error // set once at construction for the H2H fast path

	errOnce  sync.Once
	finalErr error

	freeOnce sync.Once

	kind      string
	startTime time.Time
}

// Handle returns the request's opaque 64-bit handle.
func (r *Request) Handle() handle.ID { return handle.Encode(r.ctx.id, r.objID) }

// Kind reports the transport category this request was routed through
// ("H2H", "D2RH", "D2D_STAGED", ...), for diagnostics.
func (r *Request) Kind() string { return r.kind }

func (c *Context) newCompletedRequest(kind string, err error) *Request {
	r := &Request{ctx: c, h2h: true, kind: kind, err: err, startTime: time.Now()}
	r.objID = c.reqPool.Alloc(r)
	return r
}

func (c *Context) newPendingRequest(kind string) *Request {
	r := &Request{ctx: c, kind: kind, startTime: time.Now()}
	r.objID = c.reqPool.Alloc(r)
	return r
}

func (r *Request) release() {
	r.freeOnce.Do(func() {
		r.ctx.reqPool.Decref(r.objID)
	})
}

// pokeAndCheck advances the progress engine once (if needed) and reports
// whether r has completed. Because only the head of the FIFO queue is ever
// advanced, and requests are enqueued in the order they are issued, an
// error surfacing from Poke belongs to r precisely when r's own counter
// has just reached zero.
func (r *Request) pokeAndCheck() (completed bool, err error) {
	if r.completionCounter.Load() <= 0 {
		r.release()
		return true, r.finalErr
	}
	pokeErr := r.ctx.engine.Poke()
	if r.completionCounter.Load() <= 0 {
		if pokeErr != nil {
			r.errOnce.Do(func() { r.finalErr = WrapBackendError("Request", pokeErr) })
		}
		r.release()
		return true, r.finalErr
	}
	return false, nil
}

// Test is a non-blocking probe: it pokes the progress engine once and
// reports whether the request has completed.
func (r *Request) Test() (completed bool, err error) {
	if r.h2h {
		return true, r.err
	}
	return r.pokeAndCheck()
}

// Wait blocks the calling goroutine, cooperatively driving the progress
// engine, until the request's completion counter reaches zero.
func (r *Request) Wait() error {
	if r.h2h {
		return r.err
	}
	for {
		if done, err := r.pokeAndCheck(); done {
			return err
		}
	}
}

// requestKind derives the pup-independent 15-way (less H2H) transport
// category from the in/out pointer classification (spec §4.4's table;
// "symmetric for UNPACK" means the same in/out mapping applies verbatim,
// since the table classifies literal argument positions, not which side
// happens to carry the typed or packed representation).
func requestKind(in, out classify.Attr, checkP2P func(driverID, a, b int) (bool, error)) (kind progress.Kind, isH2H bool, err error) {
	inHost := in.Kind == classify.UnregisteredHost || in.Kind == classify.RegisteredHost
	outHost := out.Kind == classify.UnregisteredHost || out.Kind == classify.RegisteredHost
	inDevice := in.Kind == classify.GPU || in.Kind == classify.Managed
	outDevice := out.Kind == classify.GPU || out.Kind == classify.Managed

	switch {
	case inHost && outHost:
		return 0, true, nil

	case inDevice && outDevice:
		if in.DeviceID == out.DeviceID {
			return progress.KindD2DSingle, false, nil
		}
		p2p, err := checkP2P(in.DriverID, in.DeviceID, out.DeviceID)
		if err != nil {
			return 0, false, err
		}
		if p2p {
			return progress.KindD2DIPC, false, nil
		}
		return progress.KindD2DStaged, false, nil

	case inDevice && out.Kind == classify.RegisteredHost:
		return progress.KindD2RH, false, nil
	case inDevice && out.Kind == classify.UnregisteredHost:
		return progress.KindD2URH, false, nil
	case in.Kind == classify.RegisteredHost && outDevice:
		return progress.KindRH2D, false, nil
	case in.Kind == classify.UnregisteredHost && outDevice:
		return progress.KindURH2D, false, nil

	default:
		return 0, false, NewError("dispatch", CodeInternal, "unclassifiable pointer-kind combination")
	}
}

func (c *Context) checkP2P(driverID, a, b int) (bool, error) {
	d, ok := c.driverByID(driverID)
	if !ok {
		return false, NewError("dispatch", CodeInternal, "no registered driver for id")
	}
	return d.CheckP2P(a, b)
}

// pickDriver chooses the gpudriver_id from whichever side classified as
// GPU/registered-host (spec §4.4 step 1).
func (c *Context) pickDriver(in, out classify.Attr) (gpudriver.Driver, error) {
	id := in.DriverID
	if in.Kind == classify.UnregisteredHost {
		id = out.DriverID
	}
	d, ok := c.driverByID(id)
	if !ok {
		return nil, NewError("dispatch", CodeNotSupported, "no GPU driver registered for this pointer")
	}
	return d, nil
}

func (c *Context) classify(ptr unsafe.Pointer) classify.Attr {
	return c.classifier.Classify(ptr)
}

func addPtr(ptr unsafe.Pointer, off int64) unsafe.Pointer {
	return unsafe.Pointer(uintptr(ptr) + uintptr(off))
}

// Pack issues a nonblocking pack of incount elements of t starting at byte
// offset inoffset of the logical count*t.Size() packed stream, writing up
// to maxPackBytes bytes to outbuf (spec §6 ipack). H2H requests complete
// synchronously; GPU-routed requests require the full range (inoffset 0,
// maxPackBytes >= incount*t.Size()) since the progress engine chunks whole
// elements rather than byte windows.
func (c *Context) Pack(inbuf unsafe.Pointer, incount int, t *Type, inoffset uintptr, outbuf unsafe.Pointer, maxPackBytes uintptr, info *Info) (req *Request, actualPackBytes uintptr, err error) {
	total := uintptr(incount) * t.Size()
	if incount == 0 || t.Size() == 0 || inoffset >= total {
		return nil, 0, nil
	}
	n := total - inoffset
	if maxPackBytes < n {
		n = maxPackBytes
	}
	if n == 0 {
		return nil, 0, nil
	}

	inAttr := c.classify(addPtr(inbuf, t.dt.TrueLB))
	outAttr := c.classify(outbuf)
	kind, isH2H, err := requestKind(inAttr, outAttr, c.checkP2P)
	if err != nil {
		return nil, 0, err
	}

	start := time.Now()
	if isH2H {
		actual, kerr := kernel.Pack(inbuf, incount, t.dt, inoffset, outbuf, n)
		c.metrics.recordPack(uint64(actual), time.Since(start), true, kerr != nil)
		if kerr != nil {
			kerr = NewError("Pack", CodeInternal, kerr.Error())
		}
		return c.newCompletedRequest("H2H", kerr), actual, kerr
	}

	if inoffset != 0 || n < total {
		return nil, 0, NewError("Pack", CodeNotSupported, "partial byte-windowed packing is only supported H2H")
	}

	driver, derr := c.pickDriver(inAttr, outAttr)
	if derr != nil {
		return nil, 0, derr
	}
	if ok, serr := driver.PupIsSupported(t.dt); serr == nil && !ok {
		return nil, 0, NewTypeError("Pack", uint64(t.Handle()), CodeNotSupported, "backend does not support this datatype")
	} else if serr != nil {
		return nil, 0, WrapBackendError("Pack", serr)
	}
	if (kind.NeedsDeviceSlab() || kind.NeedsHostSlab()) && t.Size() > c.cfg.SlabSize {
		return nil, 0, NewTypeError("Pack", uint64(t.Handle()), CodeNotSupported, "element size exceeds temp-buffer slab size")
	}

	req = c.newPendingRequest(kind.String())
	req.completionCounter.Store(1)
	enq := progress.EnqueueRequest{
		Kind: kind, Pup: progress.Pack, Driver: driver,
		InDevice: inAttr.DeviceID, OutDevice: outAttr.DeviceID,
		Inbuf: inbuf, Outbuf: outbuf, Type: t.dt, Count: uintptr(incount),
		ReduceOp:          gpudriver.OpReplace,
		CompletionCounter: &req.completionCounter,
	}
	if err := c.engine.Enqueue(enq); err != nil {
		return nil, 0, WrapBackendError("Pack", err)
	}
	c.metrics.recordPack(uint64(total), time.Since(start), false, false)
	return req, total, nil
}

// Unpack is Pack's inverse (spec §6 iunpack): it reads insize packed bytes
// from inbuf and scatters them into outcount elements of t at outbuf.
func (c *Context) Unpack(inbuf unsafe.Pointer, insize uintptr, outbuf unsafe.Pointer, outcount int, t *Type, outoffset uintptr, info *Info) (*Request, uintptr, error) {
	return c.unpackOrAccumulate(inbuf, insize, outbuf, outcount, t, outoffset, gpudriver.OpReplace, false, info)
}

// Accumulate is Unpack combined with a commutative elementwise reduction
// against the existing destination contents (spec §6 iacc).
func (c *Context) Accumulate(inbuf unsafe.Pointer, insize uintptr, outbuf unsafe.Pointer, outcount int, t *Type, outoffset uintptr, op ReduceOp, info *Info) (*Request, uintptr, error) {
	return c.unpackOrAccumulate(inbuf, insize, outbuf, outcount, t, outoffset, op, true, info)
}

func (c *Context) unpackOrAccumulate(inbuf unsafe.Pointer, insize uintptr, outbuf unsafe.Pointer, outcount int, t *Type, outoffset uintptr, op ReduceOp, accumulate bool, info *Info) (req *Request, actual uintptr, err error) {
	op0 := "Unpack"
	if accumulate {
		op0 = "Accumulate"
	}
	total := uintptr(outcount) * t.Size()
	if outcount == 0 || t.Size() == 0 || insize == 0 {
		return nil, 0, nil
	}

	outAttr := c.classify(addPtr(outbuf, t.dt.TrueLB))
	inAttr := c.classify(inbuf)
	kind, isH2H, kerr := requestKind(inAttr, outAttr, c.checkP2P)
	if kerr != nil {
		return nil, 0, kerr
	}

	start := time.Now()
	if isH2H {
		var n uintptr
		var walkErr error
		if accumulate {
			n, walkErr = kernel.AccumulateUnpack(inbuf, insize, outbuf, outcount, t.dt, outoffset, op)
		} else {
			n, walkErr = kernel.Unpack(inbuf, insize, outbuf, outcount, t.dt, outoffset)
		}
		c.metrics.recordUnpack(uint64(n), time.Since(start), true, walkErr != nil, accumulate)
		if walkErr != nil {
			walkErr = NewError(op0, CodeInternal, walkErr.Error())
		}
		return c.newCompletedRequest("H2H", walkErr), n, walkErr
	}

	if outoffset != 0 || insize < total {
		return nil, 0, NewError(op0, CodeNotSupported, "partial byte-windowed unpacking is only supported H2H")
	}

	driver, derr := c.pickDriver(inAttr, outAttr)
	if derr != nil {
		return nil, 0, derr
	}
	if ok, serr := driver.PupIsSupported(t.dt); serr == nil && !ok {
		return nil, 0, NewTypeError(op0, uint64(t.Handle()), CodeNotSupported, "backend does not support this datatype")
	} else if serr != nil {
		return nil, 0, WrapBackendError(op0, serr)
	}
	if (kind.NeedsDeviceSlab() || kind.NeedsHostSlab()) && t.Size() > c.cfg.SlabSize {
		return nil, 0, NewTypeError(op0, uint64(t.Handle()), CodeNotSupported, "element size exceeds temp-buffer slab size")
	}

	req = c.newPendingRequest(kind.String())
	req.completionCounter.Store(1)
	enq := progress.EnqueueRequest{
		Kind: kind, Pup: progress.Unpack, Driver: driver,
		InDevice: inAttr.DeviceID, OutDevice: outAttr.DeviceID,
		Inbuf: inbuf, Outbuf: outbuf, Type: t.dt, Count: uintptr(outcount),
		ReduceOp:          op,
		CompletionCounter: &req.completionCounter,
	}
	if err := c.engine.Enqueue(enq); err != nil {
		return nil, 0, WrapBackendError(op0, err)
	}
	c.metrics.recordUnpack(uint64(total), time.Since(start), false, false, accumulate)
	return req, total, nil
}
