// Package kernel implements the sequential pack/unpack/accumulate tree
// walkers: given a fully host-resident typed buffer, traverse the datatype
// tree and copy (or reduce) bytes to/from a contiguous stream. These are
// synchronous on the calling goroutine, thread-safe across distinct calls,
// and keep no state across invocations.
package kernel

import (
	"errors"
	"unsafe"

	"github.com/dtpack/dtpack/internal/dtype"
)

var (
	ErrUnsupported = errors.New("kernel: datatype kind not supported by this op")
)

func asBytes(ptr unsafe.Pointer, n uintptr) []byte {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(ptr), n)
}

func addPtr(ptr unsafe.Pointer, off int64) unsafe.Pointer {
	return unsafe.Pointer(uintptr(ptr) + uintptr(off))
}

// PupIsSupported reports whether the sequential kernel can walk t. Every
// kind defined in internal/dtype is supported; this exists so the
// dispatcher has one call to make regardless of backend, matching
// gpudriver.Driver.PupIsSupported's signature.
func PupIsSupported(t *dtype.Type) bool {
	switch t.Kind {
	case dtype.Builtin, dtype.Contig, dtype.Dup, dtype.Resized, dtype.HVector,
		dtype.BlkHindx, dtype.Hindexed, dtype.Struct, dtype.Subarray:
		return true
	default:
		return false
	}
}

// walkRuns invokes fn(src, length) once for every builtin leaf of one
// element of t located at base, in left-to-right order; adjacent leaves are
// not merged into longer runs. Every pack, unpack and reduce operation below
// builds on this single tree walk.
func walkRuns(base unsafe.Pointer, t *dtype.Type, fn func(src unsafe.Pointer, length uintptr, leaf *dtype.Type) error) error {
	switch t.Kind {
	case dtype.Builtin:
		return fn(base, t.Size, t)

	case dtype.Contig:
		p := t.ContigPayload
		for i := 0; i < p.Count; i++ {
			if err := walkRuns(addPtr(base, int64(i)*int64(p.Child.Extent)), p.Child, fn); err != nil {
				return err
			}
		}
		return nil

	case dtype.Dup:
		return walkRuns(base, t.DupPayload.Child, fn)

	case dtype.Resized:
		return walkRuns(base, t.ResizedPayload.Child, fn)

	case dtype.HVector:
		p := t.HVectorPayload
		for i := 0; i < p.Count; i++ {
			blockBase := addPtr(base, int64(i)*p.Stride)
			for j := 0; j < p.Blocklength; j++ {
				if err := walkRuns(addPtr(blockBase, int64(j)*int64(p.Child.Extent)), p.Child, fn); err != nil {
					return err
				}
			}
		}
		return nil

	case dtype.BlkHindx:
		p := t.BlkHindxPayload
		for _, d := range p.Displs {
			blockBase := addPtr(base, d)
			for j := 0; j < p.Blocklength; j++ {
				if err := walkRuns(addPtr(blockBase, int64(j)*int64(p.Child.Extent)), p.Child, fn); err != nil {
					return err
				}
			}
		}
		return nil

	case dtype.Hindexed:
		p := t.HindexedPayload
		for i, d := range p.Displs {
			blockBase := addPtr(base, d)
			for j := 0; j < p.Blocklengths[i]; j++ {
				if err := walkRuns(addPtr(blockBase, int64(j)*int64(p.Child.Extent)), p.Child, fn); err != nil {
					return err
				}
			}
		}
		return nil

	case dtype.Struct:
		p := t.StructPayload
		for i, c := range p.Types {
			blockBase := addPtr(base, p.Displs[i])
			for j := 0; j < p.Blocklengths[i]; j++ {
				if err := walkRuns(addPtr(blockBase, int64(j)*int64(c.Extent)), c, fn); err != nil {
					return err
				}
			}
		}
		return nil

	case dtype.Subarray:
		return walkRuns(base, t.SubarrayPayload.Primary, fn)

	default:
		return ErrUnsupported
	}
}

// Pack walks count elements of t starting at inbuf, writing up to maxBytes
// packed bytes into outbuf, skipping the first inoffset bytes of the
// logical packed stream. It returns the number of bytes actually written.
func Pack(inbuf unsafe.Pointer, count int, t *dtype.Type, inoffset uintptr, outbuf unsafe.Pointer, maxBytes uintptr) (uintptr, error) {
	total := uintptr(count) * t.Size
	if inoffset >= total {
		return 0, nil
	}
	n := total - inoffset
	if maxBytes < n {
		n = maxBytes
	}
	if n == 0 {
		return 0, nil
	}

	out := asBytes(outbuf, n)
	var copied uintptr
	packPos := uintptr(0)

	for i := 0; i < count && packPos < inoffset+n; i++ {
		elemBase := addPtr(inbuf, int64(i)*int64(t.Extent))
		err := walkRuns(elemBase, t, func(src unsafe.Pointer, length uintptr, _ *dtype.Type) error {
			copied += copyRunIntoWindow(out, &packPos, src, length, inoffset, inoffset+n)
			return nil
		})
		if err != nil {
			return copied, err
		}
	}
	return copied, nil
}

// Unpack is Pack's inverse: it reads insize packed bytes from inbuf and
// scatters them into count elements of t at outbuf, skipping the first
// outoffset bytes of the logical packed stream.
func Unpack(inbuf unsafe.Pointer, insize uintptr, outbuf unsafe.Pointer, count int, t *dtype.Type, outoffset uintptr) (uintptr, error) {
	return unpackReduce(inbuf, insize, outbuf, count, t, outoffset, nil)
}

// AccumulateUnpack is Unpack combined with a commutative elementwise
// reduction against the existing destination contents, instead of a plain
// overwrite. Reductions never split an element across calls, so results are
// independent of how an upstream caller chunks its calls.
func AccumulateUnpack(inbuf unsafe.Pointer, insize uintptr, outbuf unsafe.Pointer, count int, t *dtype.Type, outoffset uintptr, op ReduceOp) (uintptr, error) {
	return unpackReduce(inbuf, insize, outbuf, count, t, outoffset, &op)
}

func unpackReduce(inbuf unsafe.Pointer, insize uintptr, outbuf unsafe.Pointer, count int, t *dtype.Type, outoffset uintptr, op *ReduceOp) (uintptr, error) {
	in := asBytes(inbuf, insize)
	var consumed uintptr
	packPos := uintptr(0)
	limit := outoffset + insize

	for i := 0; i < count && packPos < limit; i++ {
		elemBase := addPtr(outbuf, int64(i)*int64(t.Extent))
		err := walkRuns(elemBase, t, func(dst unsafe.Pointer, length uintptr, leaf *dtype.Type) error {
			consumed += copyRunFromWindow(in, &packPos, dst, length, outoffset, limit, op, leaf)
			return nil
		})
		if err != nil {
			return consumed, err
		}
	}
	return consumed, nil
}

// copyRunIntoWindow copies the portion of [*pos, *pos+length) that falls
// within [winLo, winHi) from src into out (positioned at *pos - winLo), then
// advances *pos by length regardless of overlap. Returns bytes copied.
func copyRunIntoWindow(out []byte, pos *uintptr, src unsafe.Pointer, length, winLo, winHi uintptr) uintptr {
	lo, hi := *pos, *pos+length
	*pos += length
	if hi <= winLo || lo >= winHi {
		return 0
	}
	srcSkip := uintptr(0)
	if lo < winLo {
		srcSkip = winLo - lo
		lo = winLo
	}
	if hi > winHi {
		hi = winHi
	}
	n := hi - lo
	if n == 0 {
		return 0
	}
	dstPos := lo - winLo
	copy(out[dstPos:dstPos+n], asBytes(addPtr(src, int64(srcSkip)), n))
	return n
}

// copyRunFromWindow is copyRunIntoWindow's inverse: it copies from in
// (positioned at *pos - winLo) into the portion of [*pos, *pos+length) that
// falls within [winLo, winHi), applying op as an elementwise reduction
// against the existing dst contents instead of a plain overwrite when op is
// non-nil.
func copyRunFromWindow(in []byte, pos *uintptr, dst unsafe.Pointer, length, winLo, winHi uintptr, op *ReduceOp, leaf *dtype.Type) uintptr {
	lo, hi := *pos, *pos+length
	*pos += length
	if hi <= winLo || lo >= winHi {
		return 0
	}
	dstSkip := uintptr(0)
	if lo < winLo {
		dstSkip = winLo - lo
		lo = winLo
	}
	if hi > winHi {
		hi = winHi
	}
	n := hi - lo
	if n == 0 {
		return 0
	}
	srcPos := lo - winLo
	dstBytes := asBytes(addPtr(dst, int64(dstSkip)), n)
	srcBytes := in[srcPos : srcPos+n]
	if op == nil {
		copy(dstBytes, srcBytes)
	} else {
		leafName := ""
		if leaf != nil && leaf.BuiltinPayload != nil {
			leafName = leaf.BuiltinPayload.Name
		}
		reduceBytes(dstBytes, srcBytes, *op, leafName)
	}
	return n
}
