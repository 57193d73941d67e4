package dtype

import (
	"encoding/binary"
)

// BuiltinResolver resolves a flattened builtin leaf's seed id against a
// context's predefined-type table, returning the context's existing *Type
// (refcounted, not reallocated) rather than fabricating a new node.
type BuiltinResolver func(seedID uint32) (*Type, error)

// wireOrder is the fixed little-endian, context-independent byte order used by
// the flatten/unflatten codec. The serialized form is not portable across
// hosts with different uintptr widths (spec: "Not portable across host
// architectures with different uintptr_t/intptr_t widths").
var wireOrder = binary.LittleEndian

type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = appendU32(w.buf, v) }
func (w *writer) u64(v uint64) { w.buf = appendU64(w.buf, v) }
func (w *writer) i64(v int64)  { w.buf = appendU64(w.buf, uint64(v)) }
func (w *writer) bytes(b []byte) {
	w.u32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	wireOrder.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	wireOrder.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) u8() uint8 {
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *reader) u32() uint32 {
	v := wireOrder.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *reader) u64() uint64 {
	v := wireOrder.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *reader) i64() int64 { return int64(r.u64()) }

func (r *reader) bytes() []byte {
	n := r.u32()
	b := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	return append([]byte(nil), b...)
}

// writeHeader emits the fixed-layout node record shared by every kind.
func (w *writer) writeHeader(t *Type) {
	w.u32(uint32(t.Kind))
	w.u32(uint32(t.TreeDepth))
	w.u64(uint64(t.Alignment))
	w.u64(uint64(t.Size))
	w.u64(uint64(t.Extent))
	w.i64(t.LB)
	w.i64(t.UB)
	w.i64(t.TrueLB)
	w.i64(t.TrueUB)
	if t.IsContig {
		w.u8(1)
	} else {
		w.u8(0)
	}
	w.u64(uint64(t.NumContig))
}

func (r *reader) readHeader() *Type {
	t := &Type{}
	t.Kind = Kind(r.u32())
	t.TreeDepth = int(r.u32())
	t.Alignment = uintptr(r.u64())
	t.Size = uintptr(r.u64())
	t.Extent = uintptr(r.u64())
	t.LB = r.i64()
	t.UB = r.i64()
	t.TrueLB = r.i64()
	t.TrueUB = r.i64()
	t.IsContig = r.u8() != 0
	t.NumContig = uintptr(r.u64())
	t.refcount.Store(1)
	return t
}

// FlattenSize precomputes the exact byte length Flatten will produce.
func FlattenSize(t *Type) (uintptr, error) {
	b, err := Flatten(t)
	if err != nil {
		return 0, err
	}
	return uintptr(len(b)), nil
}

// Flatten serializes t (and its whole subtree) into a self-describing,
// little-endian byte buffer: the node record, then inline shape arrays, then
// recursively each child.
func Flatten(t *Type) ([]byte, error) {
	w := &writer{}
	if err := flattenInto(w, t); err != nil {
		return nil, err
	}
	return w.buf, nil
}

func flattenInto(w *writer, t *Type) error {
	w.writeHeader(t)

	switch t.Kind {
	case Builtin:
		p := t.BuiltinPayload
		w.u32(p.SeedID)
		w.bytes([]byte(p.Name))

	case Contig:
		p := t.ContigPayload
		w.u32(uint32(p.Count))
		return flattenInto(w, p.Child)

	case Dup:
		return flattenInto(w, t.DupPayload.Child)

	case Resized:
		return flattenInto(w, t.ResizedPayload.Child)

	case HVector:
		p := t.HVectorPayload
		w.u32(uint32(p.Count))
		w.u32(uint32(p.Blocklength))
		w.i64(p.Stride)
		return flattenInto(w, p.Child)

	case BlkHindx:
		p := t.BlkHindxPayload
		w.u32(uint32(p.Count))
		w.u32(uint32(p.Blocklength))
		for _, d := range p.Displs {
			w.i64(d)
		}
		return flattenInto(w, p.Child)

	case Hindexed:
		p := t.HindexedPayload
		w.u32(uint32(p.Count))
		for _, b := range p.Blocklengths {
			w.u32(uint32(b))
		}
		for _, d := range p.Displs {
			w.i64(d)
		}
		return flattenInto(w, p.Child)

	case Struct:
		p := t.StructPayload
		w.u32(uint32(p.Count))
		for _, b := range p.Blocklengths {
			w.u32(uint32(b))
		}
		for _, d := range p.Displs {
			w.i64(d)
		}
		for _, c := range p.Types {
			if err := flattenInto(w, c); err != nil {
				return err
			}
		}

	case Subarray:
		p := t.SubarrayPayload
		w.u32(uint32(p.Ndims))
		return flattenInto(w, p.Primary)

	default:
		return ErrInternal
	}
	return nil
}

// Unflatten reconstructs a datatype tree from a buffer produced by Flatten.
// Builtin leaves are resolved through resolve against the target context's
// predefined-type table rather than reallocated, per the "round trip
// preserves every invariant except refcount and backend state" contract.
func Unflatten(data []byte, resolve BuiltinResolver) (*Type, error) {
	r := &reader{buf: data}
	t, err := unflattenFrom(r, resolve)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func unflattenFrom(r *reader, resolve BuiltinResolver) (*Type, error) {
	t := r.readHeader()

	switch t.Kind {
	case Builtin:
		seedID := r.u32()
		_ = r.bytes() // name, informational only
		resolved, err := resolve(seedID)
		if err != nil {
			return nil, err
		}
		resolved.Incref()
		return resolved, nil

	case Contig:
		count := int(r.u32())
		child, err := unflattenFrom(r, resolve)
		if err != nil {
			return nil, err
		}
		t.ContigPayload = &ContigPayload{Count: count, Child: child}

	case Dup:
		child, err := unflattenFrom(r, resolve)
		if err != nil {
			return nil, err
		}
		t.DupPayload = &DupPayload{Child: child}

	case Resized:
		child, err := unflattenFrom(r, resolve)
		if err != nil {
			return nil, err
		}
		t.ResizedPayload = &ResizedPayload{Child: child}

	case HVector:
		count := int(r.u32())
		blen := int(r.u32())
		stride := r.i64()
		child, err := unflattenFrom(r, resolve)
		if err != nil {
			return nil, err
		}
		t.HVectorPayload = &HVectorPayload{Count: count, Blocklength: blen, Stride: stride, Child: child}

	case BlkHindx:
		count := int(r.u32())
		blen := int(r.u32())
		displs := make([]int64, count)
		for i := range displs {
			displs[i] = r.i64()
		}
		child, err := unflattenFrom(r, resolve)
		if err != nil {
			return nil, err
		}
		t.BlkHindxPayload = &BlkHindxPayload{Count: count, Blocklength: blen, Displs: displs, Child: child}

	case Hindexed:
		count := int(r.u32())
		blens := make([]int, count)
		for i := range blens {
			blens[i] = int(r.u32())
		}
		displs := make([]int64, count)
		for i := range displs {
			displs[i] = r.i64()
		}
		child, err := unflattenFrom(r, resolve)
		if err != nil {
			return nil, err
		}
		t.HindexedPayload = &HindexedPayload{Count: count, Blocklengths: blens, Displs: displs, Child: child}

	case Struct:
		count := int(r.u32())
		blens := make([]int, count)
		for i := range blens {
			blens[i] = int(r.u32())
		}
		displs := make([]int64, count)
		for i := range displs {
			displs[i] = r.i64()
		}
		types := make([]*Type, count)
		for i := range types {
			child, err := unflattenFrom(r, resolve)
			if err != nil {
				return nil, err
			}
			types[i] = child
		}
		t.StructPayload = &StructPayload{Count: count, Blocklengths: blens, Displs: displs, Types: types}

	case Subarray:
		ndims := int(r.u32())
		primary, err := unflattenFrom(r, resolve)
		if err != nil {
			return nil, err
		}
		t.SubarrayPayload = &SubarrayPayload{Ndims: ndims, Primary: primary}

	default:
		return nil, ErrInternal
	}
	return t, nil
}
