package dtype

// IOVEntry is one maximal contiguous byte run produced by unrolling a
// datatype over a buffer: bytes [Offset, Offset+Length) relative to the
// buffer's base address.
type IOVEntry struct {
	Offset int64
	Length uintptr
}

// IovLen returns an upper bound on the number of IOV entries IOV would
// produce for count elements of t, without materializing them — used to
// pre-size caller arrays as yaksi_iov_len does. It is 1 for a contiguous t
// and count*NumContig otherwise; IOV can return fewer, because it merges
// runs that meet across element boundaries.
func IovLen(t *Type, count int) uintptr {
	if t.IsContig {
		return 1
	}
	return uintptr(count) * t.NumContig
}

// IOV produces the scatter/gather run list for count elements of t, each
// run an (offset, length) pair relative to the described buffer's base.
// Callers that only need raw runs (rather than a full pack/unpack) use this
// directly; the sequential kernels build on the same per-kind walk.
func IOV(t *Type, count int) []IOVEntry {
	if count <= 0 {
		return nil
	}
	if t.IsContig {
		return []IOVEntry{{Offset: t.TrueLB, Length: uintptr(count) * t.Size}}
	}

	var runs []IOVEntry
	for i := 0; i < count; i++ {
		base := int64(i) * int64(t.Extent)
		runs = appendRuns(runs, t, base)
	}
	return coalesce(runs)
}

func appendRuns(runs []IOVEntry, t *Type, base int64) []IOVEntry {
	switch t.Kind {
	case Builtin:
		return append(runs, IOVEntry{Offset: base, Length: t.Size})

	case Contig:
		p := t.ContigPayload
		for i := 0; i < p.Count; i++ {
			runs = appendRuns(runs, p.Child, base+int64(i)*int64(p.Child.Extent))
		}
		return runs

	case Dup:
		return appendRuns(runs, t.DupPayload.Child, base)

	case Resized:
		return appendRuns(runs, t.ResizedPayload.Child, base)

	case HVector:
		p := t.HVectorPayload
		for i := 0; i < p.Count; i++ {
			blockBase := base + int64(i)*p.Stride
			for j := 0; j < p.Blocklength; j++ {
				runs = appendRuns(runs, p.Child, blockBase+int64(j)*int64(p.Child.Extent))
			}
		}
		return runs

	case BlkHindx:
		p := t.BlkHindxPayload
		for i, d := range p.Displs {
			_ = i
			blockBase := base + d
			for j := 0; j < p.Blocklength; j++ {
				runs = appendRuns(runs, p.Child, blockBase+int64(j)*int64(p.Child.Extent))
			}
		}
		return runs

	case Hindexed:
		p := t.HindexedPayload
		for i, d := range p.Displs {
			blockBase := base + d
			for j := 0; j < p.Blocklengths[i]; j++ {
				runs = appendRuns(runs, p.Child, blockBase+int64(j)*int64(p.Child.Extent))
			}
		}
		return runs

	case Struct:
		p := t.StructPayload
		for i, c := range p.Types {
			blockBase := base + p.Displs[i]
			for j := 0; j < p.Blocklengths[i]; j++ {
				runs = appendRuns(runs, c, blockBase+int64(j)*int64(c.Extent))
			}
		}
		return runs

	case Subarray:
		return appendRuns(runs, t.SubarrayPayload.Primary, base)

	default:
		return runs
	}
}

// coalesce merges adjacent runs (prev.Offset+prev.Length == next.Offset)
// produced by back-to-back elements, keeping num_contig's accounting
// meaningful for the common case of a trailing contiguous dimension.
func coalesce(runs []IOVEntry) []IOVEntry {
	if len(runs) < 2 {
		return runs
	}
	out := make([]IOVEntry, 0, len(runs))
	cur := runs[0]
	for _, r := range runs[1:] {
		if cur.Offset+int64(cur.Length) == r.Offset {
			cur.Length += r.Length
		} else {
			out = append(out, cur)
			cur = r
		}
	}
	out = append(out, cur)
	return out
}
