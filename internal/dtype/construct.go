package dtype

// The nesting limit is not a package-level setting here: the root package
// resolves it from configuration (default 3, env-tunable via
// DTPACK_NESTING_LEVEL) and constructors compare against whatever limit the
// caller passes in, so internal/dtype stays free of config/env concerns.

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func checkNesting(child *Type, limit int) error {
	if child.TreeDepth+1 > limit {
		return ErrBadArgs
	}
	return nil
}

// NewContig builds CONTIG(n, child).
func NewContig(count int, child *Type, nestingLimit int) (*Type, error) {
	if count < 0 {
		return nil, ErrBadArgs
	}
	if err := checkNesting(child, nestingLimit); err != nil {
		return nil, err
	}

	t := newNode(Contig)
	t.TreeDepth = child.TreeDepth + 1
	t.Size = uintptr(count) * child.Size
	t.Extent = uintptr(count) * child.Extent
	t.TrueLB = child.TrueLB
	t.TrueUB = int64(count-1)*int64(child.Extent) + child.TrueUB
	t.LB = t.TrueLB
	t.UB = t.LB + int64(t.Extent)
	t.IsContig = child.IsContig && child.Size == child.Extent
	t.Alignment = child.Alignment
	if t.IsContig {
		t.NumContig = 1
	} else {
		t.NumContig = uintptr(count) * child.NumContig
	}

	child.Incref()
	t.ContigPayload = &ContigPayload{Count: count, Child: child}
	return t, nil
}

// NewDup builds DUP(child): a pass-through copy under a new identity.
func NewDup(child *Type, nestingLimit int) (*Type, error) {
	if err := checkNesting(child, nestingLimit); err != nil {
		return nil, err
	}

	t := newNode(Dup)
	t.TreeDepth = child.TreeDepth + 1
	t.Size = child.Size
	t.Extent = child.Extent
	t.LB = child.LB
	t.UB = child.UB
	t.TrueLB = child.TrueLB
	t.TrueUB = child.TrueUB
	t.IsContig = child.IsContig
	t.NumContig = child.NumContig
	t.Alignment = child.Alignment

	child.Incref()
	t.DupPayload = &DupPayload{Child: child}
	return t, nil
}

// NewResized builds RESIZED(child, lb, extent).
func NewResized(child *Type, lb int64, extent uintptr, nestingLimit int) (*Type, error) {
	if err := checkNesting(child, nestingLimit); err != nil {
		return nil, err
	}

	t := newNode(Resized)
	t.TreeDepth = child.TreeDepth + 1
	t.Size = child.Size
	t.Extent = extent
	t.LB = lb
	t.UB = lb + int64(extent)
	t.TrueLB = child.TrueLB
	t.TrueUB = child.TrueUB
	t.IsContig = child.IsContig && child.Size == extent
	t.NumContig = child.NumContig
	t.Alignment = child.Alignment

	child.Incref()
	t.ResizedPayload = &ResizedPayload{Child: child}
	return t, nil
}

// NewHVector builds HVECTOR(count, blocklength, stride, child). stride is in
// bytes, matching the "hvector" (as opposed to element-strided "vector")
// MPI-derived convention the rest of this package follows throughout.
func NewHVector(count, blocklength int, stride int64, child *Type, nestingLimit int) (*Type, error) {
	if count < 0 || blocklength < 0 {
		return nil, ErrBadArgs
	}
	if err := checkNesting(child, nestingLimit); err != nil {
		return nil, err
	}

	t := newNode(HVector)
	t.TreeDepth = child.TreeDepth + 1
	t.Size = uintptr(count) * uintptr(blocklength) * child.Size
	t.Extent = uintptr(int64(count-1)*stride) + uintptr(blocklength)*child.Extent

	blockExtent := int64(blocklength) * int64(child.Extent)
	var lo, hi int64
	for i := 0; i < count; i++ {
		base := int64(i) * stride
		blkLo := base + child.TrueLB
		blkHi := base + blockExtent - int64(child.Extent) + child.TrueUB
		if i == 0 {
			lo, hi = blkLo, blkHi
		} else {
			lo = min64(lo, blkLo)
			hi = max64(hi, blkHi)
		}
	}
	if count == 0 {
		lo, hi = 0, 0
	}
	t.TrueLB = lo
	t.TrueUB = hi
	t.LB = t.TrueLB
	t.UB = t.LB + int64(t.Extent)
	t.IsContig = stride == blockExtent && child.IsContig
	t.Alignment = child.Alignment
	switch {
	case t.IsContig:
		t.NumContig = 1
	case child.IsContig:
		// Elements within one block are contiguous (child has no internal
		// gaps), so each block collapses to a single run; only the
		// inter-block stride can still introduce a gap.
		t.NumContig = uintptr(count)
	default:
		t.NumContig = uintptr(count) * uintptr(blocklength) * child.NumContig
	}

	child.Incref()
	t.HVectorPayload = &HVectorPayload{Count: count, Blocklength: blocklength, Stride: stride, Child: child}
	return t, nil
}

// NewBlkHindx builds BLKHINDX(count, blocklength, displs, child): a
// block-indexed type where every block shares one blocklength.
func NewBlkHindx(count, blocklength int, displs []int64, child *Type, nestingLimit int) (*Type, error) {
	if count < 0 || blocklength < 0 || len(displs) != count {
		return nil, ErrBadArgs
	}
	if err := checkNesting(child, nestingLimit); err != nil {
		return nil, err
	}

	t := newNode(BlkHindx)
	t.TreeDepth = child.TreeDepth + 1
	t.Size = uintptr(count) * uintptr(blocklength) * child.Size

	blockSpan := int64(blocklength) * int64(child.Extent)
	var lo, hi int64
	for i, d := range displs {
		blkLo := d + child.TrueLB
		blkHi := d + blockSpan - int64(child.Extent) + child.TrueUB
		if i == 0 {
			lo, hi = blkLo, blkHi
		} else {
			lo = min64(lo, blkLo)
			hi = max64(hi, blkHi)
		}
	}
	if count == 0 {
		lo, hi = 0, 0
	}
	t.TrueLB = lo
	t.TrueUB = hi
	t.LB = t.TrueLB
	t.Extent = uintptr(t.TrueUB - t.TrueLB)
	t.UB = t.LB + int64(t.Extent)
	t.IsContig = count <= 1 && child.IsContig && uintptr(blocklength)*child.Size == t.Extent
	t.Alignment = child.Alignment
	if child.IsContig {
		t.NumContig = uintptr(count)
	} else {
		t.NumContig = uintptr(count) * uintptr(blocklength) * child.NumContig
	}

	displsCopy := append([]int64(nil), displs...)
	child.Incref()
	t.BlkHindxPayload = &BlkHindxPayload{Count: count, Blocklength: blocklength, Displs: displsCopy, Child: child}
	return t, nil
}

// NewHindexed builds HINDEXED(count, blocklengths, displs, child).
func NewHindexed(count int, blocklengths []int, displs []int64, child *Type, nestingLimit int) (*Type, error) {
	if count < 0 || len(blocklengths) != count || len(displs) != count {
		return nil, ErrBadArgs
	}
	for _, b := range blocklengths {
		if b < 0 {
			return nil, ErrBadArgs
		}
	}
	if err := checkNesting(child, nestingLimit); err != nil {
		return nil, err
	}

	t := newNode(Hindexed)
	t.TreeDepth = child.TreeDepth + 1

	var size uintptr
	var lo, hi int64
	var numContig uintptr
	for i := range blocklengths {
		size += uintptr(blocklengths[i]) * child.Size
		if child.IsContig {
			numContig++
		} else {
			numContig += uintptr(blocklengths[i]) * child.NumContig
		}
		blockSpan := int64(blocklengths[i]) * int64(child.Extent)
		blkLo := displs[i] + child.TrueLB
		blkHi := displs[i] + blockSpan - int64(child.Extent) + child.TrueUB
		if i == 0 {
			lo, hi = blkLo, blkHi
		} else {
			lo = min64(lo, blkLo)
			hi = max64(hi, blkHi)
		}
	}
	if count == 0 {
		lo, hi = 0, 0
	}
	t.Size = size
	t.TrueLB = lo
	t.TrueUB = hi
	t.LB = t.TrueLB
	t.Extent = uintptr(t.TrueUB - t.TrueLB)
	t.UB = t.LB + int64(t.Extent)
	t.IsContig = count <= 1 && child.IsContig && t.Size == t.Extent
	t.Alignment = child.Alignment
	t.NumContig = numContig

	blensCopy := append([]int(nil), blocklengths...)
	displsCopy := append([]int64(nil), displs...)
	child.Incref()
	t.HindexedPayload = &HindexedPayload{Count: count, Blocklengths: blensCopy, Displs: displsCopy, Child: child}
	return t, nil
}

// NewStruct builds STRUCT(count, blocklengths, displs, types).
func NewStruct(count int, blocklengths []int, displs []int64, types []*Type, nestingLimit int) (*Type, error) {
	if count < 0 || len(blocklengths) != count || len(displs) != count || len(types) != count {
		return nil, ErrBadArgs
	}
	maxDepth := 0
	for i, b := range blocklengths {
		if b < 0 {
			return nil, ErrBadArgs
		}
		if types[i].TreeDepth > maxDepth {
			maxDepth = types[i].TreeDepth
		}
	}
	if maxDepth+1 > nestingLimit {
		return nil, ErrBadArgs
	}

	t := newNode(Struct)
	t.TreeDepth = maxDepth + 1

	var size uintptr
	var lo, hi int64
	var numContig uintptr
	var alignment uintptr
	for i := range types {
		c := types[i]
		size += uintptr(blocklengths[i]) * c.Size
		numContig += uintptr(blocklengths[i]) * c.NumContig
		if c.Alignment > alignment {
			alignment = c.Alignment
		}
		blockSpan := int64(blocklengths[i]) * int64(c.Extent)
		blkLo := displs[i] + c.TrueLB
		blkHi := displs[i] + blockSpan - int64(c.Extent) + c.TrueUB
		if i == 0 {
			lo, hi = blkLo, blkHi
		} else {
			lo = min64(lo, blkLo)
			hi = max64(hi, blkHi)
		}
	}
	if count == 0 {
		lo, hi = 0, 0
	}
	t.Size = size
	t.TrueLB = lo
	t.TrueUB = hi
	t.LB = t.TrueLB
	t.Extent = uintptr(t.TrueUB - t.TrueLB)
	t.UB = t.LB + int64(t.Extent)
	t.IsContig = count <= 1 && types[0].IsContig && t.Size == t.Extent
	if count == 0 {
		t.IsContig = true
	}
	t.Alignment = alignment
	t.NumContig = numContig

	blensCopy := append([]int(nil), blocklengths...)
	displsCopy := append([]int64(nil), displs...)
	typesCopy := append([]*Type(nil), types...)
	for _, c := range typesCopy {
		c.Incref()
	}
	t.StructPayload = &StructPayload{Count: count, Blocklengths: blensCopy, Displs: displsCopy, Types: typesCopy}
	return t, nil
}

// SubarrayOrder mirrors yaksa_subarray_order_e.
type SubarrayOrder int

const (
	OrderC SubarrayOrder = iota
	OrderFortran
)

// NewSubarray builds SUBARRAY(ndims, sizes, subsizes, starts, order, child)
// by expanding it into a chain of HVECTORs, so that every later operation
// flows through the HVECTOR code path exactly as the rest of this package
// handles it.
func NewSubarray(ndims int, sizes, subsizes, starts []int, order SubarrayOrder, child *Type, nestingLimit int) (*Type, error) {
	if ndims <= 0 || len(sizes) != ndims || len(subsizes) != ndims || len(starts) != ndims {
		return nil, ErrBadArgs
	}
	for i := 0; i < ndims; i++ {
		if sizes[i] < 0 || subsizes[i] < 0 || starts[i] < 0 {
			return nil, ErrBadArgs
		}
		if subsizes[i]+starts[i] > sizes[i] {
			return nil, ErrBadArgs
		}
	}
	if err := checkNesting(child, nestingLimit); err != nil {
		return nil, err
	}

	dims := make([]int, ndims)
	sub := make([]int, ndims)
	sta := make([]int, ndims)
	copy(dims, sizes)
	copy(sub, subsizes)
	copy(sta, starts)
	if order == OrderFortran {
		reverse(dims)
		reverse(sub)
		reverse(sta)
	}

	// Build from the innermost dimension outward: each step wraps the
	// previous chain as the child of an HVECTOR describing the next
	// dimension's stride, with a RESIZED to apply the starting offset. The
	// nesting limit was already checked against child/nestingLimit above;
	// the internal HVECTOR/RESIZED chain is bookkeeping this constructor
	// introduces on the user's behalf, so it is built against an
	// unconstrained limit rather than spending the user's own budget.
	const unconstrained = 1 << 30
	cur := child
	stride := int64(child.Extent)
	for i := ndims - 1; i >= 0; i-- {
		hv, err := NewHVector(sub[i], 1, stride*1, cur, unconstrained)
		if err != nil {
			return nil, err
		}
		// Blocklength 1 with a per-element child already captures one
		// dimension; fold the start offset into an accompanying resize.
		offset := int64(sta[i]) * stride
		resized, err := NewResized(hv, offset, hv.Extent, unconstrained)
		if err != nil {
			return nil, err
		}
		if err := hv.Free(); err != nil {
			return nil, err
		}
		cur = resized
		stride *= int64(dims[i])
	}

	t := newNode(Subarray)
	t.TreeDepth = child.TreeDepth + 1
	t.Size = cur.Size
	t.Extent = cur.Extent
	t.LB = cur.LB
	t.UB = cur.UB
	t.TrueLB = cur.TrueLB
	t.TrueUB = cur.TrueUB
	t.IsContig = cur.IsContig
	t.NumContig = cur.NumContig
	t.Alignment = cur.Alignment
	t.SubarrayPayload = &SubarrayPayload{Ndims: ndims, Primary: cur}
	return t, nil
}

func reverse(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
