// Package dtpoolsgen generates random datatype trees for property tests of
// the pack/unpack round-trip invariant: any tree this package builds packs
// to Size() bytes and unpacks back to byte-identical typed contents,
// regardless of shape. Used only by tests; it has no caller in the regular
// build.
package dtpoolsgen

import (
	"math/rand"

	"github.com/dtpack/dtpack/internal/dtype"
)

// leaf returns the single builtin kind every generated tree bottoms out at: a
// byte, so the resulting buffers can be filled and compared without caring
// about a real scalar's bit pattern.
func leaf() *dtype.Type {
	return dtype.NewBuiltin(0, "byte", 1, 1)
}

// Gen builds a random datatype tree of the given nesting depth (0 returns a
// bare builtin leaf) using rng for every shape decision, so a seeded rng
// reproduces one tree deterministically across runs. nestingLimit is
// threaded through unchanged to every constructor call, matching how a real
// caller would bound tree depth.
func Gen(rng *rand.Rand, depth, nestingLimit int) (*dtype.Type, error) {
	if depth <= 0 {
		return leaf(), nil
	}
	child, err := Gen(rng, depth-1, nestingLimit)
	if err != nil {
		return nil, err
	}

	// Every constructor below Increfs child itself (possibly more than
	// once, for the multi-occurrence STRUCT case); child.Free releases the
	// one reference Gen's own recursive call holds, leaving the parent
	// node as sole owner of whatever it kept.
	defer child.Free()

	switch rng.Intn(6) {
	case 0:
		count := 1 + rng.Intn(8)
		return dtype.NewContig(count, child, nestingLimit)

	case 1:
		count := 1 + rng.Intn(6)
		block := 1 + rng.Intn(4)
		stride := int64(block) * int64(child.Extent) * int64(1+rng.Intn(3))
		return dtype.NewHVector(count, block, stride, child, nestingLimit)

	case 2:
		count := 1 + rng.Intn(5)
		block := 1 + rng.Intn(3)
		displs := make([]int64, count)
		step := int64(block) * int64(child.Extent) * 2
		for i := range displs {
			displs[i] = int64(i) * step
		}
		return dtype.NewBlkHindx(count, block, displs, child, nestingLimit)

	case 3:
		count := 1 + rng.Intn(4)
		blocklens := make([]int, count)
		displs := make([]int64, count)
		var cursor int64
		for i := range blocklens {
			blocklens[i] = 1 + rng.Intn(3)
			displs[i] = cursor
			cursor += int64(blocklens[i])*int64(child.Extent) + int64(rng.Intn(3))*int64(child.Extent)
		}
		return dtype.NewHindexed(count, blocklens, displs, child, nestingLimit)

	case 4:
		n := 2 + rng.Intn(3)
		blocklens := make([]int, n)
		displs := make([]int64, n)
		types := make([]*dtype.Type, n)
		var cursor int64
		for i := 0; i < n; i++ {
			blocklens[i] = 1 + rng.Intn(3)
			displs[i] = cursor
			types[i] = child
			cursor += int64(blocklens[i]) * int64(child.Extent)
		}
		return dtype.NewStruct(n, blocklens, displs, types, nestingLimit)

	default:
		lb := int64(rng.Intn(3)) * int64(child.Extent)
		extent := child.Extent + uintptr(rng.Intn(3))*child.Extent
		return dtype.NewResized(child, lb, extent, nestingLimit)
	}
}
