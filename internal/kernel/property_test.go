package kernel

import (
	"math/rand"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/dtpack/dtpack/internal/dtype"
	"github.com/dtpack/dtpack/internal/dtype/dtpoolsgen"
)

// TestPackUnpack_RandomTreesRoundTrip is the property test for invariant
// 8.1: packing a random datatype tree and unpacking the result back into a
// freshly zeroed buffer reproduces every byte the tree's runs actually
// touch, regardless of the tree's shape.
func TestPackUnpack_RandomTreesRoundTrip(t *testing.T) {
	for seed := int64(0); seed < 200; seed++ {
		rng := rand.New(rand.NewSource(seed))
		depth := rng.Intn(4)

		ty, err := dtpoolsgen.Gen(rng, depth, depth+1)
		require.NoError(t, err)

		if ty.Extent == 0 {
			ty.Free()
			continue
		}

		typed := make([]byte, ty.Extent)
		for i := range typed {
			typed[i] = byte(i + int(seed))
		}
		packed := make([]byte, ty.Size)

		n, err := Pack(unsafe.Pointer(&typed[0]), 1, ty, 0, unsafe.Pointer(&packed[0]), ty.Size)
		require.NoError(t, err)
		require.Equal(t, ty.Size, n)

		restored := make([]byte, ty.Extent)
		m, err := Unpack(unsafe.Pointer(&packed[0]), n, unsafe.Pointer(&restored[0]), 1, ty, 0)
		require.NoError(t, err)
		require.Equal(t, ty.Size, m)

		verifyTouchedBytesMatch(t, ty, typed, restored)
		ty.Free()
	}
}

// verifyTouchedBytesMatch compares only the bytes the type's runs actually
// touch: Unpack never writes the gap bytes between runs, so those are
// allowed to differ between the seeded typed buffer and the zeroed
// restored one.
func verifyTouchedBytesMatch(t *testing.T, ty *dtype.Type, typed, restored []byte) {
	t.Helper()
	base := uintptr(unsafe.Pointer(&typed[0]))
	err := walkRuns(unsafe.Pointer(&typed[0]), ty, func(src unsafe.Pointer, length uintptr, leaf *dtype.Type) error {
		off := uintptr(src) - base
		require.Equal(t, typed[off:off+length], restored[off:off+length])
		return nil
	})
	require.NoError(t, err)
}
