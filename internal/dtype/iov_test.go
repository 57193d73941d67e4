package dtype

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIOV_VectorScenario(t *testing.T) {
	child := intType()
	ty, err := NewHVector(3, 2, 3*int64(child.Extent), child, 3)
	require.NoError(t, err)

	runs := IOV(ty, 1)

	// Adjacent elements within one block (offsets 0,1 / 3,4 / 6,7 in units
	// of child.Size) are byte-adjacent and coalesce into one run each.
	var offsets []int64
	for _, r := range runs {
		offsets = append(offsets, r.Offset/int64(child.Size))
		require.EqualValues(t, 2*child.Size, r.Length)
	}
	require.Equal(t, []int64{0, 3, 6}, offsets)
}

func TestIOV_ContigCollapsesToSingleRun(t *testing.T) {
	child := intType()
	ty, err := NewContig(10, child, 3)
	require.NoError(t, err)

	runs := IOV(ty, 4)
	require.Len(t, runs, 1)
	require.EqualValues(t, 4*ty.Size, runs[0].Length)
}

func TestIovLen_MatchesIOV(t *testing.T) {
	child := intType()
	ty, err := NewHVector(3, 2, 4*int64(child.Extent), child, 3)
	require.NoError(t, err)

	require.EqualValues(t, len(IOV(ty, 1)), IovLen(ty, 1))
}
