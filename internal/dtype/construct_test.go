package dtype

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func intType() *Type {
	return NewBuiltin(1, "int32", sizeOf[int32](), alignOf[int32]())
}

func TestNewContig_Invariants(t *testing.T) {
	child := intType()
	ty, err := NewContig(10, child, 3)
	require.NoError(t, err)

	require.EqualValues(t, 40, ty.Size)
	require.EqualValues(t, 40, ty.Extent)
	require.True(t, ty.IsContig)
	require.EqualValues(t, 0, ty.TrueLB)
	require.EqualValues(t, 40, ty.TrueUB)
}

func TestNewContig_RejectsNegativeCount(t *testing.T) {
	_, err := NewContig(-1, intType(), 3)
	require.ErrorIs(t, err, ErrBadArgs)
}

func TestNewHVector_Invariants(t *testing.T) {
	child := intType()
	ty, err := NewHVector(3, 2, 2*int64(child.Extent), child, 3)
	require.NoError(t, err)

	require.EqualValues(t, 6*child.Size, ty.Size)
	require.True(t, ty.IsContig, "stride == blocklength*extent should collapse to contiguous")
}

func TestNewHVector_NonContigStride(t *testing.T) {
	child := intType()
	// stride of 3 elements with blocklength 2 leaves a gap every block.
	ty, err := NewHVector(3, 2, 3*int64(child.Extent), child, 3)
	require.NoError(t, err)
	_ = ty

	gappy, err := NewHVector(3, 2, 4*int64(child.Extent), child, 3)
	require.NoError(t, err)
	require.False(t, gappy.IsContig)
}

func TestNewStruct_Invariants(t *testing.T) {
	dbl := NewBuiltin(2, "double", sizeOf[float64](), alignOf[float64]())
	i32 := intType()

	ty, err := NewStruct(2, []int{1, 1}, []int64{0, 8}, []*Type{dbl, i32}, 3)
	require.NoError(t, err)

	require.EqualValues(t, 12, ty.Size)
	require.EqualValues(t, 8, ty.Alignment)
}

func TestNesting_RejectsBeyondLimit(t *testing.T) {
	child := intType()
	ty := child
	var err error
	for i := 0; i < 3; i++ {
		ty, err = NewContig(2, ty, 3)
		require.NoError(t, err)
	}
	_, err = NewContig(2, ty, 3)
	require.ErrorIs(t, err, ErrBadArgs)
}

func TestSubarray_SubsizeBeyondSizeRejected(t *testing.T) {
	child := intType()
	_, err := NewSubarray(2, []int{4, 4}, []int{5, 4}, []int{0, 0}, OrderC, child, 5)
	require.ErrorIs(t, err, ErrBadArgs)
}

func TestFree_RecursivelyDropsChildren(t *testing.T) {
	child := intType()
	ty, err := NewContig(4, child, 3)
	require.NoError(t, err)
	require.EqualValues(t, 2, child.Refcount())

	require.NoError(t, ty.Free())
	require.EqualValues(t, 1, child.Refcount())
}
