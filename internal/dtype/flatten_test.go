package dtype

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlattenUnflatten_RoundTripsContig(t *testing.T) {
	child := intType()
	ty, err := NewContig(10, child, 3)
	require.NoError(t, err)

	buf, err := Flatten(ty)
	require.NoError(t, err)

	size, err := FlattenSize(ty)
	require.NoError(t, err)
	require.EqualValues(t, len(buf), size)

	resolve := func(seedID uint32) (*Type, error) {
		require.EqualValues(t, 1, seedID)
		return child, nil
	}

	round, err := Unflatten(buf, resolve)
	require.NoError(t, err)

	require.Equal(t, ty.Kind, round.Kind)
	require.Equal(t, ty.Size, round.Size)
	require.Equal(t, ty.Extent, round.Extent)
	require.Equal(t, ty.IsContig, round.IsContig)
	require.Equal(t, ty.TrueLB, round.TrueLB)
	require.Equal(t, ty.TrueUB, round.TrueUB)
}

func TestFlattenUnflatten_RoundTripsStruct(t *testing.T) {
	dbl := NewBuiltin(2, "double", sizeOf[float64](), alignOf[float64]())
	i32 := NewBuiltin(1, "int32", sizeOf[int32](), alignOf[int32]())

	ty, err := NewStruct(2, []int{1, 1}, []int64{0, 8}, []*Type{dbl, i32}, 3)
	require.NoError(t, err)

	buf, err := Flatten(ty)
	require.NoError(t, err)

	resolve := func(seedID uint32) (*Type, error) {
		switch seedID {
		case 1:
			return i32, nil
		case 2:
			return dbl, nil
		default:
			return nil, ErrInternal
		}
	}

	round, err := Unflatten(buf, resolve)
	require.NoError(t, err)
	require.Equal(t, ty.Size, round.Size)
	require.Equal(t, ty.Alignment, round.Alignment)
	require.Len(t, round.StructPayload.Types, 2)
}
