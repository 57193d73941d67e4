package kernel

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/dtpack/dtpack/internal/dtype"
)

func int32Type() *dtype.Type {
	var x int32
	return dtype.NewBuiltin(1, "int32", unsafe.Sizeof(x), unsafe.Alignof(x))
}

func TestPack_VectorScenario(t *testing.T) {
	child := int32Type()
	ty, err := dtype.NewHVector(3, 2, 3*int64(child.Extent), child, 3)
	require.NoError(t, err)

	in := make([]int32, 12)
	for i := range in {
		in[i] = int32(i)
	}
	out := make([]byte, 24)

	n, err := Pack(unsafe.Pointer(&in[0]), 1, ty, 0, unsafe.Pointer(&out[0]), 24)
	require.NoError(t, err)
	require.EqualValues(t, 24, n)

	got := bytesToInt32(out)
	require.Equal(t, []int32{0, 1, 3, 4, 6, 7}, got)
}

func TestUnpack_VectorScenario(t *testing.T) {
	child := int32Type()
	ty, err := dtype.NewHVector(3, 2, 3*int64(child.Extent), child, 3)
	require.NoError(t, err)

	packed := int32ToBytes([]int32{0, 1, 3, 4, 6, 7})
	dst := make([]int32, 12)

	n, err := Unpack(unsafe.Pointer(&packed[0]), uintptr(len(packed)), unsafe.Pointer(&dst[0]), 1, ty, 0)
	require.NoError(t, err)
	require.EqualValues(t, 24, n)

	require.Equal(t, int32(0), dst[0])
	require.Equal(t, int32(1), dst[1])
	require.Equal(t, int32(0), dst[2], "untouched position must remain zero")
	require.Equal(t, int32(3), dst[3])
	require.Equal(t, int32(4), dst[4])
}

func TestAccumulateUnpack_Sum(t *testing.T) {
	child := int32Type()
	ty, err := dtype.NewHVector(3, 2, 3*int64(child.Extent), child, 3)
	require.NoError(t, err)

	dst := []int32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	packed := int32ToBytes([]int32{10, 20, 30, 40, 50, 60})

	_, err = AccumulateUnpack(unsafe.Pointer(&packed[0]), uintptr(len(packed)), unsafe.Pointer(&dst[0]), 1, ty, 0, OpSum)
	require.NoError(t, err)

	require.Equal(t, int32(11), dst[0])
	require.Equal(t, int32(22), dst[1])
	require.Equal(t, int32(3), dst[2], "untouched position must be unchanged")
	require.Equal(t, int32(34), dst[3])
}

func TestPack_ContigIsPlainCopy(t *testing.T) {
	child := int32Type()
	ty, err := dtype.NewContig(10, child, 3)
	require.NoError(t, err)

	in := make([]int32, 10)
	for i := range in {
		in[i] = int32(i + 1)
	}
	out := make([]byte, 40)

	n, err := Pack(unsafe.Pointer(&in[0]), 1, ty, 0, unsafe.Pointer(&out[0]), 40)
	require.NoError(t, err)
	require.EqualValues(t, 40, n)
	require.Equal(t, in, bytesToInt32(out))
}

func bytesToInt32(b []byte) []int32 {
	out := make([]int32, len(b)/4)
	for i := range out {
		out[i] = *(*int32)(unsafe.Pointer(&b[i*4]))
	}
	return out
}

func int32ToBytes(v []int32) []byte {
	out := make([]byte, len(v)*4)
	for i, x := range v {
		*(*int32)(unsafe.Pointer(&out[i*4])) = x
	}
	return out
}
