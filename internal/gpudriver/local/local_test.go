package local

import (
	"context"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/dtpack/dtpack/internal/classify"
	"github.com/dtpack/dtpack/internal/dtype"
	"github.com/dtpack/dtpack/internal/gpudriver"
)

func int32Type() *dtype.Type {
	var x int32
	return dtype.NewBuiltin(1, "int32", unsafe.Sizeof(x), unsafe.Alignof(x))
}

func TestDriver_MallocDevice_ClassifiesAsGPU(t *testing.T) {
	d := New(0)
	ptr, err := d.MallocDevice(3, 4096)
	require.NoError(t, err)

	attr, ok := d.GetPtrAttr(ptr)
	require.True(t, ok)
	require.Equal(t, classify.GPU, attr.Kind)
	require.Equal(t, 3, attr.DeviceID)
}

func TestDriver_MallocHost_ClassifiesAsRegisteredHost(t *testing.T) {
	d := New(0)
	ptr, err := d.MallocHost(4096)
	require.NoError(t, err)

	attr, ok := d.GetPtrAttr(ptr)
	require.True(t, ok)
	require.Equal(t, classify.RegisteredHost, attr.Kind)
}

func TestDriver_UnknownPointerUnclaimed(t *testing.T) {
	d := New(0)
	var x int
	_, ok := d.GetPtrAttr(unsafe.Pointer(&x))
	require.False(t, ok)
}

func TestDriver_IPack_SynchronizeCompletesCopy(t *testing.T) {
	d := New(0)
	ty := int32Type()

	devPtr, err := d.MallocDevice(0, 64)
	require.NoError(t, err)
	hostPtr, err := d.MallocHost(64)
	require.NoError(t, err)

	devBytes := unsafe.Slice((*byte)(devPtr), 64)
	src := int32ToBytes([]int32{1, 2, 3, 4})
	copy(devBytes, src)

	ev, err := d.IPack(context.Background(), devPtr, hostPtr, 4, ty)
	require.NoError(t, err)
	require.NoError(t, ev.Synchronize())

	hostBytes := unsafe.Slice((*byte)(hostPtr), 16)
	require.Equal(t, src, hostBytes)
	require.NoError(t, ev.Destroy())
}

func TestDriver_CheckP2P(t *testing.T) {
	d := New(0, WithP2P(0, 1))
	ok, err := d.CheckP2P(0, 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = d.CheckP2P(0, 2)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDriver_AddDependency_OrdersCompletion(t *testing.T) {
	d := New(0)
	ty := int32Type()

	srcPtr, err := d.MallocDevice(0, 64)
	require.NoError(t, err)
	midPtr, err := d.MallocHost(64)
	require.NoError(t, err)
	dstPtr, err := d.MallocDevice(1, 64)
	require.NoError(t, err)

	srcBytes := unsafe.Slice((*byte)(srcPtr), 64)
	copy(srcBytes, int32ToBytes([]int32{9, 9, 9, 9}))

	evInt, err := d.IPack(context.Background(), srcPtr, midPtr, 4, ty)
	require.NoError(t, err)
	evFinal, err := d.IPack(context.Background(), midPtr, dstPtr, 4, ty)
	require.NoError(t, err)

	require.NoError(t, d.AddDependency(evFinal, gpudriver.Event(evInt)))
	require.NoError(t, evFinal.Synchronize())

	dstBytes := unsafe.Slice((*byte)(dstPtr), 16)
	require.Equal(t, int32ToBytes([]int32{9, 9, 9, 9}), dstBytes)
}

func int32ToBytes(v []int32) []byte {
	out := make([]byte, len(v)*4)
	for i, x := range v {
		*(*int32)(unsafe.Pointer(&out[i*4])) = x
	}
	return out
}
