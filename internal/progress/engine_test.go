package progress

import (
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/dtpack/dtpack/internal/dtype"
	"github.com/dtpack/dtpack/internal/gpudriver/local"
	"github.com/dtpack/dtpack/internal/obsmetrics"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func contigType(elemBytes int) *dtype.Type {
	byteType := dtype.NewBuiltin(0, "byte", 1, 1)
	ty, err := dtype.NewContig(elemBytes, byteType, 8)
	if err != nil {
		panic(err)
	}
	return ty
}

func waitDrain(t *testing.T, e *Engine, counter *atomic.Int64) {
	t.Helper()
	for i := 0; i < 10000 && (counter.Load() > 0 || e.Pending()); i++ {
		require.NoError(t, e.Poke())
	}
	require.Equal(t, int64(0), counter.Load())
}

func TestEngine_D2RH_CompletesAndDrainsSlab(t *testing.T) {
	d := local.New(0)
	ty := contigType(64)

	devPtr, err := d.MallocDevice(0, 1<<20)
	require.NoError(t, err)
	hostPtr, err := d.MallocHost(1 << 20)
	require.NoError(t, err)

	src := make([]byte, 64)
	for i := range src {
		src[i] = byte(i)
	}
	copy(unsafe.Slice((*byte)(devPtr), 64), src)

	e := New(1<<20, nil)
	var counter atomic.Int64
	counter.Add(1)

	require.NoError(t, e.Enqueue(EnqueueRequest{
		Kind:     KindD2RH,
		Pup:      Pack,
		Driver:   d,
		InDevice: 0,
		Inbuf:    devPtr,
		Outbuf:   hostPtr,
		Type:     ty,
		Count:    1,
		CompletionCounter: &counter,
	}))

	waitDrain(t, e, &counter)
	require.Equal(t, src, unsafe.Slice((*byte)(hostPtr), 64))

	slab := e.deviceSlabs[slabKey{driverID: d.DriverID(), device: 0}]
	require.NotNil(t, slab)
	require.Equal(t, uintptr(0), slab.Head())
	require.Equal(t, uintptr(0), slab.Tail())
}

func TestEngine_RH2D_StagesThroughHostSlab(t *testing.T) {
	d := local.New(0)
	ty := contigType(32)

	hostSrc, err := d.MallocHost(1 << 20)
	require.NoError(t, err)
	devDst, err := d.MallocDevice(1, 1<<20)
	require.NoError(t, err)

	src := make([]byte, 32)
	for i := range src {
		src[i] = byte(200 + i)
	}
	copy(unsafe.Slice((*byte)(hostSrc), 32), src)

	e := New(1<<20, nil)
	var counter atomic.Int64
	counter.Add(1)

	require.NoError(t, e.Enqueue(EnqueueRequest{
		Kind:      KindRH2D,
		Pup:       Pack,
		Driver:    d,
		OutDevice: 1,
		Inbuf:     hostSrc,
		Outbuf:    devDst,
		Type:      ty,
		Count:     1,
		CompletionCounter: &counter,
	}))

	waitDrain(t, e, &counter)
	require.Equal(t, src, unsafe.Slice((*byte)(devDst), 32))
}

func TestEngine_StagedD2D_FourChunksFIFO(t *testing.T) {
	d := local.New(0) // p2p disabled between device 0 and 1
	elemBytes := 256 * 1024
	ty := contigType(elemBytes)
	slabSize := uintptr(1 << 20) // 1 MiB -> 4 elements per slab

	devSrc, err := d.MallocDevice(0, 16*uintptr(elemBytes))
	require.NoError(t, err)
	devDst, err := d.MallocDevice(1, 16*uintptr(elemBytes))
	require.NoError(t, err)

	srcBytes := unsafe.Slice((*byte)(devSrc), 16*elemBytes)
	for i := range srcBytes {
		srcBytes[i] = byte(i)
	}

	reg := prometheus.NewRegistry()
	metrics := obsmetrics.New(reg)
	e := New(slabSize, metrics)
	var counter atomic.Int64
	counter.Add(1)

	require.NoError(t, e.Enqueue(EnqueueRequest{
		Kind:      KindD2DStaged,
		Pup:       Pack,
		Driver:    d,
		InDevice:  0,
		OutDevice: 1,
		Inbuf:     devSrc,
		Outbuf:    devDst,
		Type:      ty,
		Count:     16,
		CompletionCounter: &counter,
	}))

	waitDrain(t, e, &counter)

	require.Equal(t, 4.0, counterValue(t, metrics.ChunksIssued))
	require.Equal(t, 4.0, counterValue(t, metrics.ChunksRetired))
	require.Equal(t, srcBytes, unsafe.Slice((*byte)(devDst), 16*elemBytes))

	devSlab := e.deviceSlabs[slabKey{driverID: d.DriverID(), device: 0}]
	hostSlab := e.hostSlabs[d.DriverID()]
	require.NotNil(t, devSlab)
	require.NotNil(t, hostSlab)
	require.Equal(t, uintptr(0), devSlab.Head())
	require.Equal(t, uintptr(0), devSlab.Tail())
	require.Equal(t, uintptr(0), hostSlab.Head())
	require.Equal(t, uintptr(0), hostSlab.Tail())
}

func TestEngine_D2DSingle_NoSlabOneChunk(t *testing.T) {
	d := local.New(0)
	ty := contigType(16)

	devA, err := d.MallocDevice(0, 1<<20)
	require.NoError(t, err)
	devB, err := d.MallocDevice(0, 1<<20)
	require.NoError(t, err)

	src := make([]byte, 16*4)
	for i := range src {
		src[i] = byte(i)
	}
	copy(unsafe.Slice((*byte)(devA), len(src)), src)

	e := New(1<<20, nil)
	var counter atomic.Int64
	counter.Add(1)

	require.NoError(t, e.Enqueue(EnqueueRequest{
		Kind:     KindD2DSingle,
		Pup:      Pack,
		Driver:   d,
		InDevice: 0,
		OutDevice: 0,
		Inbuf:    devA,
		Outbuf:   devB,
		Type:     ty,
		Count:    4,
		CompletionCounter: &counter,
	}))

	waitDrain(t, e, &counter)
	require.Equal(t, src, unsafe.Slice((*byte)(devB), len(src)))

	e.mu.Lock()
	_, hasDeviceSlab := e.deviceSlabs[slabKey{driverID: d.DriverID(), device: 0}]
	e.mu.Unlock()
	require.False(t, hasDeviceSlab)
}
