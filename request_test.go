package dtpack

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func bytesOf(n int) []byte { return make([]byte, n) }

func TestPack_H2H_VectorRoundTrip(t *testing.T) {
	ctx, err := NewContext(Config{}, nil)
	require.NoError(t, err)

	i32, err := ctx.Predefined(SeedInt32)
	require.NoError(t, err)
	defer i32.Free()

	// HVECTOR(count=4, blocklength=2, stride=3 elements): a gap after every
	// pair of int32s.
	vec, err := ctx.TypeCreateHVector(4, 2, 3*int64(i32.Extent()), i32)
	require.NoError(t, err)
	defer vec.Free()
	require.False(t, vec.IsContig())

	typed := make([]int32, 4*3)
	for i := range typed {
		typed[i] = int32(i + 1)
	}
	packed := bytesOf(int(vec.Size()))

	req, n, err := ctx.Pack(unsafe.Pointer(&typed[0]), 1, vec, 0, unsafe.Pointer(&packed[0]), uintptr(len(packed)), nil)
	require.NoError(t, err)
	require.NotNil(t, req)
	require.NoError(t, req.Wait())
	require.Equal(t, vec.Size(), n)
	require.Equal(t, "H2H", req.Kind())

	out := make([]int32, 4*3)
	req2, n2, err := ctx.Unpack(unsafe.Pointer(&packed[0]), n, unsafe.Pointer(&out[0]), 1, vec, 0, nil)
	require.NoError(t, err)
	require.NotNil(t, req2)
	require.NoError(t, req2.Wait())
	require.Equal(t, vec.Size(), n2)

	require.Equal(t, []int32{1, 2, 0, 4, 5, 0, 7, 8, 0, 10, 11, 0}, out)
}

func TestPack_H2H_HindexedBlock(t *testing.T) {
	ctx, err := NewContext(Config{}, nil)
	require.NoError(t, err)

	i32, err := ctx.Predefined(SeedInt32)
	require.NoError(t, err)
	defer i32.Free()

	// Two int32 blocks at byte displacements 0 and 16, inside a 5-element
	// typed buffer (20 bytes) so the second block's displacement fits.
	ty, err := ctx.TypeCreateHindexedBlock(2, 1, []int64{0, 16}, i32)
	require.NoError(t, err)
	defer ty.Free()

	typed := make([]int32, 5)
	typed[0] = 100
	typed[4] = 200
	packed := bytesOf(int(ty.Size()))

	req, _, err := ctx.Pack(unsafe.Pointer(&typed[0]), 1, ty, 0, unsafe.Pointer(&packed[0]), uintptr(len(packed)), nil)
	require.NoError(t, err)
	require.NoError(t, req.Wait())

	out := make([]int32, 5)
	req2, _, err := ctx.Unpack(unsafe.Pointer(&packed[0]), uintptr(len(packed)), unsafe.Pointer(&out[0]), 1, ty, 0, nil)
	require.NoError(t, err)
	require.NoError(t, req2.Wait())
	require.Equal(t, int32(100), out[0])
	require.Equal(t, int32(200), out[4])
}

func TestPack_H2H_StructDisplacements(t *testing.T) {
	ctx, err := NewContext(Config{}, nil)
	require.NoError(t, err)

	i32, err := ctx.Predefined(SeedInt32)
	require.NoError(t, err)
	f64, err := ctx.Predefined(SeedDouble)
	require.NoError(t, err)

	st, err := ctx.TypeCreateStruct([]int{1, 1}, []int64{0, 8}, []*Type{i32, f64})
	require.NoError(t, err)
	i32.Free()
	f64.Free()
	defer st.Free()

	require.EqualValues(t, 12, st.Size())

	type rec struct {
		id int32
		_  int32
		v  float64
	}
	in := rec{id: 7, v: 3.25}
	packed := bytesOf(int(st.Size()))
	req, _, err := ctx.Pack(unsafe.Pointer(&in), 1, st, 0, unsafe.Pointer(&packed[0]), uintptr(len(packed)), nil)
	require.NoError(t, err)
	require.NoError(t, req.Wait())

	var out rec
	req2, _, err := ctx.Unpack(unsafe.Pointer(&packed[0]), uintptr(len(packed)), unsafe.Pointer(&out), 1, st, 0, nil)
	require.NoError(t, err)
	require.NoError(t, req2.Wait())
	require.Equal(t, in, out)
}

func TestAccumulate_SumOverwritesWithReduction(t *testing.T) {
	ctx, err := NewContext(Config{}, nil)
	require.NoError(t, err)

	i32, err := ctx.Predefined(SeedInt32)
	require.NoError(t, err)
	defer i32.Free()

	contig, err := ctx.TypeCreateContig(4, i32)
	require.NoError(t, err)
	defer contig.Free()
	require.True(t, contig.IsContig())

	dst := []int32{1, 2, 3, 4}
	src := []int32{10, 20, 30, 40}
	packed := bytesOf(int(contig.Size()))

	req, n, err := ctx.Pack(unsafe.Pointer(&src[0]), 1, contig, 0, unsafe.Pointer(&packed[0]), uintptr(len(packed)), nil)
	require.NoError(t, err)
	require.NoError(t, req.Wait())

	req2, _, err := ctx.Accumulate(unsafe.Pointer(&packed[0]), n, unsafe.Pointer(&dst[0]), 1, contig, 0, OpSum, nil)
	require.NoError(t, err)
	require.NoError(t, req2.Wait())

	require.Equal(t, []int32{11, 22, 33, 44}, dst)
}

func TestPack_ZeroCountReturnsNullRequest(t *testing.T) {
	ctx, err := NewContext(Config{}, nil)
	require.NoError(t, err)

	i32, err := ctx.Predefined(SeedInt32)
	require.NoError(t, err)
	defer i32.Free()

	var typed [4]byte
	var packed [4]byte
	req, n, err := ctx.Pack(unsafe.Pointer(&typed[0]), 0, i32, 0, unsafe.Pointer(&packed[0]), 4, nil)
	require.NoError(t, err)
	require.Nil(t, req)
	require.Zero(t, n)
}

func TestPack_GPU_RoutesThroughDriverAndSlab(t *testing.T) {
	ctx, err := NewTestContext(1 << 16)
	require.NoError(t, err)

	i32, err := ctx.Predefined(SeedInt32)
	require.NoError(t, err)
	defer i32.Free()

	contig, err := ctx.TypeCreateContig(1024, i32)
	require.NoError(t, err)
	defer contig.Free()

	driver := NewLocalDriver(9)
	ctx.RegisterDriver(driver)
	devPtr, err := driver.MallocDevice(0, contig.Size())
	require.NoError(t, err)
	defer driver.Free(devPtr, 0)

	host := make([]byte, contig.Size())
	for i := range host {
		host[i] = byte(i)
	}

	req, n, err := ctx.Pack(unsafe.Pointer(&host[0]), 1, contig, 0, devPtr, contig.Size(), nil)
	require.NoError(t, err)
	require.NotNil(t, req)
	require.Equal(t, "URH2D", req.Kind())
	require.NoError(t, req.Wait())
	require.Equal(t, contig.Size(), n)

	back := make([]byte, contig.Size())
	req2, _, err := ctx.Unpack(devPtr, n, unsafe.Pointer(&back[0]), 1, contig, 0, nil)
	require.NoError(t, err)
	require.Equal(t, "D2URH", req2.Kind())
	require.NoError(t, req2.Wait())
	require.Equal(t, host, back)
}

func TestPack_StagedD2D_NoP2P(t *testing.T) {
	ctx, err := NewContext(Config{SlabSize: 1 << 16}, nil)
	require.NoError(t, err)

	byteT, err := ctx.Predefined(SeedUint8)
	require.NoError(t, err)
	defer byteT.Free()

	driver := NewLocalDriver(3)
	ctx.RegisterDriver(driver)

	const n = 4096
	src, err := driver.MallocDevice(0, n)
	require.NoError(t, err)
	defer driver.Free(src, 0)
	dst, err := driver.MallocDevice(1, n)
	require.NoError(t, err)
	defer driver.Free(dst, 1)

	contigByte, err := ctx.TypeCreateContig(n, byteT)
	require.NoError(t, err)
	defer contigByte.Free()

	seed := make([]byte, n)
	for i := range seed {
		seed[i] = byte(i)
	}
	req, packedN, err := ctx.Pack(unsafe.Pointer(&seed[0]), 1, contigByte, 0, src, uintptr(n), nil)
	require.NoError(t, err)
	require.NoError(t, req.Wait())

	req2, _, err := ctx.Unpack(src, packedN, dst, 1, contigByte, 0, nil)
	require.NoError(t, err)
	require.Equal(t, "D2D_STAGED", req2.Kind())
	require.NoError(t, req2.Wait())
}

func TestNewContext_ContextsAreIndependent(t *testing.T) {
	c1, err := NewContext(Config{}, nil)
	require.NoError(t, err)
	c2, err := NewContext(Config{}, nil)
	require.NoError(t, err)
	require.NotEqual(t, c1.ID(), c2.ID())

	t1, err := c1.Predefined(SeedInt32)
	require.NoError(t, err)
	require.EqualValues(t, c1.ID(), t1.Handle()>>32)
}

func TestInfo_AppendAndGet(t *testing.T) {
	info := NewInfo()
	defer info.Free()
	info.Append(InfoKeyNestingLevel, "5", 1)
	v, ok := info.Get(InfoKeyNestingLevel)
	require.True(t, ok)
	require.Equal(t, "5", v)

	_, ok = info.Get("missing")
	require.False(t, ok)
}
