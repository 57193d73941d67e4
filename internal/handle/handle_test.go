package handle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrips(t *testing.T) {
	id := Encode(7, 42)
	ctxID, objID := Decode(id)
	require.Equal(t, uint32(7), ctxID)
	require.Equal(t, uint32(42), objID)
}

func TestID_NullIsReserved(t *testing.T) {
	var id ID
	require.True(t, id.IsNull())
	require.False(t, Encode(0, 1).IsNull())
}

func TestPool_AllocLookup(t *testing.T) {
	p := NewPool[string]()
	id := p.Alloc("datatype-a")

	v, ok := p.Lookup(id)
	require.True(t, ok)
	require.Equal(t, "datatype-a", v)
}

func TestPool_LookupMissingFails(t *testing.T) {
	p := NewPool[string]()
	_, ok := p.Lookup(999)
	require.False(t, ok)
}

func TestPool_IncrefDecref(t *testing.T) {
	p := NewPool[int]()
	id := p.Alloc(100)

	require.True(t, p.Incref(id))

	_, dropped, ok := p.Decref(id)
	require.True(t, ok)
	require.False(t, dropped, "refcount was 2, one decref should not drop it")

	v, ok := p.Lookup(id)
	require.True(t, ok)
	require.Equal(t, 100, v)

	_, dropped, ok = p.Decref(id)
	require.True(t, ok)
	require.True(t, dropped)

	_, ok = p.Lookup(id)
	require.False(t, ok, "object should be gone once refcount hits zero")
}

func TestPool_DecrefUnknownFails(t *testing.T) {
	p := NewPool[int]()
	_, dropped, ok := p.Decref(12345)
	require.False(t, ok)
	require.False(t, dropped)
}

func TestPool_LenTracksLiveObjects(t *testing.T) {
	p := NewPool[int]()
	require.Equal(t, 0, p.Len())

	a := p.Alloc(1)
	p.Alloc(2)
	require.Equal(t, 2, p.Len())

	p.Decref(a)
	require.Equal(t, 1, p.Len())
}

func TestPool_AllocIDsAreUnique(t *testing.T) {
	p := NewPool[int]()
	seen := make(map[uint32]bool)
	for i := 0; i < 100; i++ {
		id := p.Alloc(i)
		require.False(t, seen[id], "object id %d reused", id)
		seen[id] = true
	}
}
