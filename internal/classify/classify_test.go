package classify

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	id    int
	claim map[unsafe.Pointer]Attr
}

func (f *fakeProber) DriverID() int { return f.id }

func (f *fakeProber) GetPtrAttr(ptr unsafe.Pointer) (Attr, bool) {
	a, ok := f.claim[ptr]
	return a, ok
}

func TestClassify_UnclaimedIsUnregisteredHost(t *testing.T) {
	r := NewRegistry()
	var x int
	attr := r.Classify(unsafe.Pointer(&x))
	require.Equal(t, UnregisteredHost, attr.Kind)
}

func TestClassify_FirstClaimingBackendWins(t *testing.T) {
	r := NewRegistry()
	var x int
	ptr := unsafe.Pointer(&x)

	first := &fakeProber{id: 0, claim: map[unsafe.Pointer]Attr{ptr: {Kind: GPU, DeviceID: 2}}}
	second := &fakeProber{id: 1, claim: map[unsafe.Pointer]Attr{ptr: {Kind: GPU, DeviceID: 5}}}
	r.Register(first)
	r.Register(second)

	attr := r.Classify(ptr)
	require.Equal(t, GPU, attr.Kind)
	require.Equal(t, 2, attr.DeviceID)
	require.Equal(t, 0, attr.DriverID)
}

func TestClassify_SkipsNonClaimingBackend(t *testing.T) {
	r := NewRegistry()
	var x int
	ptr := unsafe.Pointer(&x)

	none := &fakeProber{id: 0, claim: map[unsafe.Pointer]Attr{}}
	claims := &fakeProber{id: 1, claim: map[unsafe.Pointer]Attr{ptr: {Kind: RegisteredHost}}}
	r.Register(none)
	r.Register(claims)

	attr := r.Classify(ptr)
	require.Equal(t, RegisteredHost, attr.Kind)
	require.Equal(t, 1, attr.DriverID)
}
