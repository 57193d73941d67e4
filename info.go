package dtpack

import "sync"

// Recognized Info keys (spec §6's table). Only InfoKeyNestingLevel is read,
// by NewContext; the others are defined but not consulted.
const (
	InfoKeyGPUDriver        = "yaksa_gpu_driver"
	InfoKeyCUDAInbufPtrAttr = "yaksa_cuda_inbuf_ptr_attr"
	InfoKeyCUDAOutbufPtrAttr = "yaksa_cuda_outbuf_ptr_attr"
	InfoKeyNestingLevel     = "yaksa_nesting_level"
)

// Info is an opaque key-value options bag threaded through pack/unpack and
// context construction calls (spec §6). The zero value is not usable;
// construct with NewInfo.
type Info struct {
	mu   sync.RWMutex
	vals map[string]string
}

// NewInfo constructs an empty Info.
func NewInfo() *Info {
	return &Info{vals: make(map[string]string)}
}

// Append records key=value, overwriting any existing value for key. vallen
// is accepted for signature parity with spec §6's keyval_append but is not
// otherwise meaningful in Go, where value already carries its own length.
func (i *Info) Append(key, value string, vallen int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.vals[key] = value
}

// Get looks up key, reporting ok=false if it was never set.
func (i *Info) Get(key string) (value string, ok bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	v, ok := i.vals[key]
	return v, ok
}

// Free releases i. Info carries no backend resources, so this is a no-op
// kept for API parity with spec §6's info_free.
func (i *Info) Free() {}
