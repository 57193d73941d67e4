// Package dtpack describes, (un)packs, and reduces strided/derived data
// layouts across heterogeneous memory (host, pinned/registered host, GPU
// device, managed). A Context owns a datatype pool, a request pool, a
// table of predefined scalar/pair types, and the registered GPU drivers
// that back nonblocking Pack/Unpack/Accumulate between a typed buffer and
// a contiguous byte stream.
//
// Every request is classified by the memory kind of its source and
// destination pointers into one of fifteen transport kinds; host-to-host
// requests complete synchronously on the calling goroutine, everything
// else is handed to a progress engine that chunks the work against
// temporary slabs and drives it to completion on Request.Wait.
package dtpack
