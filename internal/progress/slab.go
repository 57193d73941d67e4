package progress

import "unsafe"

// Slab is a temporary staging buffer managed as a strict FIFO circular
// allocator: chunks are released in the order they were issued, so the
// ring never needs to track holes. At any quiescent moment (no outstanding
// reservations) both Head and Tail read zero.
type Slab struct {
	Base unsafe.Pointer
	size uintptr

	head  uintptr
	tail  uintptr
	order []uintptr // lengths of outstanding reservations, oldest first
}

// NewSlab wraps base (size bytes, already allocated by a driver's
// MallocDevice/MallocHost) as a ring allocator.
func NewSlab(base unsafe.Pointer, size uintptr) *Slab {
	return &Slab{Base: base, size: size}
}

// Head and Tail expose the ring's current offsets, mainly for tests
// asserting the "quiescent implies head==tail==0" invariant.
func (s *Slab) Head() uintptr { return s.head }
func (s *Slab) Tail() uintptr { return s.tail }

// Size returns the slab's total capacity.
func (s *Slab) Size() uintptr { return s.size }

// TryAlloc reserves n contiguous bytes at the tail, wrapping to offset 0
// when the tail region can't fit but the head region can. Returns ok=false
// if n doesn't fit anywhere given the current outstanding reservations.
func (s *Slab) TryAlloc(n uintptr) (offset uintptr, ok bool) {
	if n == 0 {
		return 0, true
	}
	if n > s.size {
		return 0, false
	}

	if len(s.order) == 0 {
		s.head = 0
		s.tail = n
		s.order = append(s.order, n)
		return 0, true
	}

	if s.tail >= s.head {
		if s.tail+n <= s.size {
			offset = s.tail
			s.tail += n
			s.order = append(s.order, n)
			return offset, true
		}
		if n <= s.head {
			s.tail = n
			s.order = append(s.order, n)
			return 0, true
		}
		return 0, false
	}

	// Wrapped state: free space is [tail, head).
	if s.tail+n <= s.head {
		offset = s.tail
		s.tail += n
		s.order = append(s.order, n)
		return offset, true
	}
	return 0, false
}

// Release frees the oldest outstanding reservation, advancing Head past it.
// When the ring drains completely both Head and Tail reset to zero.
func (s *Slab) Release() {
	if len(s.order) == 0 {
		return
	}
	n := s.order[0]
	s.order = s.order[1:]
	s.head = (s.head + n) % s.size
	if len(s.order) == 0 {
		s.head = 0
		s.tail = 0
	}
}

// Outstanding reports the number of reservations not yet released.
func (s *Slab) Outstanding() int { return len(s.order) }

// FreeContig reports the largest single reservation TryAlloc could
// currently satisfy: whichever of the tail region or (if wrapping would
// apply) the head region is bigger.
func (s *Slab) FreeContig() uintptr {
	if len(s.order) == 0 {
		return s.size
	}
	if s.tail >= s.head {
		tailRegion := s.size - s.tail
		headRegion := s.head
		if tailRegion >= headRegion {
			return tailRegion
		}
		return headRegion
	}
	return s.head - s.tail
}
