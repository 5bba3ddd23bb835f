package frame

import "sort"

// A Set is the ordered frame index of one channel type category. It is
// append-only during the indexing scan; Finish seals it for binary search.
// After that a Set is immutable and safe for concurrent readers.
type Set struct {
	typ    Type
	frames []Frame
	// maxEnd[i] is the maximum End among frames[0..i]. Frames are ordered by
	// Start, not End, so the running maximum is what makes the lower bound of
	// an interval search a pure binary search.
	maxEnd []uint64
	sealed bool
}

// NewSet returns an empty frame set for the given category with room for
// capacity frames.
func NewSet(typ Type, capacity int) *Set {
	return &Set{typ: typ, frames: make([]Frame, 0, capacity)}
}

// Type returns the category the set indexes.
func (s *Set) Type() Type { return s.typ }

// Len returns the number of frames in the set.
func (s *Set) Len() int { return len(s.frames) }

// Frames returns the ordered frames of the set. The returned slice is shared;
// callers must not modify it.
func (s *Set) Frames() []Frame { return s.frames }

// Bounds returns the tick range covered by the set. ok is false for an empty
// set.
func (s *Set) Bounds() (start, end uint64, ok bool) {
	if len(s.frames) == 0 {
		return 0, 0, false
	}
	return s.frames[0].Start, s.maxEnd[len(s.maxEnd)-1], true
}

// Samples returns the total number of samples (continuous) or occurrences
// (discrete) indexed by the set.
func (s *Set) Samples() uint64 {
	var n uint64
	for i := range s.frames {
		n += s.frames[i].Samples
	}
	return n
}

// append adds a finalized frame to the set.
func (s *Set) append(fr Frame) {
	s.frames = append(s.frames, fr)
}

// Finish orders the frames by start tick and builds the interval search
// index. Frames finalize in coalescing order during the scan, which for
// overlapping per-channel runs is not start order.
func (s *Set) Finish() {
	sort.SliceStable(s.frames, func(i, j int) bool {
		if s.frames[i].Start != s.frames[j].Start {
			return s.frames[i].Start < s.frames[j].Start
		}
		return s.frames[i].Off[0] < s.frames[j].Off[0]
	})
	s.maxEnd = make([]uint64, len(s.frames))
	var max uint64
	for i := range s.frames {
		if s.frames[i].End > max {
			max = s.frames[i].End
		}
		s.maxEnd[i] = max
	}
	s.sealed = true
}

// Overlapping returns, in ascending start order, exactly the frames whose
// [Start, End) interval intersects [t0, t1). The lower bound costs one binary
// search; the rest is linear in the number of frames returned.
func (s *Set) Overlapping(t0, t1 uint64) []Frame {
	if t0 >= t1 {
		return nil
	}
	// First frame index at which any coverage past t0 can begin.
	lo := sort.Search(len(s.frames), func(i int) bool {
		return s.maxEnd[i] > t0
	})
	var out []Frame
	for i := lo; i < len(s.frames); i++ {
		fr := &s.frames[i]
		if fr.Start >= t1 {
			break
		}
		if fr.End > t0 {
			out = append(out, *fr)
		}
	}
	return out
}
