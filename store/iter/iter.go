// Package iter implements the sequential iterator combinators the query
// planner composes into a tree: OrIter (k-way sorted union) and AndIter
// (k-way sorted intersection) over sorted, deduplicated Position streams.
// Both are lazy, single-pass, forward-only, and propagate the first error
// they observe from any child; every call after that yields no position
// and returns the same error again.
package iter

// PositionIter is the pull-style cursor every leaf and combinator
// implements. Next returns (0, false, nil) once exhausted, or
// (0, false, err) once an error has been observed; callers must stop
// pulling after either.
type PositionIter interface {
	Next() (position uint64, ok bool, err error)
}

// Slice returns a PositionIter over an already-sorted, deduplicated slice.
// Leaves that must materialise their result in memory, like the identifier
// index with its cross-version re-sort, use this.
func Slice(positions []uint64) PositionIter {
	return &sliceIter{positions: positions}
}

type sliceIter struct {
	positions []uint64
	i         int
}

func (s *sliceIter) Next() (uint64, bool, error) {
	if s.i >= len(s.positions) {
		return 0, false, nil
	}
	v := s.positions[s.i]
	s.i++
	return v, true, nil
}

// Empty returns a PositionIter that yields nothing.
func Empty() PositionIter {
	return Slice(nil)
}

// cachedFront tracks one child iterator's pulled-but-not-yet-emitted
// value, the shape both combinators below share.
type cachedFront struct {
	iter    PositionIter
	value   uint64
	ok      bool
	errored error
}

func (c *cachedFront) pull() {
	if c.errored != nil {
		return
	}
	v, ok, err := c.iter.Next()
	c.value, c.ok, c.errored = v, ok, err
}

func newFronts(iters []PositionIter) []*cachedFront {
	fronts := make([]*cachedFront, len(iters))
	for i, it := range iters {
		f := &cachedFront{iter: it}
		f.pull()
		fronts[i] = f
	}
	return fronts
}

// Or returns a PositionIter over the sorted union of iters, deduplicating
// equal values across children.
func Or(iters []PositionIter) PositionIter {
	if len(iters) == 0 {
		return Empty()
	}
	return &orIter{fronts: newFronts(iters)}
}

type orIter struct {
	fronts []*cachedFront
	done   bool
	err    error
}

func (o *orIter) Next() (uint64, bool, error) {
	if o.done {
		return 0, false, o.err
	}
	var min uint64
	haveMin := false
	for _, f := range o.fronts {
		if f.errored != nil {
			o.done, o.err = true, f.errored
			return 0, false, o.err
		}
		if !f.ok {
			continue
		}
		if !haveMin || f.value < min {
			min, haveMin = f.value, true
		}
	}
	if !haveMin {
		o.done = true
		return 0, false, nil
	}
	for _, f := range o.fronts {
		if f.ok && f.value == min {
			f.pull()
		}
	}
	return min, true, nil
}

// And returns a PositionIter over the sorted intersection of iters. An
// empty iters list intersects to nothing, matching the semantics of
// AND-over-zero-terms never occurring in a well-formed query (the planner
// never builds an empty And).
func And(iters []PositionIter) PositionIter {
	if len(iters) == 0 {
		return Empty()
	}
	return &andIter{fronts: newFronts(iters)}
}

type andIter struct {
	fronts []*cachedFront
	done   bool
	err    error
}

func (a *andIter) Next() (uint64, bool, error) {
	if a.done {
		return 0, false, a.err
	}
	for {
		var max uint64
		for _, f := range a.fronts {
			if f.errored != nil {
				a.done, a.err = true, f.errored
				return 0, false, a.err
			}
			if !f.ok {
				a.done = true
				return 0, false, nil
			}
			if f.value > max {
				max = f.value
			}
		}
		allEqual := true
		for _, f := range a.fronts {
			for f.ok && f.value < max {
				f.pull()
				if f.errored != nil {
					a.done, a.err = true, f.errored
					return 0, false, a.err
				}
			}
			if !f.ok {
				a.done = true
				return 0, false, nil
			}
			if f.value != max {
				allEqual = false
			}
		}
		if allEqual {
			for _, f := range a.fronts {
				f.pull()
			}
			return max, true, nil
		}
	}
}
