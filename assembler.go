package seqs

// Assembler keeps track of the sequence space of received data. It exposes
// the contiguous receive frontier so that out of order data is only made
// readable once all holes preceding it have been filled.
type Assembler struct {
	nxt Value
	// outstanding holds received ranges after nxt. It is sorted and no two
	// ranges overlap or touch.
	outstanding []seqRange
}

// seqRange is the half-open sequence space range [start, end).
type seqRange struct {
	start, end Value
}

// NewAssembler returns an Assembler whose frontier starts at nxt,
// usually IRS+1.
func NewAssembler(nxt Value) Assembler {
	return Assembler{nxt: nxt}
}

// Nxt returns the lowest sequence number not yet received contiguously.
func (a *Assembler) Nxt() Value { return a.nxt }

// Pending returns the number of disjoint ranges received ahead of a hole.
func (a *Assembler) Pending() int { return len(a.outstanding) }

// Insert marks [start, end) as received and returns the number of bytes that
// became contiguous as a result. Portions before the frontier are ignored.
func (a *Assembler) Insert(start, end Value) Size {
	if !end.After(a.nxt) || !end.After(start) {
		return 0
	}
	if start.Before(a.nxt) {
		start = a.nxt
	}
	a.insert(seqRange{start: start, end: end})
	first := a.outstanding[0]
	if first.start != a.nxt {
		return 0 // Hole remains.
	}
	a.outstanding = a.outstanding[1:]
	if len(a.outstanding) == 0 {
		a.outstanding = nil
	}
	advanced := Sizeof(a.nxt, first.end)
	a.nxt = first.end
	return advanced
}

// insert merges r into the sorted outstanding ranges.
func (a *Assembler) insert(r seqRange) {
	merged := make([]seqRange, 0, len(a.outstanding)+1)
	placed := false
	for _, o := range a.outstanding {
		switch {
		case o.end.Before(r.start):
			merged = append(merged, o)
		case r.end.Before(o.start):
			if !placed {
				merged = append(merged, r)
				placed = true
			}
			merged = append(merged, o)
		default:
			// Overlapping or adjacent: absorb o into r.
			if o.start.Before(r.start) {
				r.start = o.start
			}
			if o.end.After(r.end) {
				r.end = o.end
			}
		}
	}
	if !placed {
		merged = append(merged, r)
	}
	a.outstanding = merged
}
