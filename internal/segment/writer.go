package segment

import "fmt"

// WriteTxn is a scoped "update in progress" handle (spec §4.2). Acquiring
// one fences the odd generation; Set mutates the mapped region directly;
// Commit performs the even-generation fence. There must never be more
// than one WriteTxn open against a given Segment - enforcement is by
// construction, since only the single refresh-loop goroutine in the
// writer process calls BeginWrite (spec §4.2, §5).
type WriteTxn struct {
	seg       *Segment
	oddGen    uint32
	committed bool
}

// BeginWrite acquires a writer transaction: step 1 of spec §4.1's write
// transaction (load g, store g+1 as an odd generation with a release
// fence). Returns an error if the segment wasn't opened read-write, or
// if the segment's own generation is already odd (spec §4.2: "the writer
// observes its own generation to be odd at acquisition (treated as fatal
// logic error - must not happen)").
func (s *Segment) BeginWrite() (*WriteTxn, error) {
	if !s.writable {
		return nil, fmt.Errorf("segment %q opened read-only: %w", s.path, errNotWritable)
	}

	g := atomicLoadU32(s.data, offGeneration)
	if g%2 == 1 {
		return nil, fmt.Errorf("%w: generation %d is already odd at acquisition", errWriterLogicError, g)
	}

	oddGen := g + 1
	// Release-ordered store: sync/atomic.StoreUint32 on amd64/arm64 emits
	// a store-release, so no payload write below can be reordered above
	// this point as observed by a reader doing an acquire load.
	atomicStoreU32(s.data, offGeneration, oddGen)

	return &WriteTxn{seg: s, oddGen: oddGen}, nil
}

// Set writes every payload field in a single step (spec §4.1 step 2).
// Must be called between BeginWrite and Commit.
func (t *WriteTxn) Set(p Payload) {
	encodePayload(t.seg.data, p)
}

// Commit performs steps 3-4 of spec §4.1: compute the next even
// generation (skipping 0 on wrap) and publish it with a release fence.
// The transaction must not be used again after Commit.
func (t *WriteTxn) Commit() {
	if t.committed {
		return
	}

	evenGen := nextGeneration(t.oddGen)
	atomicStoreU32(t.seg.data, offGeneration, evenGen)
	t.committed = true
}
