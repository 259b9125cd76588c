package pipeline

// reassembler restores block order from the compressor pool's arbitrarily
// ordered output. It holds a sparse index->block map and a high-water
// mark; callers repeatedly Offer a block and then Drain whatever
// contiguous prefix has become available, avoiding per-block locking
// downstream at the cost of one map per in-flight file (spec §9
// "Out-of-order block assembly").
type reassembler struct {
	pending map[int]EncodedBlock
	next    int // index of the next block Drain will yield
}

func newReassembler() *reassembler {
	return &reassembler{pending: make(map[int]EncodedBlock)}
}

// Offer records b, arriving out of order from the compressor pool.
func (r *reassembler) Offer(b EncodedBlock) {
	r.pending[b.Index] = b
}

// Drain returns every block starting at the current high-water mark that
// is now contiguously available, in index order, and advances the mark
// past them.
func (r *reassembler) Drain() []EncodedBlock {
	var out []EncodedBlock
	for {
		b, ok := r.pending[r.next]
		if !ok {
			break
		}
		delete(r.pending, r.next)
		out = append(out, b)
		r.next++
	}
	return out
}

// Done reports whether every block up to numBlocks has been drained.
func (r *reassembler) Done(numBlocks int) bool {
	return r.next >= numBlocks
}
