package batch

import "fmt"

// Range is an inclusive range of block numbers or operation indices.
type Range struct {
	From uint64
	To   uint64
}

// Len returns the number of items in the range.
func (r Range) Len() uint64 {
	return r.To - r.From + 1
}

// Split splits [from, to] into consecutive ranges of at most size items.
func Split(from, to, size uint64) ([]Range, error) {
	if size == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("range end must be >= start")
	}

	ranges := make([]Range, 0, (to-from)/size+1)
	start := from
	for {
		end := to
		if to-start >= size {
			end = start + size - 1
		}
		ranges = append(ranges, Range{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}

	return ranges, nil
}
