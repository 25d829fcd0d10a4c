package memory

// ShortTermBuffer keeps the most recent records in insertion order. It is
// not safe for concurrent use; System serializes access.
type ShortTermBuffer struct {
	capacity int
	records  []Record
}

// NewShortTermBuffer creates a buffer holding at most capacity records.
func NewShortTermBuffer(capacity int) *ShortTermBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &ShortTermBuffer{
		capacity: capacity,
		records:  make([]Record, 0, capacity),
	}
}

// Append adds rec, evicting the oldest record when the buffer is full.
// The second return reports whether an eviction happened.
func (b *ShortTermBuffer) Append(rec Record) (Record, bool) {
	var evicted Record
	var didEvict bool
	if len(b.records) >= b.capacity {
		evicted = b.records[0]
		copy(b.records, b.records[1:])
		b.records = b.records[:len(b.records)-1]
		didEvict = true
	}
	b.records = append(b.records, rec)
	return evicted, didEvict
}

// Last returns up to n most recent records in chronological order.
func (b *ShortTermBuffer) Last(n int) []Record {
	if n <= 0 || len(b.records) == 0 {
		return nil
	}
	if n > len(b.records) {
		n = len(b.records)
	}
	out := make([]Record, n)
	copy(out, b.records[len(b.records)-n:])
	return out
}

// Len reports the number of buffered records.
func (b *ShortTermBuffer) Len() int { return len(b.records) }

// Capacity reports the configured bound.
func (b *ShortTermBuffer) Capacity() int { return b.capacity }
