package memory

import "sort"

// LongTermStore holds promoted records ranked by importance. Capacity is
// enforced on insert: the lowest-importance record goes first, oldest first
// on equal importance. Not safe for concurrent use; System serializes access.
type LongTermStore struct {
	capacity int
	records  []Record
}

// NewLongTermStore creates a store holding at most capacity records.
func NewLongTermStore(capacity int) *LongTermStore {
	if capacity <= 0 {
		capacity = 1
	}
	return &LongTermStore{capacity: capacity}
}

// Insert adds rec, evicting the lowest-importance record when over capacity.
// The second return reports whether an eviction happened.
func (s *LongTermStore) Insert(rec Record) (Record, bool) {
	s.records = append(s.records, rec)
	if len(s.records) <= s.capacity {
		return Record{}, false
	}

	victim := 0
	for i, r := range s.records {
		if r.Importance < s.records[victim].Importance {
			victim = i
			continue
		}
		if r.Importance == s.records[victim].Importance && r.Seq < s.records[victim].Seq {
			victim = i
		}
	}

	evicted := s.records[victim]
	s.records = append(s.records[:victim], s.records[victim+1:]...)
	return evicted, true
}

// Top returns up to n records ranked by importance, newest first on ties.
func (s *LongTermStore) Top(n int) []Record {
	if n <= 0 || len(s.records) == 0 {
		return nil
	}
	ranked := make([]Record, len(s.records))
	copy(ranked, s.records)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Importance != ranked[j].Importance {
			return ranked[i].Importance > ranked[j].Importance
		}
		return ranked[i].Seq > ranked[j].Seq
	})
	if n > len(ranked) {
		n = len(ranked)
	}
	return ranked[:n]
}

// All returns the stored records in insertion order.
func (s *LongTermStore) All() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len reports the number of stored records.
func (s *LongTermStore) Len() int { return len(s.records) }

// Capacity reports the configured bound.
func (s *LongTermStore) Capacity() int { return s.capacity }
