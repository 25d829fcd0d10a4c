// Package memory implements the two-tier conversation memory: a bounded
// recency window plus an importance-ranked long-term store, with an optional
// durable archive behind it.
package memory

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind tags what produced a record.
type Kind string

const (
	KindUser       Kind = "user"
	KindAssistant  Kind = "assistant"
	KindToolResult Kind = "tool_result"
)

// Default importance per kind, from the agent's scoring of its own
// transcript: user intent ranks below the reply that resolves it, tool
// chatter below both.
const (
	ImportanceUser       = 0.8
	ImportanceAssistant  = 0.9
	ImportanceToolResult = 0.6
)

// Record is one immutable conversation event. Seq is monotonic within a
// session and is the recency tiebreaker everywhere importance ranks records.
type Record struct {
	ID         string
	Seq        uint64
	Kind       Kind
	Content    string
	Importance float64
	CreatedAt  time.Time
}

func newRecord(seq uint64, kind Kind, content string, importance float64, now time.Time) Record {
	if importance < 0 {
		importance = 0
	} else if importance > 1 {
		importance = 1
	}
	return Record{
		ID:         ulid.Make().String(),
		Seq:        seq,
		Kind:       kind,
		Content:    content,
		Importance: importance,
		CreatedAt:  now,
	}
}
