package memory

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Measure sizes digest text against a budget. The default counts runes; an
// llm.TokenMeasure can be plugged in to budget in model tokens instead.
type Measure interface {
	Count(text string) int
}

// RuneMeasure counts characters.
type RuneMeasure struct{}

func (RuneMeasure) Count(text string) int { return utf8.RuneCountInString(text) }

// Config configures a memory System.
type Config struct {
	ShortTermCapacity  int
	LongTermCapacity   int
	PromotionThreshold float64
	// Measure sizes digests; nil means RuneMeasure.
	Measure Measure
	// Archive, when set, receives every promoted record.
	Archive Archive
	Logger  *zap.Logger
}

// System owns both memory tiers for one conversation. Methods are safe for
// concurrent use because a model turn's tool invocations record their
// results from separate goroutines; ownership across conversations is still
// one System per conversation.
type System struct {
	mu        sync.Mutex
	threshold float64
	short     *ShortTermBuffer
	long      *LongTermStore
	measure   Measure
	archive   Archive
	logger    *zap.Logger
	seq       uint64
	now       func() time.Time
}

// digestRelevantN bounds how many long-term records compete for digest space.
const digestRelevantN = 10

// NewSystem creates a memory System from cfg, applying defaults for zero
// values.
func NewSystem(cfg Config) *System {
	if cfg.ShortTermCapacity <= 0 {
		cfg.ShortTermCapacity = 10
	}
	if cfg.LongTermCapacity <= 0 {
		cfg.LongTermCapacity = 200
	}
	if cfg.Measure == nil {
		cfg.Measure = RuneMeasure{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &System{
		threshold: cfg.PromotionThreshold,
		short:     NewShortTermBuffer(cfg.ShortTermCapacity),
		long:      NewLongTermStore(cfg.LongTermCapacity),
		measure:   cfg.Measure,
		archive:   cfg.Archive,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// Add creates a record and appends it to the short-term buffer. When the
// buffer overflows, the evicted record is promoted to long-term storage only
// if its importance strictly exceeds the promotion threshold; otherwise it
// is discarded. The created record is returned.
func (s *System) Add(content string, kind Kind, importance float64) Record {
	s.mu.Lock()
	s.seq++
	rec := newRecord(s.seq, kind, content, importance, s.now())
	evicted, didEvict := s.short.Append(rec)
	var promoted bool
	if didEvict && evicted.Importance > s.threshold {
		s.long.Insert(evicted)
		promoted = true
	}
	s.mu.Unlock()

	if promoted && s.archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.archive.Append(ctx, evicted); err != nil {
			s.logger.Warn("failed to archive promoted record",
				zap.String("record_id", evicted.ID), zap.Error(err))
		}
		cancel()
	}
	return rec
}

// Recent returns the last n short-term records in chronological order. The
// sequence is lazy and restartable; each restart re-snapshots the buffer.
func (s *System) Recent(n int) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		s.mu.Lock()
		recs := s.short.Last(n)
		s.mu.Unlock()
		for _, r := range recs {
			if !yield(r) {
				return
			}
		}
	}
}

// Relevant returns up to n long-term records ranked by importance, newest
// first on ties.
func (s *System) Relevant(n int) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.long.Top(n)
}

// Digest composes a bounded textual summary of recent plus relevant records.
// Candidates are taken in importance order (recency breaks ties) and
// selection stops at the first record that would push the rendered digest
// past budget, so output size is monotone in budget. Selected records render
// in chronological order.
func (s *System) Digest(budget int) string {
	if budget <= 0 {
		return ""
	}

	s.mu.Lock()
	recent := s.short.Last(s.short.Capacity())
	relevant := s.long.Top(digestRelevantN)
	s.mu.Unlock()

	candidates := make([]Record, 0, len(recent)+len(relevant))
	candidates = append(candidates, recent...)
	candidates = append(candidates, relevant...)
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Importance != candidates[j].Importance {
			return candidates[i].Importance > candidates[j].Importance
		}
		return candidates[i].Seq > candidates[j].Seq
	})

	var selected []Record
	used := 0
	for _, rec := range candidates {
		cost := s.measure.Count(renderRecord(rec))
		if used+cost > budget {
			break
		}
		used += cost
		selected = append(selected, rec)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Seq < selected[j].Seq
	})

	var sb strings.Builder
	for _, rec := range selected {
		sb.WriteString(renderRecord(rec))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderRecord(rec Record) string {
	return fmt.Sprintf("[%s] %s: %s\n", rec.CreatedAt.Format("15:04"), rec.Kind, rec.Content)
}

// Search does keyword matching across both tiers: a record matches when any
// whitespace-separated query word appears in its content, case-insensitive.
// Results are ranked by importance, newest first on ties.
func (s *System) Search(query string, limit int) []Record {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 || limit <= 0 {
		return nil
	}

	s.mu.Lock()
	pool := append(s.short.Last(s.short.Capacity()), s.long.All()...)
	s.mu.Unlock()

	var matched []Record
	for _, rec := range pool {
		content := strings.ToLower(rec.Content)
		for _, w := range words {
			if strings.Contains(content, w) {
				matched = append(matched, rec)
				break
			}
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Importance != matched[j].Importance {
			return matched[i].Importance > matched[j].Importance
		}
		return matched[i].Seq > matched[j].Seq
	})
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched
}

// Preload seeds the long-term store with records from a previous session's
// archive. Sequence numbers are reassigned so preloaded records rank older
// than anything added afterwards.
func (s *System) Preload(records []Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	for _, rec := range records {
		s.seq++
		rec.Seq = s.seq
		s.long.Insert(rec)
	}
}

// Counts reports the current size of each tier.
func (s *System) Counts() (shortTerm, longTerm int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.short.Len(), s.long.Len()
}
