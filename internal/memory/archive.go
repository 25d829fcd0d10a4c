package memory

import "context"

// Embedder generates text embeddings. Archives use it to attach vectors to
// stored records so similarity recall works across sessions; it is optional
// and archives degrade to keyword search without one.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ScoredRecord is an archived record with its similarity to a query vector.
type ScoredRecord struct {
	Record
	Score float32
}

// Archive is durable storage for promoted long-term records. It never owns
// live conversation state: the in-process tiers stay authoritative and the
// archive only receives promoted records and answers recall queries.
type Archive interface {
	// Append stores a promoted record.
	Append(ctx context.Context, rec Record) error

	// Load returns up to limit archived records, oldest first, for seeding
	// the long-term store at session start.
	Load(ctx context.Context, limit int) ([]Record, error)

	// Search does keyword matching over archived content, ranked by
	// importance, newest first on ties.
	Search(ctx context.Context, query string, limit int) ([]Record, error)

	// SearchSimilar ranks archived records by vector similarity to the query
	// embedding. Records stored without an embedding are skipped.
	SearchSimilar(ctx context.Context, queryVector []float32, limit int) ([]ScoredRecord, error)

	// Close releases any resources held by the archive.
	Close() error
}
